// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Context is the cooperative-shutdown scope used by the driver's worker
// goroutines, rebuilt from its call sites in
// internal/source/cdc/resolver.go (stopper.WithContext, ctx.Go,
// ctx.Stopping, stop.Stop(timeout)): Stop requests every goroutine
// launched with Go to exit, waits up to a deadline for them to do so,
// and collects their returned errors.
type Context struct {
	context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	wg       sync.WaitGroup
	errs     []error
	stopping chan struct{}
	once     sync.Once
}

// WithContext derives a stoppable Context from parent.
func WithContext(parent context.Context) *Context {
	ctx, cancel := context.WithCancel(parent)
	return &Context{Context: ctx, cancel: cancel, stopping: make(chan struct{})}
}

// Go launches fn on its own goroutine, tracked so Stop can wait for it.
// fn should select on Stopping to exit promptly once a stop is
// requested.
func (c *Context) Go(fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(); err != nil {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
			logrus.WithError(err).Warn("driver: worker goroutine exited with error")
		}
	}()
}

// Stopping returns a channel that closes once Stop has been called,
// for a worker's select loop to observe.
func (c *Context) Stopping() <-chan struct{} { return c.stopping }

// Stop requests every goroutine launched with Go to exit by canceling
// the context and closing Stopping, then blocks up to timeout for them
// to finish. It returns the first error, if any, reported by a worker.
func (c *Context) Stop(timeout time.Duration) error {
	c.once.Do(func() {
		close(c.stopping)
		c.cancel()
	})

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.New("driver: timed out waiting for workers to stop")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) > 0 {
		return c.errs[0]
	}
	return nil
}
