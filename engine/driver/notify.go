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
)

// Var is a generic reactive variable: callers can Get its current
// value, Set a new one, or Wait for the next update. It is rebuilt here
// from its call sites across internal/source/cdc/resolver.go and
// internal/source/logical/serial_events.go (notify.Var[T], referenced
// but not included in the ecosystem) -- a condition-variable-backed
// single slot that every reader polls by generation number rather than
// by value identity, so a reader can never miss an update even if
// several happen between two of its checks.
type Var[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value T
	gen   uint64
}

// NewVar constructs a Var holding an initial value.
func NewVar[T any](initial T) *Var[T] {
	v := &Var[T]{value: initial}
	v.cond = sync.NewCond(&v.mu)
	return v
}

// Get returns the current value and its generation number.
func (v *Var[T]) Get() (T, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.gen
}

// Set stores a new value and wakes every goroutine blocked in Wait.
func (v *Var[T]) Set(value T) {
	v.mu.Lock()
	v.value = value
	v.gen++
	v.mu.Unlock()
	v.cond.Broadcast()
}

// Update atomically replaces the value with fn's result and wakes every
// waiter, matching compare-and-swap-style notify.Var
// usage for merging in a newly observed resolved timestamp.
func (v *Var[T]) Update(fn func(T) T) {
	v.mu.Lock()
	v.value = fn(v.value)
	v.gen++
	v.mu.Unlock()
	v.cond.Broadcast()
}

// Wait blocks until the generation advances past lastSeen or ctx is
// canceled, returning the new value and generation.
func (v *Var[T]) Wait(ctx context.Context, lastSeen uint64) (value T, gen uint64, err error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			v.cond.Broadcast()
		case <-stop:
		}
	}()

	v.mu.Lock()
	defer v.mu.Unlock()
	for v.gen == lastSeen {
		if ctx.Err() != nil {
			var zero T
			return zero, v.gen, ctx.Err()
		}
		v.cond.Wait()
	}
	return v.value, v.gen, nil
}
