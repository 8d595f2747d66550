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

// Package sink implements the per-output-connector delivery loop:
// each configured sink runs its own dedicated goroutine (standing in
// for an OS thread per sink), consuming batches off a channel and
// retrying failed record writes with backoff. It is grounded on sink.go's
// Sink.HandleRequest, which batches incoming lines and commits them
// inside a transaction, generalized from a single Postgres sink
// handler into a connector-agnostic batch/commit/retry loop, and on
// the applier retry discipline exercised throughout internal/sinktest.
package sink

import (
	"context"
	"time"

	"github.com/cockroachdb/dataflow/engine/connector"
	"github.com/sirupsen/logrus"
)

// OutputEvent is one unit of work handed to a Sink: a batch of already
// formatted records to write, followed eventually by a Commit request
// once the dataflow's frontier has advanced past every row in the
// batch.
type OutputEvent struct {
	Records [][]byte
	Commit bool
}

// RetryPolicy controls how a Sink retries a failed Write; a failed
// Flush is not retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff time.Duration
}

// DefaultRetryPolicy matches applier default: a handful
// of attempts with a short fixed backoff, favoring availability over
// aggressive failure surfacing for transient sink errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: 250 * time.Millisecond}
}

// Sink runs one connector.Writer on its own goroutine, draining
// OutputEvents in order.
type Sink struct {
	name string
	writer connector.Writer
	policy RetryPolicy

	events chan OutputEvent
	errs chan error
	done chan struct{}
}

// New starts a Sink's delivery goroutine. Close must be called to stop
// it once the caller has no more events to send.
func New(name string, writer connector.Writer, policy RetryPolicy) *Sink {
	s := &Sink{
		name: name,
		writer: writer,
		policy: policy,
		events: make(chan OutputEvent, 64),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// Send enqueues an event for delivery. It blocks if the sink's queue is
// full, exerting the backpressure driver loop expects from a
// slow output connector.
func (s *Sink) Send(e OutputEvent) {
	s.events <- e
}

// Errs reports asynchronous delivery failures that exhausted retries.
func (s *Sink) Errs() <-chan error { return s.errs }

// Close stops accepting events and waits for the delivery goroutine to
// drain its queue and exit.
func (s *Sink) Close() error {
	close(s.events)
	<-s.done
	return s.writer.Close()
}

func (s *Sink) run() {
	defer close(s.done)
	ctx := context.Background()
	log := logrus.WithField("sink", s.name)
	for e := range s.events {
		for _, rec := range e.Records {
			if err := s.writeWithRetry(ctx, rec); err != nil {
				log.WithError(err).Error("sink: record delivery failed after retries")
				select {
				case s.errs <- err:
				default:
				}
			}
		}
		if e.Commit {
			if err := s.writer.Flush(ctx); err != nil {
				log.WithError(err).Error("sink: commit flush failed")
				select {
				case s.errs <- err:
				default:
				}
			}
		}
	}
}

func (s *Sink) writeWithRetry(ctx context.Context, rec []byte) error {
	var err error
	for attempt := 0; attempt < s.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(s.policy.Backoff)
		}
		if err = s.writer.Write(ctx, rec); err == nil {
			return nil
		}
		logrus.WithField("sink", s.name).WithError(err).
			WithField("attempt", attempt+1).Warn("sink: write attempt failed, retrying")
	}
	return err
}
