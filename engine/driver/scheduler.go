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
	"time"

	"github.com/sirupsen/logrus"
)

// Step is one unit of work the Scheduler drives: given that new input
// has arrived (or the minimum commit frequency elapsed with none), it
// recomputes/extends the dataflow graph from whatever inputs changed
// and returns whether any output actually changed.
type Step func(ctx context.Context) (changed bool, err error)

// Scheduler runs a Step in a loop following the step_or_park discipline
// used throughout execution model: do
// one unit of work if one is ready; if none is, block (park) rather
// than spin, waking on the next input notification or a periodic
// commit-frequency timer, whichever comes first.
type Scheduler struct {
	cfg *Config
	step Step
	wake *Var[uint64]
	stopper *Context
}

// NewScheduler constructs a Scheduler around step. wake should be
// Set (or Update) by every input source each time it has new data
// available, so StepOrPark knows when to stop parking.
func NewScheduler(cfg *Config, step Step, wake *Var[uint64]) *Scheduler {
	return &Scheduler{cfg: cfg, step: step, wake: wake, stopper: WithContext(context.Background())}
}

// Stopper exposes the scheduler's cooperative-shutdown scope so input
// connectors launched alongside it can share the same lifecycle.
func (s *Scheduler) Stopper() *Context { return s.stopper }

// Run drives StepOrPark until ctx is canceled, then stops the
// scheduler's own worker scope with the given shutdown grace period.
func (s *Scheduler) Run(ctx context.Context, shutdownGrace time.Duration) error {
	defer s.stopper.Stop(shutdownGrace)
	lastWakeGen := uint64(0)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		changed, err := s.step(ctx)
		if err != nil {
			logrus.WithError(err).Error("driver: step failed")
			if s.cfg.TerminateOnError {
				return err
			}
		}
		if changed {
			continue
		}
		if err := s.park(ctx, &lastWakeGen); err != nil {
			return err
		}
	}
}

// park blocks until either the wake Var advances past lastWakeGen, the
// minimum commit frequency elapses, or ctx is canceled -- "step_or_park"
// applies backpressure to an idle dataflow without busy-waiting, while
// still giving the driver a chance to flush partial progress to its
// sinks on every MinCommitFrequency tick even with no new input.
func (s *Scheduler) park(ctx context.Context, lastWakeGen *uint64) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.MinCommitFrequency)
	defer cancel()
	_, gen, err := s.wake.Wait(waitCtx, *lastWakeGen)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	*lastWakeGen = gen
	return nil
}
