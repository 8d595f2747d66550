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
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ReportedError is one error surfaced by the running dataflow, tagged
// with the operator that raised it and when.
type ReportedError struct {
	Operator string
	Err error
	At time.Time
}

// ErrorReporter collects operator errors surfaced while a dataflow runs
// so a caller can inspect them after the fact instead of only seeing
// them scroll past in the log, mirroring how CDC
// resolvers accumulate per-table errors without aborting the whole
// changefeed for a single bad row.
type ErrorReporter struct {
	mu sync.Mutex
	errs []ReportedError
	onErr func(ReportedError)
	logAll bool
}

// NewErrorReporter constructs an ErrorReporter. When logAll is true,
// every reported error is also logged at warn level as it arrives.
func NewErrorReporter(logAll bool) *ErrorReporter {
	return &ErrorReporter{logAll: logAll}
}

// OnError registers a callback invoked synchronously for every
// reported error, in addition to recording it. Only one callback may
// be registered; a later call replaces an earlier one.
func (r *ErrorReporter) OnError(fn func(ReportedError)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onErr = fn
}

// Report records an error raised by operator.
func (r *ErrorReporter) Report(operator string, err error) {
	re := ReportedError{Operator: operator, Err: err, At: time.Now()}
	r.mu.Lock()
	r.errs = append(r.errs, re)
	cb := r.onErr
	r.mu.Unlock()
	if r.logAll {
		logrus.WithError(err).WithField("operator", operator).Warn("driver: operator reported an error")
	}
	if cb != nil {
		cb(re)
	}
}

// Errors returns a snapshot of every error reported so far.
func (r *ErrorReporter) Errors() []ReportedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReportedError, len(r.errs))
	copy(out, r.errs)
	return out
}

// Count returns the number of errors reported so far.
func (r *ErrorReporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}
