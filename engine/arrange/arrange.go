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

// Package arrange implements the indexed, time-versioned trace that
// backs every dataflow collection's "arranged" form. A Trace keeps every (time, diff, values) version seen for a
// key; Arrangement wraps a Trace with reference counting so that
// multiple joins/reduces can share one physical index, matching
// "shared trace with reference counting; the only form
// joinable".
package arrange

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/dataflow/engine/dferrors"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
)

// Version is one (time, diff) update recorded for a key in a Trace.
type Version struct {
	Time ts.Time
	Values []value.Value
	Diff int64
}

// Trace is the full, uncompacted history of updates for every key in a
// collection, indexed by key for point lookups and joins.
type Trace struct {
	mu sync.RWMutex
	versions map[key.Key][]Version
	// depth bounds how many historical versions per key are retained,
	// set by SetDepth; zero means unbounded.
	depth int
}

// NewTrace constructs an empty Trace.
func NewTrace() *Trace {
	return &Trace{versions: make(map[key.Key][]Version)}
}

// SetDepth bounds the number of retained historical versions per key,
// compacting older ones away. Graph.SetOperatorProperties records a
// TraceDepth hint but does not call SetDepth.
func (t *Trace) SetDepth(depth int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.depth = depth
	if depth <= 0 {
		return
	}
	for k, vs := range t.versions {
		if len(vs) > depth {
			t.versions[k] = vs[len(vs)-depth:]
		}
	}
}

// Insert records a new version for k at the given time. Versions for a
// key are kept sorted by time.
func (t *Trace) Insert(k key.Key, tm ts.Time, vals []value.Value, diff int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	vs := t.versions[k]
	idx := sort.Search(len(vs), func(i int) bool { return ts.Compare(vs[i].Time, tm) > 0 })
	vs = append(vs, Version{})
	copy(vs[idx+1:], vs[idx:])
	vs[idx] = Version{Time: tm, Values: vals, Diff: diff}
	if t.depth > 0 && len(vs) > t.depth {
		vs = vs[len(vs)-t.depth:]
	}
	t.versions[k] = vs
}

// Versions returns a copy of the recorded versions for k.
func (t *Trace) Versions(k key.Key) []Version {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Version(nil), t.versions[k]...)
}

// Keys returns every key with at least one recorded version.
func (t *Trace) Keys() []key.Key {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ks := make([]key.Key, 0, len(t.versions))
	for k := range t.versions {
		ks = append(ks, k)
	}
	return ks
}

// Row is the net state of a key after consolidation at a given
// "as-of" frontier, invariant: "at any logical time, the
// observable multiset of a table under -1/+1 collapse is a proper
// set".
type Row struct {
	Key key.Key
	Values []value.Value
	// Diff is the net multiplicity: 0 (absent), 1 (present), or, when
	// the consolidation invariant is violated upstream, some other
	// value reported via Err.
	Diff int64
	// LatestTime is the time of the last version contributing to this
	// row's current values.
	LatestTime ts.Time
}

// AsOf returns the consolidated row for k, summing diffs at all
// versions with Time <= asOf and taking the Values from the
// latest-timed contributing version. ok is false if the net diff is
// zero (the key is absent as of that frontier).
func (t *Trace) AsOf(k key.Key, asOf ts.Time) (row Row, ok bool) {
	vs := t.Versions(k)
	var net int64
	var latest ts.Time
	var vals []value.Value
	for _, v := range vs {
		if ts.Compare(v.Time, asOf) > 0 {
			continue
		}
		net += v.Diff
		if ts.Compare(v.Time, latest) >= 0 {
			latest = v.Time
			vals = v.Values
		}
	}
	if net == 0 {
		return Row{}, false
	}
	return Row{Key: k, Values: vals, Diff: net, LatestTime: latest}, true
}

// ConsolidatedAsOf returns the consolidated set of all rows visible at
// the given frontier, plus a slice of DuplicateKeyErrors for any key
// whose net diff is neither 0 nor 1.
func (t *Trace) ConsolidatedAsOf(asOf ts.Time) ([]Row, []error) {
	var rows []Row
	var errs []error
	for _, k := range t.Keys() {
		row, ok := t.AsOf(k, asOf)
		if !ok {
			continue
		}
		if row.Diff != 1 {
			errs = append(errs, &dferrors.DuplicateKeyError{Key: k})
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key.Less(rows[j].Key) })
	return rows, errs
}

// Arrangement is a reference-counted handle onto a shared Trace, per
// "shared trace with reference counting; the only form
// joinable". Multiple joins/reduces hold an *Arrangement rather than
// copying the Trace.
type Arrangement struct {
	trace *Trace
	refs int32
}

// NewArrangement wraps t with an initial reference count of one.
func NewArrangement(t *Trace) *Arrangement {
	return &Arrangement{trace: t, refs: 1}
}

// Trace returns the underlying shared trace.
func (a *Arrangement) Trace() *Trace { return a.trace }

// Retain increments the reference count and returns a so callers can
// write `arr = arr.Retain` defensively.
func (a *Arrangement) Retain() *Arrangement {
	atomic.AddInt32(&a.refs, 1)
	return a
}

// Release decrements the reference count. It does not free the trace;
// traces are dropped, along with the rest of the worker's arena, when
// the worker's dataflow scope ends, not via per-arrangement bookkeeping.
func (a *Arrangement) Release() {
	atomic.AddInt32(&a.refs, -1)
}

// RefCount reports the current reference count, for diagnostics.
func (a *Arrangement) RefCount() int32 {
	return atomic.LoadInt32(&a.refs)
}
