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

// Package dataflow implements the dataflow graph builder and its
// operator library. Graph is the handle-based facade; its methods are
// the operators over universes, columns, and tables.
package dataflow

import (
	"sort"
	"sync"

	"github.com/cockroachdb/dataflow/engine/arrange"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
)

// Row is one update in a collection's stream: ((Key, payload),
// Timestamp, Diff). Payload is a positional
// tuple; Universe rows carry an empty Values slice and Column rows
// carry a single-element one.
type Row struct {
	Key key.Key
	Values []value.Value
	Time ts.Time
	Diff int64
}

// Collection is a stream of Rows, implementing the origin-form cache:
// it always owns its raw stream form, and lazily computes and
// memoizes an arranged (indexed-by-key) form and a consolidated
// (net-diff) form on first demand.
//
// A Collection is built once, during graph construction or by an
// operator's evaluation, and is not mutated afterward; the
// arranged/consolidated cache is the one piece of interior mutability,
// since it is computed lazily from an otherwise-immutable row set.
type Collection struct {
	rows []Row

	mu sync.Mutex
	traceBuilt bool
	trace *arrange.Trace
	consolidated []arrange.Row
	consolidateErr []error
	consolidatedAt ts.Time
}

// NewCollection constructs a Collection from a fixed set of rows. Rows
// need not be sorted; From methods below sort as needed.
func NewCollection(rows []Row) *Collection {
	return &Collection{rows: append([]Row(nil), rows...)}
}

// Empty returns a Collection with no rows.
func Empty() *Collection { return &Collection{} }

// Rows returns the collection's raw stream form: "may contain
// uncompacted +1/-1 pairs".
func (c *Collection) Rows() []Row {
	return append([]Row(nil), c.rows...)
}

// MaxTime returns the latest timestamp among the collection's rows, or
// ts.Zero() if the collection is empty.
func (c *Collection) MaxTime() ts.Time {
	max := ts.Zero()
	for _, r := range c.rows {
		max = ts.Max(max, r.Time)
	}
	return max
}

// Arranged returns the collection indexed by key with a time-versioned
// trace, memoizing the result: "the only form joinable". Building the arrangement is where a collection
// "exchanges by key, achieving correct worker placement" in a real
// multi-worker deployment; in this single-process reference engine the
// exchange is simply the index build below.
func (c *Collection) Arranged() *arrange.Arrangement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arrangedLocked()
}

// arrangedLocked is Arranged's body, for callers that already hold c.mu.
func (c *Collection) arrangedLocked() *arrange.Arrangement {
	if !c.traceBuilt {
		t := arrange.NewTrace()
		for _, r := range sortedByTime(c.rows) {
			t.Insert(r.Key, r.Time, r.Values, r.Diff)
		}
		c.trace = t
		c.traceBuilt = true
	}
	return arrange.NewArrangement(c.trace)
}

// Consolidated returns the collection's net-diff snapshot as of its
// latest timestamp, memoizing the result. Per invariant, a
// well-formed table's net diff per key is 0 or 1; any other net diff
// is reported as a DuplicateKeyError rather than silently dropped.
func (c *Collection) Consolidated() ([]arrange.Row, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	asOf := c.MaxTime()
	if c.consolidated == nil && c.consolidateErr == nil {
		tr := c.arrangedLocked().Trace()
		rows, errs := tr.ConsolidatedAsOf(asOf)
		c.consolidated = rows
		c.consolidateErr = errs
		c.consolidatedAt = asOf
	}
	return c.consolidated, c.consolidateErr
}

// AsOf returns the consolidated snapshot of the collection at a
// specific (possibly earlier) frontier, bypassing the memoized
// "latest" cache. Time-windowed operators (buffer/forget/freeze) and
// the resolver-style incremental driver loop use this directly.
func (c *Collection) AsOf(t ts.Time) ([]arrange.Row, []error) {
	tr := c.Arranged().Trace()
	return tr.ConsolidatedAsOf(t)
}

// TimeGroup is one timestamp's worth of input rows, used by operators
// that process a collection in time order while maintaining
// incremental state (group-by, join, sort, and the time-window
// operators all iterate TimeGroups).
type TimeGroup struct {
	Time ts.Time
	Rows []Row
}

// TimeGroups partitions a collection's raw rows into ascending,
// per-timestamp groups.
func (c *Collection) TimeGroups() []TimeGroup {
	byTime := make(map[ts.Time][]Row)
	var times []ts.Time
	for _, r := range c.rows {
		if _, ok := byTime[r.Time]; !ok {
			times = append(times, r.Time)
		}
		byTime[r.Time] = append(byTime[r.Time], r)
	}
	sort.Slice(times, func(i, j int) bool { return ts.Less(times[i], times[j]) })
	groups := make([]TimeGroup, 0, len(times))
	for _, t := range times {
		groups = append(groups, TimeGroup{Time: t, Rows: byTime[t]})
	}
	return groups
}

func sortedByTime(rows []Row) []Row {
	out := append([]Row(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool { return ts.Less(out[i].Time, out[j].Time) })
	return out
}

// Concat returns a new Collection containing the rows of all inputs,
// implementing concat operator: "stream-union with identity
// timestamps".
func Concat(cs...*Collection) *Collection {
	var rows []Row
	for _, c := range cs {
		rows = append(rows, c.rows...)
	}
	return NewCollection(rows)
}
