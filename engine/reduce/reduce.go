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

// Package reduce implements the reducer library driving the group_by
// operator : per-group aggregation functions
// ranging from simple semigroups (sum, count) through append-only
// extremum trackers to fully stateful, persisted accumulators. It is
// grounded on internal/staging/stage aggregation helpers
// (metrics.go accumulates counters across a batch of mutations the same
// way a semigroup reducer folds a batch of diffs) and, for exact
// decimal sums, on github.com/cockroachdb/apd/v3, the arbitrary
// precision decimal library SQL type system is built on.
package reduce

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/dataflow/engine/persist"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
	"github.com/pkg/errors"
)

// Entry is one contribution to a reduction: a row's aggregated value,
// its time, and its current (possibly negative, for a retraction)
// multiplicity.
type Entry struct {
	Value value.Value
	Time ts.Time
	Diff int64
}

// Reducer computes a single output Value from a group's Entries.
// Implementations vary in how much state they need to retain between
// calls; Semigroup- and General-based reducers are pure functions of
// the current batch, while Stateful/Earliest/Latest consult persisted
// state so that a restart resumes correctly.
type Reducer interface {
	Reduce(groupKey string, entries []Entry) (value.Value, error)
}

// --- Semigroup reducers: associative, no retraction bookkeeping beyond
// tracking the current net sum/count. ---

// Count returns the net multiplicity of the group.
type Count struct{}

func (Count) Reduce(_ string, entries []Entry) (value.Value, error) {
	var n int64
	for _, e := range entries {
		n += e.Diff
	}
	return value.NewInt(n), nil
}

// IntSum sums Int-valued entries weighted by diff, using apd for
// overflow-safe accumulation -- the same decimal type SQL
// layer uses for aggregate pushdown.
type IntSum struct{}

func (IntSum) Reduce(_ string, entries []Entry) (value.Value, error) {
	total := new(apd.Decimal)
	ctx := apd.BaseContext
	for _, e := range entries {
		i, ok := e.Value.AsInt()
		if !ok {
			return value.None, &unsupportedEntryError{op: "int_sum", kind: e.Value.Kind().String()}
		}
		term := apd.New(i, 0)
		weighted := apd.New(e.Diff, 0)
		if _, err := ctx.Mul(term, term, weighted); err != nil {
			return value.None, errors.WithStack(err)
		}
		if _, err := ctx.Add(total, total, term); err != nil {
			return value.None, errors.WithStack(err)
		}
	}
	i64, err := total.Int64()
	if err != nil {
		return value.None, errors.Wrap(err, "int_sum overflow")
	}
	return value.NewInt(i64), nil
}

// FloatSum sums Float-valued entries weighted by diff.
type FloatSum struct{}

func (FloatSum) Reduce(_ string, entries []Entry) (value.Value, error) {
	var total float64
	for _, e := range entries {
		f, ok := e.Value.AsFloat()
		if !ok {
			return value.None, &unsupportedEntryError{op: "float_sum", kind: e.Value.Kind().String()}
		}
		total += f * float64(e.Diff)
	}
	return value.NewFloat(total), nil
}

// ArraySum elementwise-sums IntArray or FloatArray entries weighted by
// diff; all entries in a group must share the same shape.
type ArraySum struct{}

func (ArraySum) Reduce(_ string, entries []Entry) (value.Value, error) {
	var intAcc []int64
	var floatAcc []float64
	var shape []int
	isFloat := false
	for _, e := range entries {
		switch e.Value.Kind() {
		case value.KindIntArray:
			s, data, _ := e.Value.AsIntArray()
			if intAcc == nil {
				shape = s
				intAcc = make([]int64, len(data))
			}
			for i, d := range data {
				intAcc[i] += d * e.Diff
			}
		case value.KindFloatArray:
			isFloat = true
			s, data, _ := e.Value.AsFloatArray()
			if floatAcc == nil {
				shape = s
				floatAcc = make([]float64, len(data))
			}
			for i, d := range data {
				floatAcc[i] += d * float64(e.Diff)
			}
		default:
			return value.None, &unsupportedEntryError{op: "array_sum", kind: e.Value.Kind().String()}
		}
	}
	if isFloat {
		return value.NewFloatArray(shape, floatAcc), nil
	}
	return value.NewIntArray(shape, intAcc), nil
}

// --- Append-only extremum reducers: correct only when the group never
// observes a retraction.

// Max returns the largest value in the group under value.Compare.
type Max struct{}

func (Max) Reduce(_ string, entries []Entry) (value.Value, error) { return extremum(entries, 1) }

// Min returns the smallest value in the group under value.Compare.
type Min struct{}

func (Min) Reduce(_ string, entries []Entry) (value.Value, error) { return extremum(entries, -1) }

func extremum(entries []Entry, want int) (value.Value, error) {
	var best value.Value
	found := false
	for _, e := range entries {
		if e.Diff < 0 {
			return value.None, errors.WithStack(fmt.Errorf("extremum reducer saw a retraction: append-only violated"))
		}
		if !found || value.Compare(e.Value, best) == want {
			best = e.Value
			found = true
		}
	}
	if !found {
		return value.None, nil
	}
	return best, nil
}

// ArgEntry pairs a reduced comparison value with the row key it came
// from, for ArgMin/ArgMax.
type ArgEntry struct {
	Entry
	Arg value.Value // typically a Pointer value identifying the source row
}

// ArgMax returns the Arg of the entry with the largest Value.
type ArgMax struct{}

func (ArgMax) ReduceArgs(entries []ArgEntry) (value.Value, error) { return argExtremum(entries, 1) }

// ArgMin returns the Arg of the entry with the smallest Value.
type ArgMin struct{}

func (ArgMin) ReduceArgs(entries []ArgEntry) (value.Value, error) { return argExtremum(entries, -1) }

func argExtremum(entries []ArgEntry, want int) (value.Value, error) {
	var bestVal, bestArg value.Value
	found := false
	for _, e := range entries {
		if e.Diff < 0 {
			return value.None, errors.WithStack(fmt.Errorf("argextremum reducer saw a retraction: append-only violated"))
		}
		if !found || value.Compare(e.Value, bestVal) == want {
			bestVal, bestArg = e.Value, e.Arg
			found = true
		}
	}
	if !found {
		return value.None, nil
	}
	return bestArg, nil
}

// Any returns an arbitrary (but deterministic, smallest under Compare)
// value from the group.
type Any struct{}

func (Any) Reduce(_ string, entries []Entry) (value.Value, error) { return extremum(entries, -1) }

// --- General two-phase reducer ---

// CombineFn folds one Entry into an accumulator of type any, returning
// the updated accumulator.
type CombineFn func(acc any, e Entry) (any, error)

// FinishFn extracts the output Value from a finished accumulator.
type FinishFn func(acc any) (value.Value, error)

// General implements "general two-phase reducer": a local
// CombineFn folds entries into an accumulator, and FinishFn extracts
// the externally visible value, so that arbitrary non-built-in
// aggregations (e.g. a user's weighted average) can be expressed
// without writing a new Reducer type.
type General struct {
	Init any
	Combine CombineFn
	Finish FinishFn
}

func (r General) Reduce(_ string, entries []Entry) (value.Value, error) {
	acc := r.Init
	var err error
	for _, e := range entries {
		acc, err = r.Combine(acc, e)
		if err != nil {
			return value.None, err
		}
	}
	return r.Finish(acc)
}

// --- Stateful persisted reducers ---

// Stateful is a closure-based reducer whose accumulator survives across
// separate Reduce calls (distinct batches arriving at distinct times)
// by round-tripping through a persist.Storage memo entry: the
// reducer's internal state is persisted, not just its output.
type Stateful struct {
	Storage persist.Storage
	Name string // distinguishes this reducer's memo keys from others sharing a Storage
	Combine CombineFn
	Finish FinishFn
	Encode func(acc any) ([]byte, error)
	Decode func(data []byte) (any, error)
}

func (r Stateful) Reduce(groupKey string, entries []Entry) (value.Value, error) {
	memoKey := r.Name + "/" + groupKey
	var acc any
	if data, ok, err := r.Storage.Get(memoKey); err != nil {
		return value.None, err
	} else if ok {
		acc, err = r.Decode(data)
		if err != nil {
			return value.None, err
		}
	}
	var err error
	for _, e := range entries {
		acc, err = r.Combine(acc, e)
		if err != nil {
			return value.None, err
		}
	}
	data, err := r.Encode(acc)
	if err != nil {
		return value.None, err
	}
	if err := r.Storage.Put(memoKey, data); err != nil {
		return value.None, err
	}
	return r.Finish(acc)
}

// --- Earliest / Latest ---

// Earliest returns the value carried by the entry with the smallest
// Time seen for the group across all batches, persisting its choice so
// a later batch with only newer times does not change the answer.
type Earliest struct {
	Storage persist.Storage
	Name string
}

type earliestLatestState struct {
	Nanos int64
	Logical int32
	Best value.Value
}

func (r Earliest) Reduce(groupKey string, entries []Entry) (value.Value, error) {
	return earliestOrLatest(r.Storage, "earliest/"+r.Name, groupKey, entries, -1)
}

// Latest returns the value carried by the entry with the largest Time
// seen for the group across all batches.
type Latest struct {
	Storage persist.Storage
	Name string
}

func (r Latest) Reduce(groupKey string, entries []Entry) (value.Value, error) {
	return earliestOrLatest(r.Storage, "latest/"+r.Name, groupKey, entries, 1)
}

func earliestOrLatest(storage persist.Storage, prefix, groupKey string, entries []Entry, want int) (value.Value, error) {
	memoKey := prefix + "/" + groupKey
	best := value.None
	bestTime := ts.Zero()
	haveBest := false
	if data, ok, err := storage.Get(memoKey); err != nil {
		return value.None, err
	} else if ok {
		var st earliestLatestState
		if err := decodeGob(data, &st); err != nil {
			return value.None, err
		}
		bestTime = ts.New(st.Nanos, st.Logical)
		best = st.Best
		haveBest = true
	}
	for _, e := range entries {
		if e.Diff <= 0 {
			continue
		}
		cmp := ts.Compare(e.Time, bestTime)
		if !haveBest || cmp*want > 0 {
			best = e.Value
			bestTime = e.Time
			haveBest = true
		}
	}
	data, err := encodeGob(earliestLatestState{Nanos: bestTime.Nanos(), Logical: bestTime.Logical(), Best: best})
	if err != nil {
		return value.None, err
	}
	if err := storage.Put(memoKey, data); err != nil {
		return value.None, err
	}
	return best, nil
}

type unsupportedEntryError struct {
	op string
	kind string
}

func (e *unsupportedEntryError) Error() string {
	return fmt.Sprintf("reducer %q cannot accumulate a value of kind %s", e.op, e.kind)
}
