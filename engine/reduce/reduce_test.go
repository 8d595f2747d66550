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

package reduce_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/dataflow/engine/persist"
	"github.com/cockroachdb/dataflow/engine/reduce"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
)

// entriesFromInts mirrors this engine's append-only sum scenario: one
// insertion (diff +1) per value, at times 1, 2, 3, ... in order.
func entriesFromInts(vs ...int64) []reduce.Entry {
	es := make([]reduce.Entry, len(vs))
	for i, v := range vs {
		es[i] = reduce.Entry{Value: value.NewInt(v), Time: ts.New(int64(i+1), 0), Diff: 1}
	}
	return es
}

func TestCountNetsDiffs(t *testing.T) {
	entries := []reduce.Entry{
		{Value: value.NewInt(1), Diff: 1},
		{Value: value.NewInt(1), Diff: 1},
		{Value: value.NewInt(1), Diff: -1},
	}
	out, err := reduce.Count{}.Reduce("g", entries)
	require.NoError(t, err)
	n, _ := out.AsInt()
	require.Equal(t, int64(1), n)
}

func TestIntSumAppendOnlyScenario(t *testing.T) {
	// Scenario 1 from this engine's end-to-end tests: k=1 contributes
	// 3 then 7, k=2 contributes 5; group_by(()) sums to 3+5+7=15.
	out, err := reduce.IntSum{}.Reduce("g", entriesFromInts(3, 5, 7))
	require.NoError(t, err)
	n, ok := out.AsInt()
	require.True(t, ok)
	require.Equal(t, int64(15), n)
}

func TestIntSumWeightsByDiff(t *testing.T) {
	entries := []reduce.Entry{
		{Value: value.NewInt(10), Diff: 1},
		{Value: value.NewInt(10), Diff: -1},
		{Value: value.NewInt(4), Diff: 1},
	}
	out, err := reduce.IntSum{}.Reduce("g", entries)
	require.NoError(t, err)
	n, _ := out.AsInt()
	require.Equal(t, int64(4), n)
}

func TestIntSumRejectsNonInt(t *testing.T) {
	entries := []reduce.Entry{{Value: value.NewString("nope"), Diff: 1}}
	_, err := reduce.IntSum{}.Reduce("g", entries)
	require.Error(t, err)
}

func TestFloatSum(t *testing.T) {
	entries := []reduce.Entry{
		{Value: value.NewFloat(1.5), Diff: 1},
		{Value: value.NewFloat(2.5), Diff: 1},
	}
	out, err := reduce.FloatSum{}.Reduce("g", entries)
	require.NoError(t, err)
	f, _ := out.AsFloat()
	require.InDelta(t, 4.0, f, 1e-9)
}

func TestMaxAndMin(t *testing.T) {
	entries := []reduce.Entry{
		{Value: value.NewInt(3), Diff: 1},
		{Value: value.NewInt(9), Diff: 1},
		{Value: value.NewInt(1), Diff: 1},
	}
	maxOut, err := reduce.Max{}.Reduce("g", entries)
	require.NoError(t, err)
	n, _ := maxOut.AsInt()
	require.Equal(t, int64(9), n)

	minOut, err := reduce.Min{}.Reduce("g", entries)
	require.NoError(t, err)
	n, _ = minOut.AsInt()
	require.Equal(t, int64(1), n)
}

func TestMaxRejectsRetraction(t *testing.T) {
	entries := []reduce.Entry{{Value: value.NewInt(1), Diff: -1}}
	_, err := reduce.Max{}.Reduce("g", entries)
	require.Error(t, err)
}

func TestGeneralReducerWeightedAverage(t *testing.T) {
	type acc struct{ sum, n int64 }
	r := reduce.General{
		Init: acc{},
		Combine: func(a any, e reduce.Entry) (any, error) {
			st := a.(acc)
			v, _ := e.Value.AsInt()
			return acc{sum: st.sum + v*e.Diff, n: st.n + e.Diff}, nil
		},
		Finish: func(a any) (value.Value, error) {
			st := a.(acc)
			if st.n == 0 {
				return value.NewFloat(0), nil
			}
			return value.NewFloat(float64(st.sum) / float64(st.n)), nil
		},
	}
	out, err := r.Reduce("g", entriesFromInts(2, 4, 6))
	require.NoError(t, err)
	f, _ := out.AsFloat()
	require.InDelta(t, 4.0, f, 1e-9)
}

func TestStatefulReducerSurvivesAcrossBatches(t *testing.T) {
	storage := persist.NewInMemory()
	r := reduce.Stateful{
		Storage: storage,
		Name:    "sum",
		Combine: func(a any, e reduce.Entry) (any, error) {
			var cur int64
			if a != nil {
				cur = a.(int64)
			}
			v, _ := e.Value.AsInt()
			return cur + v*e.Diff, nil
		},
		Finish: func(a any) (value.Value, error) {
			if a == nil {
				return value.NewInt(0), nil
			}
			return value.NewInt(a.(int64)), nil
		},
		Encode: func(a any) ([]byte, error) {
			var v int64
			if a != nil {
				v = a.(int64)
			}
			return []byte{byte(v)}, nil
		},
		Decode: func(data []byte) (any, error) {
			return int64(data[0]), nil
		},
	}

	out, err := r.Reduce("g", []reduce.Entry{{Value: value.NewInt(3), Diff: 1}})
	require.NoError(t, err)
	n, _ := out.AsInt()
	require.Equal(t, int64(3), n)

	out, err = r.Reduce("g", []reduce.Entry{{Value: value.NewInt(4), Diff: 1}})
	require.NoError(t, err)
	n, _ = out.AsInt()
	require.Equal(t, int64(7), n, "state from the first batch must carry over")
}

func TestLatestPicksMostRecentTime(t *testing.T) {
	storage := persist.NewInMemory()
	r := reduce.Latest{Storage: storage, Name: "x"}

	out, err := r.Reduce("g", []reduce.Entry{
		{Value: value.NewString("a"), Time: ts.New(1, 0), Diff: 1},
		{Value: value.NewString("b"), Time: ts.New(3, 0), Diff: 1},
		{Value: value.NewString("c"), Time: ts.New(2, 0), Diff: 1},
	})
	require.NoError(t, err)
	s, _ := out.AsString()
	require.Equal(t, "b", s)

	// A later batch with only an older time must not override the
	// persisted answer.
	out, err = r.Reduce("g", []reduce.Entry{
		{Value: value.NewString("old"), Time: ts.New(0, 5), Diff: 1},
	})
	require.NoError(t, err)
	s, _ = out.AsString()
	require.Equal(t, "b", s)
}
