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

package dataflow_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/dataflow/engine/dataflow"
	"github.com/cockroachdb/dataflow/engine/dataflowtest"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/reduce"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
)

// TestGroupBySumsByGroup uses the rows of this engine's append-only sum
// scenario, {(k=1,v=3),(k=2,v=5),(k=1,v=7)}, grouped by k: group 1 sums
// to 10 (3+7) and group 2 to 5.
func TestGroupBySumsByGroup(t *testing.T) {
	f := dataflowtest.NewFixture()
	k1a := key.ForValues(value.NewInt(1), value.NewInt(0))
	k2 := key.ForValues(value.NewInt(2), value.NewInt(0))
	k1b := key.ForValues(value.NewInt(1), value.NewInt(1))
	u := f.MustUniverse(t, []key.Key{k1a, k2, k1b})

	groupCol, err := f.Graph.NewColumn(u, []dataflow.Row{
		dataflowtest.Row(k1a, ts.Zero(), value.NewInt(1)),
		dataflowtest.Row(k2, ts.Zero(), value.NewInt(2)),
		dataflowtest.Row(k1b, ts.Zero(), value.NewInt(1)),
	}, nil)
	require.NoError(t, err)

	valCol, err := f.Graph.NewColumn(u, []dataflow.Row{
		dataflowtest.Row(k1a, ts.Zero(), value.NewInt(3)),
		dataflowtest.Row(k2, ts.Zero(), value.NewInt(5)),
		dataflowtest.Row(k1b, ts.Zero(), value.NewInt(7)),
	}, nil)
	require.NoError(t, err)

	_, cols, err := f.Graph.GroupBy(u, []dataflow.ColumnHandle{groupCol}, []dataflow.Reduction{
		{Column: valCol, Reducer: reduce.IntSum{}},
	})
	require.NoError(t, err)
	require.Len(t, cols, 1)

	sumCol, _, err := f.Graph.Column(cols[0])
	require.NoError(t, err)

	// There must be exactly two groups (value 1 and value 2); their
	// sums are 10 (3+7) and 5.
	var sums []int64
	for _, r := range sumCol.Rows() {
		n, _ := r.Values[0].AsInt()
		sums = append(sums, n)
	}
	require.ElementsMatch(t, []int64{10, 5}, sums)
}

func TestGroupByCount(t *testing.T) {
	f := dataflowtest.NewFixture()
	ka := key.ForValues(value.NewInt(1))
	kb := key.ForValues(value.NewInt(2))
	kc := key.ForValues(value.NewInt(3))
	u := f.MustUniverse(t, []key.Key{ka, kb, kc})

	groupCol, err := f.Graph.NewColumn(u, []dataflow.Row{
		dataflowtest.Row(ka, ts.Zero(), value.NewString("x")),
		dataflowtest.Row(kb, ts.Zero(), value.NewString("x")),
		dataflowtest.Row(kc, ts.Zero(), value.NewString("y")),
	}, nil)
	require.NoError(t, err)

	_, cols, err := f.Graph.GroupBy(u, []dataflow.ColumnHandle{groupCol}, []dataflow.Reduction{
		{Column: groupCol, Reducer: reduce.Count{}},
	})
	require.NoError(t, err)
	countCol, _, err := f.Graph.Column(cols[0])
	require.NoError(t, err)

	var counts []int64
	for _, r := range countCol.Rows() {
		n, _ := r.Values[0].AsInt()
		counts = append(counts, n)
	}
	require.ElementsMatch(t, []int64{2, 1}, counts)
}
