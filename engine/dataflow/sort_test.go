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
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
)

func TestSortOrdersWithinInstance(t *testing.T) {
	f := dataflowtest.NewFixture()
	ka, kb, kc := key.ForValues(value.NewString("a")), key.ForValues(value.NewString("b")), key.ForValues(value.NewString("c"))
	u := f.MustUniverse(t, []key.Key{ka, kb, kc})

	instCol, err := f.Graph.NewColumn(u, []dataflow.Row{
		dataflowtest.Row(ka, ts.Zero(), value.NewInt(0)),
		dataflowtest.Row(kb, ts.Zero(), value.NewInt(0)),
		dataflowtest.Row(kc, ts.Zero(), value.NewInt(0)),
	}, nil)
	require.NoError(t, err)
	sortCol, err := f.Graph.NewColumn(u, []dataflow.Row{
		dataflowtest.Row(ka, ts.Zero(), value.NewInt(30)),
		dataflowtest.Row(kb, ts.Zero(), value.NewInt(10)),
		dataflowtest.Row(kc, ts.Zero(), value.NewInt(20)),
	}, nil)
	require.NoError(t, err)

	prevC, nextC, err := f.Graph.Sort(u, sortCol, instCol)
	require.NoError(t, err)

	prev, _, err := f.Graph.Column(prevC)
	require.NoError(t, err)
	next, _, err := f.Graph.Column(nextC)
	require.NoError(t, err)

	prevByKey := make(map[key.Key]value.Value)
	for _, r := range prev.Rows() {
		prevByKey[r.Key] = r.Values[0]
	}
	nextByKey := make(map[key.Key]value.Value)
	for _, r := range next.Rows() {
		nextByKey[r.Key] = r.Values[0]
	}

	// Order by sort key is b(10), c(20), a(30).
	require.True(t, prevByKey[kb].IsNone())
	got, ok := value.AsPointer[key.Key](nextByKey[kb])
	require.True(t, ok)
	require.Equal(t, kc, got)

	got, ok = value.AsPointer[key.Key](prevByKey[kc])
	require.True(t, ok)
	require.Equal(t, kb, got)
	got, ok = value.AsPointer[key.Key](nextByKey[kc])
	require.True(t, ok)
	require.Equal(t, ka, got)

	got, ok = value.AsPointer[key.Key](prevByKey[ka])
	require.True(t, ok)
	require.Equal(t, kc, got)
	require.True(t, nextByKey[ka].IsNone())
}

func TestSortBreaksTiesOnKey(t *testing.T) {
	f := dataflowtest.NewFixture()
	ka, kb := key.ForValues(value.NewString("a")), key.ForValues(value.NewString("b"))
	u := f.MustUniverse(t, []key.Key{ka, kb})

	instCol, err := f.Graph.NewColumn(u, []dataflow.Row{
		dataflowtest.Row(ka, ts.Zero(), value.NewInt(0)),
		dataflowtest.Row(kb, ts.Zero(), value.NewInt(0)),
	}, nil)
	require.NoError(t, err)
	// Identical sort keys: ordering must fall back to the row's own key,
	// not be left nondeterministic.
	sortCol, err := f.Graph.NewColumn(u, []dataflow.Row{
		dataflowtest.Row(ka, ts.Zero(), value.NewInt(5)),
		dataflowtest.Row(kb, ts.Zero(), value.NewInt(5)),
	}, nil)
	require.NoError(t, err)

	prevC, nextC, err := f.Graph.Sort(u, sortCol, instCol)
	require.NoError(t, err)
	prev, _, err := f.Graph.Column(prevC)
	require.NoError(t, err)
	next, _, err := f.Graph.Column(nextC)
	require.NoError(t, err)

	first, second := ka, kb
	if kb.Less(ka) {
		first, second = kb, ka
	}

	prevByKey := make(map[key.Key]value.Value)
	for _, r := range prev.Rows() {
		prevByKey[r.Key] = r.Values[0]
	}
	nextByKey := make(map[key.Key]value.Value)
	for _, r := range next.Rows() {
		nextByKey[r.Key] = r.Values[0]
	}

	require.True(t, prevByKey[first].IsNone())
	got, ok := value.AsPointer[key.Key](nextByKey[first])
	require.True(t, ok)
	require.Equal(t, second, got)
	require.True(t, nextByKey[second].IsNone())
}
