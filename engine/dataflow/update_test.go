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

func TestUpdateCellsOverlaysMatchingKeys(t *testing.T) {
	f := dataflowtest.NewFixture()
	k1, k2 := key.ForValues(value.NewInt(1)), key.ForValues(value.NewInt(2))
	u := f.MustUniverse(t, []key.Key{k1, k2})
	base, err := f.Graph.NewColumn(u, []dataflow.Row{
		dataflowtest.Row(k1, ts.Zero(), value.NewString("old1")),
		dataflowtest.Row(k2, ts.Zero(), value.NewString("old2")),
	}, nil)
	require.NoError(t, err)

	updU := f.MustUniverse(t, []key.Key{k1})
	updates, err := f.Graph.NewColumn(updU, []dataflow.Row{
		dataflowtest.Row(k1, ts.New(1, 0), value.NewString("new1")),
	}, nil)
	require.NoError(t, err)

	errLog := f.Graph.NewErrorLog()
	out, err := f.Graph.UpdateCells(base, updates, errLog)
	require.NoError(t, err)

	cc, _, err := f.Graph.Column(out)
	require.NoError(t, err)
	got := make(map[key.Key]string)
	for _, r := range cc.Rows() {
		s, _ := r.Values[0].AsString()
		got[r.Key] = s
	}
	require.Equal(t, "new1", got[k1])
	require.Equal(t, "old2", got[k2])
}

func TestUpdateCellsOnMissingRowLogsError(t *testing.T) {
	f := dataflowtest.NewFixture()
	k1 := key.ForValues(value.NewInt(1))
	kMissing := key.ForValues(value.NewInt(99))
	u := f.MustUniverse(t, []key.Key{k1})
	base, err := f.Graph.NewColumn(u, []dataflow.Row{
		dataflowtest.Row(k1, ts.Zero(), value.NewString("old")),
	}, nil)
	require.NoError(t, err)

	updU := f.MustUniverse(t, []key.Key{kMissing})
	updates, err := f.Graph.NewColumn(updU, []dataflow.Row{
		dataflowtest.Row(kMissing, ts.New(1, 0), value.NewString("ghost")),
	}, nil)
	require.NoError(t, err)

	errLog := f.Graph.NewErrorLog()
	_, err = f.Graph.UpdateCells(base, updates, errLog)
	require.NoError(t, err)

	errTable, err := f.Graph.ErrorLogTable(errLog)
	require.NoError(t, err)
	errCol, _, _, err := f.Graph.Table(errTable)
	require.NoError(t, err)
	require.Len(t, errCol.Rows(), 1)
}

func TestUpdateRowsKeepsOneRowPerOriginalKey(t *testing.T) {
	f := dataflowtest.NewFixture()
	k1, k2 := key.ForValues(value.NewInt(1)), key.ForValues(value.NewInt(2))
	original := f.MustUniverse(t, []key.Key{k1, k2})
	updates := f.MustUniverse(t, []key.Key{k1})

	errLog := f.Graph.NewErrorLog()
	out, err := f.Graph.UpdateRows(original, updates, errLog)
	require.NoError(t, err)

	c, err := f.Graph.Universe(out)
	require.NoError(t, err)
	require.Len(t, c.Rows(), 2)
}
