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
	"github.com/cockroachdb/dataflow/engine/dferrors"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
)

func TestFilterKeepsOnlyTruthyRows(t *testing.T) {
	f := dataflowtest.NewFixture()
	k1, k2, k3 := key.ForValues(value.NewInt(1)), key.ForValues(value.NewInt(2)), key.ForValues(value.NewInt(3))
	u := f.MustUniverse(t, []key.Key{k1, k2, k3})

	col, err := f.Graph.NewColumn(u, []dataflow.Row{
		dataflowtest.Row(k1, ts.Zero(), value.NewBool(true)),
		dataflowtest.Row(k2, ts.Zero(), value.NewBool(false)),
		dataflowtest.Row(k3, ts.Zero(), value.NewBool(true)),
	}, nil)
	require.NoError(t, err)

	errLog := f.Graph.NewErrorLog()
	filtered, err := f.Graph.Filter(u, col, errLog)
	require.NoError(t, err)

	out, err := f.Graph.Universe(filtered)
	require.NoError(t, err)
	rows := out.Rows()
	keys := make(map[key.Key]bool)
	for _, r := range rows {
		keys[r.Key] = true
	}
	require.True(t, keys[k1])
	require.False(t, keys[k2])
	require.True(t, keys[k3])
	require.Len(t, rows, 2)
}

func TestFilterRoutesErrorValuesToTheLog(t *testing.T) {
	f := dataflowtest.NewFixture()
	k1 := key.ForValues(value.NewInt(1))
	u := f.MustUniverse(t, []key.Key{k1})
	col, err := f.Graph.NewColumn(u, []dataflow.Row{
		dataflowtest.Row(k1, ts.Zero(), value.NewError("boom")),
	}, nil)
	require.NoError(t, err)

	errLog := f.Graph.NewErrorLog()
	filtered, err := f.Graph.Filter(u, col, errLog)
	require.NoError(t, err)

	out, err := f.Graph.Universe(filtered)
	require.NoError(t, err)
	require.Empty(t, out.Rows())

	errTable, err := f.Graph.ErrorLogTable(errLog)
	require.NoError(t, err)
	errCol, _, _, err := f.Graph.Table(errTable)
	require.NoError(t, err)
	require.Len(t, errCol.Rows(), 1)
}

func TestAssertAppendOnlyPassesThroughInsertOnlyUniverse(t *testing.T) {
	f := dataflowtest.NewFixture()
	k1 := key.ForValues(value.NewInt(1))
	u, err := f.Graph.NewUniverse([]key.Key{k1})
	require.NoError(t, err)

	_, err = f.Graph.AssertAppendOnly(u)
	require.NoError(t, err, "a universe with only insertions passes through")
}

func TestAssertAppendOnlyRejectsRetraction(t *testing.T) {
	f := dataflowtest.NewFixture()
	k1 := key.ForValues(value.NewInt(1))
	u, err := f.Graph.NewUniverse([]key.Key{k1})
	require.NoError(t, err)

	// ForgetImmediately synthesizes a -1 retraction for every row it
	// sees, giving AssertAppendOnly something to reject.
	forgotten, err := f.Graph.ForgetImmediately(u)
	require.NoError(t, err)

	_, err = f.Graph.AssertAppendOnly(forgotten)
	require.ErrorIs(t, err, dferrors.ErrExpectedAppendOnly)
}
