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

	"github.com/cockroachdb/dataflow/engine/dataflowtest"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/value"
)

func TestRestrictKeepsOnlyKeysInOther(t *testing.T) {
	f := dataflowtest.NewFixture()
	k1, k2, k3 := key.ForValues(value.NewInt(1)), key.ForValues(value.NewInt(2)), key.ForValues(value.NewInt(3))
	u := f.MustUniverse(t, []key.Key{k1, k2, k3})
	mask := f.MustUniverse(t, []key.Key{k2, k3})

	out, err := f.Graph.Restrict(u, mask)
	require.NoError(t, err)
	c, err := f.Graph.Universe(out)
	require.NoError(t, err)
	var got []key.Key
	for _, r := range c.Rows() {
		got = append(got, r.Key)
	}
	require.ElementsMatch(t, []key.Key{k2, k3}, got)
}

func TestIntersectKeepsKeysInAll(t *testing.T) {
	f := dataflowtest.NewFixture()
	k1, k2, k3 := key.ForValues(value.NewInt(1)), key.ForValues(value.NewInt(2)), key.ForValues(value.NewInt(3))
	a := f.MustUniverse(t, []key.Key{k1, k2, k3})
	b := f.MustUniverse(t, []key.Key{k2, k3})
	c := f.MustUniverse(t, []key.Key{k3})

	out, err := f.Graph.Intersect(a, b, c)
	require.NoError(t, err)
	coll, err := f.Graph.Universe(out)
	require.NoError(t, err)
	require.Len(t, coll.Rows(), 1)
	require.Equal(t, k3, coll.Rows()[0].Key)
}

func TestIntersectOfNoUniversesIsEmpty(t *testing.T) {
	f := dataflowtest.NewFixture()
	out, err := f.Graph.Intersect()
	require.NoError(t, err)
	c, err := f.Graph.Universe(out)
	require.NoError(t, err)
	require.Empty(t, c.Rows())
}

func TestSubtractDropsKeysInOther(t *testing.T) {
	f := dataflowtest.NewFixture()
	k1, k2 := key.ForValues(value.NewInt(1)), key.ForValues(value.NewInt(2))
	u := f.MustUniverse(t, []key.Key{k1, k2})
	other := f.MustUniverse(t, []key.Key{k2})

	out, err := f.Graph.Subtract(u, other)
	require.NoError(t, err)
	c, err := f.Graph.Universe(out)
	require.NoError(t, err)
	require.Len(t, c.Rows(), 1)
	require.Equal(t, k1, c.Rows()[0].Key)
}

func TestUnionMergesDistinctKeys(t *testing.T) {
	f := dataflowtest.NewFixture()
	k1, k2, k3 := key.ForValues(value.NewInt(1)), key.ForValues(value.NewInt(2)), key.ForValues(value.NewInt(3))
	a := f.MustUniverse(t, []key.Key{k1, k2})
	b := f.MustUniverse(t, []key.Key{k2, k3})

	out, err := f.Graph.Union(a, b)
	require.NoError(t, err)
	c, err := f.Graph.Universe(out)
	require.NoError(t, err)
	rows, _ := c.Consolidated()
	var got []key.Key
	for _, r := range rows {
		got = append(got, r.Key)
	}
	require.ElementsMatch(t, []key.Key{k1, k2, k3}, got, "k2 appears in both inputs but consolidates to one row")
}
