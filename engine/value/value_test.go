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

package value_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/dataflow/engine/value"
)

func TestKindsAreTotallyOrdered(t *testing.T) {
	none := value.None
	i := value.NewInt(1)
	s := value.NewString("a")

	require.True(t, value.Compare(none, i) < 0)
	require.True(t, value.Compare(i, s) < 0)
	require.True(t, value.Compare(s, i) > 0)
	require.Equal(t, 0, value.Compare(i, value.NewInt(1)))
}

func TestIntCompare(t *testing.T) {
	require.True(t, value.Compare(value.NewInt(1), value.NewInt(2)) < 0)
	require.True(t, value.Compare(value.NewInt(2), value.NewInt(1)) > 0)
	require.True(t, value.Equal(value.NewInt(5), value.NewInt(5)))
}

func TestTupleCompareIsLexicographic(t *testing.T) {
	a := value.NewTuple(value.NewInt(1), value.NewString("a"))
	b := value.NewTuple(value.NewInt(1), value.NewString("b"))
	c := value.NewTuple(value.NewInt(2), value.NewString("a"))

	require.True(t, value.Compare(a, b) < 0)
	require.True(t, value.Compare(a, c) < 0)
	require.True(t, value.Equal(a, a))
}

func TestErrorSortsLastAmongKinds(t *testing.T) {
	err := value.NewError("boom")
	require.True(t, value.Compare(value.NewInt(1), err) < 0)
	require.True(t, err.IsError())
	require.Equal(t, "boom", err.ErrorMessage())
}

func TestAsIntRoundTrip(t *testing.T) {
	v := value.NewInt(42)
	got, ok := v.AsInt()
	require.True(t, ok)
	require.Equal(t, int64(42), got)

	_, ok = value.NewString("x").AsInt()
	require.False(t, ok)
}

func TestArrayCompareByShapeThenElements(t *testing.T) {
	a := value.NewIntArray([]int{2}, []int64{1, 2})
	b := value.NewIntArray([]int{2}, []int64{1, 3})
	c := value.NewIntArray([]int{3}, []int64{1, 2, 3})

	require.True(t, value.Compare(a, b) < 0)
	require.True(t, value.Compare(a, c) != 0)

	shape, data, ok := a.AsIntArray()
	require.True(t, ok)
	require.Equal(t, []int{2}, shape)
	require.Equal(t, []int64{1, 2}, data)
}

func TestHashIsDeterministicAndSensitiveToValue(t *testing.T) {
	h1 := value.NewInt(7).Hash(0)
	h2 := value.NewInt(7).Hash(0)
	h3 := value.NewInt(8).Hash(0)
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
}

func TestGobRoundTrip(t *testing.T) {
	for _, v := range []value.Value{
		value.None,
		value.NewBool(true),
		value.NewInt(-5),
		value.NewFloat(3.25),
		value.NewString("hello"),
		value.NewTuple(value.NewInt(1), value.NewString("x")),
		value.NewError("bad"),
	} {
		enc, err := v.GobEncode()
		require.NoError(t, err)
		var out value.Value
		require.NoError(t, out.GobDecode(enc))
		require.True(t, value.Equal(v, out), "round trip mismatch for %v", v)
	}
}
