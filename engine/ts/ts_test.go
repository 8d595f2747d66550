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

package ts_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/dataflow/engine/ts"
)

func TestZeroOrdersBeforeEverything(t *testing.T) {
	require.True(t, ts.Zero().IsZero())
	require.True(t, ts.Less(ts.Zero(), ts.New(1, 0)))
}

func TestCompareOrdersByNanosThenLogical(t *testing.T) {
	require.True(t, ts.Less(ts.New(1, 5), ts.New(2, 0)))
	require.True(t, ts.Less(ts.New(5, 0), ts.New(5, 1)))
	require.False(t, ts.Less(ts.New(5, 1), ts.New(5, 1)))
}

func TestNeuOrdersStrictlyAfterItsOriginal(t *testing.T) {
	original := ts.New(10, 3)
	neu := original.Neu()

	require.True(t, neu.IsNeu())
	require.False(t, original.IsNeu())
	require.True(t, ts.Less(original, neu))
	require.Equal(t, original.Nanos(), neu.Nanos())
	require.Equal(t, original.Logical(), neu.Logical())
}

func TestNextAdvancesLogicalAtSameInstant(t *testing.T) {
	t0 := ts.New(10, 3)
	t1 := t0.Next()
	require.Equal(t, t0.Nanos(), t1.Nanos())
	require.True(t, ts.Less(t0, t1))
}

func TestMaxAndMin(t *testing.T) {
	a := ts.New(1, 0)
	b := ts.New(2, 0)
	require.Equal(t, b, ts.Max(a, b))
	require.Equal(t, a, ts.Min(a, b))
}

func TestCompareProductBreaksTiesOnIteration(t *testing.T) {
	outer := ts.New(7, 0)
	p0 := ts.Product{Outer: outer, Iteration: 0}
	p1 := ts.Product{Outer: outer, Iteration: 1}
	require.True(t, ts.LessProduct(p0, p1))

	later := ts.Product{Outer: ts.New(8, 0), Iteration: 0}
	require.True(t, ts.LessProduct(p1, later), "a later outer time always orders after, regardless of iteration")
}
