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

package iterate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/dataflow/engine/iterate"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/value"
)

func TestRunRejectsTooSmallLimit(t *testing.T) {
	_, err := iterate.Run(nil, func(delta []iterate.Row) ([]iterate.Row, error) { return nil, nil }, 1)
	require.Error(t, err)
}

// TestRunConvergesWhenBodyStopsProducingChanges models a loop that adds
// one to a counter key until it reaches a ceiling, then emits no
// further delta -- the most basic fixed-point shape.
func TestRunConvergesWhenBodyStopsProducingChanges(t *testing.T) {
	k := key.ForValues(value.NewString("counter"))
	const ceiling = int64(3)

	body := func(delta []iterate.Row) ([]iterate.Row, error) {
		for _, r := range delta {
			n, _ := r.Values[0].AsInt()
			if n >= ceiling {
				return nil, nil
			}
			return []iterate.Row{{Key: k, Values: []value.Value{value.NewInt(n + 1)}, Diff: 1}}, nil
		}
		return nil, nil
	}

	result, err := iterate.Run([]iterate.Row{{Key: k, Values: []value.Value{value.NewInt(0)}, Diff: 1}}, body, 10)
	require.NoError(t, err)
	require.True(t, result.Converged)
	require.Less(t, result.Rounds, 10)
}

func TestRunStopsAtRoundLimitWhenNotConverged(t *testing.T) {
	k := key.ForValues(value.NewString("forever"))
	body := func(delta []iterate.Row) ([]iterate.Row, error) {
		// Always emits a fresh +1 row for the key, so every round's
		// delta is nonzero and the loop never settles on its own.
		return []iterate.Row{{Key: k, Values: []value.Value{value.NewInt(1)}, Diff: 1}}, nil
	}

	result, err := iterate.Run([]iterate.Row{{Key: k, Values: []value.Value{value.NewInt(0)}, Diff: 1}}, body, 4)
	require.NoError(t, err)
	require.False(t, result.Converged)
	require.Equal(t, 3, result.Rounds, "limit=4 caps a non-converging loop at limit-1 body rounds")
}

// TestRunWithLimitTwoRunsExactlyOneRound covers spec.md §8's boundary
// property directly: "with limit=2 runs exactly one body iteration."
func TestRunWithLimitTwoRunsExactlyOneRound(t *testing.T) {
	k := key.ForValues(value.NewString("forever"))
	calls := 0
	body := func(delta []iterate.Row) ([]iterate.Row, error) {
		calls++
		return []iterate.Row{{Key: k, Values: []value.Value{value.NewInt(1)}, Diff: 1}}, nil
	}

	result, err := iterate.Run([]iterate.Row{{Key: k, Values: []value.Value{value.NewInt(0)}, Diff: 1}}, body, 2)
	require.NoError(t, err)
	require.False(t, result.Converged)
	require.Equal(t, 1, result.Rounds)
	require.Equal(t, 1, calls, "limit=2 must invoke body exactly once")
}

func TestRunPropagatesBodyError(t *testing.T) {
	_, err := iterate.Run(nil, func(delta []iterate.Row) ([]iterate.Row, error) {
		return nil, errBody
	}, 2)
	require.ErrorIs(t, err, errBody)
}

type errTest string

func (e errTest) Error() string { return string(e) }

var errBody = errTest("body failed")
