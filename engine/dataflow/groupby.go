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

package dataflow

import (
	"github.com/cockroachdb/dataflow/engine/dferrors"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/reduce"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
)

// Reduction pairs a source column with the reducer applied to its
// values within each group, for GroupBy's variadic reducer list.
type Reduction struct {
	Column ColumnHandle
	Reducer reduce.Reducer
}

// GroupBy partitions universe's rows into groups sharing the same
// groupingColumns tuple, and for each group applies each of
// reductions's reducers to the corresponding column's values, per
// group_by operator. The output universe has one row per
// distinct group, keyed deterministically from the group's values so
// that group identity is stable across incremental recomputation.
func (g *Graph) GroupBy(universe UniverseHandle, groupingColumns []ColumnHandle, reductions []Reduction) (UniverseHandle, []ColumnHandle, error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, nil, err
	}

	groupCols := make([]*Collection, len(groupingColumns))
	for i, h := range groupingColumns {
		c, u, err := g.Column(h)
		if err != nil {
			return 0, nil, err
		}
		if u != universe {
			return 0, nil, &dferrors.UniverseMismatchError{Left: int(universe), Right: int(u)}
		}
		groupCols[i] = c
	}
	groupValsByKey := tupleByKey(groupCols)

	reductionCols := make([]*Collection, len(reductions))
	for i, red := range reductions {
		c, u, err := g.Column(red.Column)
		if err != nil {
			return 0, nil, err
		}
		if u != universe {
			return 0, nil, &dferrors.UniverseMismatchError{Left: int(universe), Right: int(u)}
		}
		reductionCols[i] = c
	}

	type groupState struct {
		groupKey key.Key
		groupValue []value.Value
		entries [][]reduce.Entry // one slice of entries per reduction
	}
	groups := make(map[key.Key]*groupState)
	var order []key.Key

	for _, r := range base.Rows() {
		gv := groupValsByKey[r.Key]
		gk := key.ForValues(gv...)
		st, ok := groups[gk]
		if !ok {
			st = &groupState{groupKey: gk, groupValue: gv, entries: make([][]reduce.Entry, len(reductions))}
			groups[gk] = st
			order = append(order, gk)
		}
		for i, rc := range reductionCols {
			for _, rr := range rc.Rows() {
				if rr.Key == r.Key && rr.Time == r.Time {
					st.entries[i] = append(st.entries[i], reduce.Entry{Value: firstElem(rr.Values), Time: rr.Time, Diff: rr.Diff})
				}
			}
		}
	}

	var universeRows []Row
	outCols := make([][]Row, len(reductions))
	for _, gk := range order {
		st := groups[gk]
		universeRows = append(universeRows, Row{Key: gk, Diff: 1})
		for i, red := range reductions {
			out, err := red.Reducer.Reduce(gk.String(), st.entries[i])
			if err != nil {
				g.logError(g.currentErrorLog(), gk, ts.Zero(), dferrors.ErrorInGroupBy)
				out = value.NewError(err.Error())
			}
			outCols[i] = append(outCols[i], Row{Key: gk, Values: []value.Value{out}, Diff: 1})
		}
	}

	u := g.newUniverseFromCollection(NewCollection(universeRows))
	handles := make([]ColumnHandle, len(reductions))
	for i, rows := range outCols {
		handles[i] = g.newColumnFromCollection(u, NewCollection(rows), nil)
	}
	return u, handles, nil
}
