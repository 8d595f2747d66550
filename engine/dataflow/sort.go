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
	"sort"

	"github.com/cockroachdb/dataflow/engine/dferrors"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/value"
)

// Sort computes, for every key in universe, the key of its predecessor
// and successor under instanceColumn/keyColumn ordering, per this engine's
// sort operator: "within each group named by instance_column, order
// rows by key_column and emit (prev, next) pointer columns". A row with
// no predecessor/successor in its group gets value.None in that slot.
func (g *Graph) Sort(universe UniverseHandle, keyColumn, instanceColumn ColumnHandle) (prev, next ColumnHandle, err error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, 0, err
	}
	keyCol, ku, err := g.Column(keyColumn)
	if err != nil {
		return 0, 0, err
	}
	instCol, iu, err := g.Column(instanceColumn)
	if err != nil {
		return 0, 0, err
	}
	if ku != universe || iu != universe {
		return 0, 0, &dferrors.UniverseMismatchError{Left: int(universe), Right: int(ku)}
	}

	sortVal := snapshotByKey(keyCol)
	instVal := snapshotByKey(instCol)

	groups := make(map[string][]key.Key)
	for _, r := range base.Rows() {
		inst := instVal[r.Key].String()
		groups[inst] = append(groups[inst], r.Key)
	}

	prevOf := make(map[key.Key]value.Value)
	nextOf := make(map[key.Key]value.Value)
	for _, ks := range groups {
		sort.Slice(ks, func(i, j int) bool {
			if c := value.Compare(sortVal[ks[i]], sortVal[ks[j]]); c != 0 {
				return c < 0
			}
			// Tie-break on the row's own key so ordering stays
			// deterministic when sort_key collides within an instance.
			return ks[i].Less(ks[j])
		})
		for i, k := range ks {
			if i > 0 {
				prevOf[k] = value.NewPointer(ks[i-1])
			} else {
				prevOf[k] = value.None
			}
			if i < len(ks)-1 {
				nextOf[k] = value.NewPointer(ks[i+1])
			} else {
				nextOf[k] = value.None
			}
		}
	}

	var prevRows, nextRows []Row
	for _, r := range base.Rows() {
		prevRows = append(prevRows, Row{Key: r.Key, Values: []value.Value{prevOf[r.Key]}, Time: r.Time, Diff: r.Diff})
		nextRows = append(nextRows, Row{Key: r.Key, Values: []value.Value{nextOf[r.Key]}, Time: r.Time, Diff: r.Diff})
	}
	prevH := g.newColumnFromCollection(universe, NewCollection(prevRows), nil)
	nextH := g.newColumnFromCollection(universe, NewCollection(nextRows), nil)
	return prevH, nextH, nil
}

// snapshotByKey returns the consolidated, as-of-latest single value for
// every key in c, for operators (sort, update, ix) that need a plain
// key->value map rather than a time-ordered stream.
func snapshotByKey(c *Collection) map[key.Key]value.Value {
	rows, _ := c.Consolidated()
	out := make(map[key.Key]value.Value, len(rows))
	for _, r := range rows {
		out[r.Key] = firstElem(r.Values)
	}
	return out
}
