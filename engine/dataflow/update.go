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
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
)

// UpdateRows overlays updates onto original wholesale: any key present
// in updates replaces the corresponding row of original, per this engine's
// update_rows operator. A key in updates absent from original is
// reported via errLog as UpdatingNonExistingRowError and otherwise
// ignored (this mirrors "updating a row the target table
// never staged" resolver fault, logged but not fatal).
func (g *Graph) UpdateRows(original, updates UniverseHandle, errLog ErrorLogHandle) (UniverseHandle, error) {
	baseC, err := g.Universe(original)
	if err != nil {
		return 0, err
	}
	updC, err := g.Universe(updates)
	if err != nil {
		return 0, err
	}
	baseRows, _ := baseC.Consolidated()
	updRows, _ := updC.Consolidated()

	baseKeys := make(map[key.Key]bool, len(baseRows))
	for _, r := range baseRows {
		baseKeys[r.Key] = true
	}
	updKeys := make(map[key.Key]ts.Time, len(updRows))
	for _, r := range updRows {
		updKeys[r.Key] = r.LatestTime
		if !baseKeys[r.Key] {
			g.logError(errLog, r.Key, r.LatestTime, &dferrors.UpdatingNonExistingRowError{Key: r.Key})
		}
	}

	var out []Row
	for _, r := range baseRows {
		if _, ok := updKeys[r.Key]; ok {
			out = append(out, Row{Key: r.Key, Time: updKeys[r.Key], Diff: 1})
			continue
		}
		out = append(out, Row{Key: r.Key, Time: r.LatestTime, Diff: 1})
	}
	return g.newUniverseFromCollection(NewCollection(out)), nil
}

// UpdateCells overlays a single column's values from updates onto base,
// leaving rows whose key is absent from updates unchanged, per this engine's
// update_cells operator.
func (g *Graph) UpdateCells(base, updates ColumnHandle, errLog ErrorLogHandle) (ColumnHandle, error) {
	baseCol, universe, err := g.Column(base)
	if err != nil {
		return 0, err
	}
	updCol, _, err := g.Column(updates)
	if err != nil {
		return 0, err
	}

	baseVals := snapshotByKey(baseCol)
	updVals := snapshotByKey(updCol)

	updTimes := make(map[key.Key]ts.Time)
	for _, r := range updCol.Rows() {
		if ts.Compare(r.Time, updTimes[r.Key]) >= 0 {
			updTimes[r.Key] = r.Time
		}
	}
	for k := range updVals {
		if _, present := baseVals[k]; !present {
			g.logError(errLog, k, updTimes[k], &dferrors.UpdatingNonExistingRowError{Key: k})
		}
	}

	var out []Row
	for k, v := range baseVals {
		val := v
		tm := updTimes[k]
		if nv, ok := updVals[k]; ok {
			val = nv
		} else {
			tm = ts.Zero()
		}
		out = append(out, Row{Key: k, Values: []value.Value{val}, Time: tm, Diff: 1})
	}
	return g.newColumnFromCollection(universe, NewCollection(out), nil), nil
}
