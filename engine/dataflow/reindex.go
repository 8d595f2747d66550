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
	"github.com/cockroachdb/dataflow/engine/value"
)

// Reindex replaces universe's keys with the values carried by
// reindexingColumn, reindex operator. A reindexing value
// that collides with another row's new key is reported via errLog as a
// DuplicateKeyError rather than silently overwriting one of the rows.
func (g *Graph) Reindex(universe UniverseHandle, reindexingColumn ColumnHandle, errLog ErrorLogHandle) (UniverseHandle, error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	col, colUniverse, err := g.Column(reindexingColumn)
	if err != nil {
		return 0, err
	}
	if colUniverse != universe {
		return 0, &dferrors.UniverseMismatchError{Left: int(universe), Right: int(colUniverse)}
	}

	newKeyByOld := make(map[keyAtTime]key.Key)
	for _, r := range col.Rows() {
		v := firstElem(r.Values)
		if v.IsError() {
			g.logError(errLog, r.Key, r.Time, dferrors.ErrorInReindex)
			continue
		}
		nk, ok := value.AsPointer[key.Key](v)
		if !ok {
			g.logError(errLog, r.Key, r.Time, &dferrors.ValueError{Detail: "reindexing column value is not a pointer"})
			continue
		}
		newKeyByOld[keyAtTime{r.Key, r.Time}] = nk
	}

	seen := make(map[key.Key]bool)
	var out []Row
	for _, r := range base.Rows() {
		nk, ok := newKeyByOld[keyAtTime{r.Key, r.Time}]
		if !ok {
			continue
		}
		if seen[nk] {
			g.logError(errLog, nk, r.Time, &dferrors.DuplicateKeyError{Key: nk})
			continue
		}
		seen[nk] = true
		out = append(out, Row{Key: nk, Time: r.Time, Diff: r.Diff})
	}
	return g.newUniverseFromCollection(NewCollection(out)), nil
}
