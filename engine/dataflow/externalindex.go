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
	"github.com/cockroachdb/dataflow/engine/annidx"
	"github.com/cockroachdb/dataflow/engine/dferrors"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/value"
)

// ExternalIndexAsOfNow builds an annidx.Index from indexedColumn's
// values as of the time ExternalIndexAsOfNow is called, then answers
// every row of queryColumn against that fixed snapshot, per this engine's
// external_index_as_of_now operator: "the index does not participate
// in incremental recomputation; it is rebuilt only by calling this
// operator again". queryColumn's values must be IntArray/FloatArray
// vectors; k is the number of nearest neighbors requested per query.
func (g *Graph) ExternalIndexAsOfNow(indexedColumn, queryColumn ColumnHandle, metric annidx.Metric, k int, errLog ErrorLogHandle) (UniverseHandle, ColumnHandle, error) {
	indexedCol, _, err := g.Column(indexedColumn)
	if err != nil {
		return 0, 0, err
	}
	queryCol, _, err := g.Column(queryColumn)
	if err != nil {
		return 0, 0, err
	}

	vectors := make(map[key.Key]annidx.Vector)
	for rowKey, v := range snapshotByKey(indexedCol) {
		vec, ok := toVector(v)
		if !ok {
			continue
		}
		vectors[rowKey] = vec
	}
	idx := annidx.NewBruteForce(metric, vectors)

	var universeRows []Row
	var valueRows []Row
	for _, r := range queryCol.Rows() {
		vec, ok := toVector(firstElem(r.Values))
		if !ok {
			g.logError(errLog, r.Key, r.Time, &dferrors.ValueError{Detail: "external index query value is not a numeric array"})
			continue
		}
		matches := idx.Query(vec, k)
		results := make([]value.Value, len(matches))
		for i, m := range matches {
			results[i] = value.NewPointer(m.Key)
		}
		universeRows = append(universeRows, Row{Key: r.Key, Time: r.Time, Diff: r.Diff})
		valueRows = append(valueRows, Row{Key: r.Key, Values: []value.Value{value.NewTuple(results...)}, Time: r.Time, Diff: r.Diff})
	}

	u := g.newUniverseFromCollection(NewCollection(universeRows))
	c := g.newColumnFromCollection(u, NewCollection(valueRows), nil)
	return u, c, nil
}

func toVector(v value.Value) (annidx.Vector, bool) {
	switch v.Kind() {
	case value.KindFloatArray:
		_, data, _ := v.AsFloatArray()
		return annidx.Vector(data), true
	case value.KindIntArray:
		_, data, _ := v.AsIntArray()
		out := make(annidx.Vector, len(data))
		for i, d := range data {
			out[i] = float64(d)
		}
		return out, true
	default:
		return nil, false
	}
}
