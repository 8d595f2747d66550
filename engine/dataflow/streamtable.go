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
	"github.com/cockroachdb/dataflow/engine/value"
)

// TableToStream turns a table's rows as stored (not consolidated;
// retractions included) into a stream column whose value per row is a
// tuple of the row's diff followed by its values,
// table_to_stream operator: "expose a table's underlying
// insert/delete stream as an ordinary data column, so diffs can be
// inspected by downstream logic instead of only being applied
// implicitly". Each stream row keeps its source row's diff; no
// upsert or presence flag is added. It returns the table's own
// universe.
func (g *Graph) TableToStream(h TableHandle) (UniverseHandle, ColumnHandle, error) {
	c, universe, _, err := g.Table(h)
	if err != nil {
		return 0, 0, err
	}
	var out []Row
	for _, r := range c.Rows() {
		payload := value.NewTuple(append([]value.Value{value.NewInt(r.Diff)}, r.Values...)...)
		out = append(out, Row{Key: r.Key, Values: []value.Value{payload}, Time: r.Time, Diff: r.Diff})
	}
	return universe, g.newColumnFromCollection(universe, NewCollection(out), nil), nil
}

// StreamToTable is table_to_stream's inverse: it interprets
// streamColumn's leading Int element as the row's diff and the
// remainder as the row's payload, reconstructing a table, per this engine's
// stream_to_table operator.
func (g *Graph) StreamToTable(universe UniverseHandle, streamColumn ColumnHandle, name string, props *TableProperties) (TableHandle, error) {
	col, colUniverse, err := g.Column(streamColumn)
	if err != nil {
		return 0, err
	}
	if colUniverse != universe {
		return 0, &dferrors.UniverseMismatchError{Left: int(universe), Right: int(colUniverse)}
	}
	var rows []Row
	for _, r := range col.Rows() {
		tuple, ok := firstElem(r.Values).AsTuple()
		if !ok || len(tuple) == 0 {
			continue
		}
		diff, ok := tuple[0].AsInt()
		if !ok {
			continue
		}
		rows = append(rows, Row{Key: r.Key, Values: tuple[1:], Time: r.Time, Diff: diff})
	}
	return g.newTableFromCollection(name, NewCollection(rows), props), nil
}

// MergeStreamsToTable unions several tables' underlying diff streams
// into a single table, merge_streams_to_table operator:
// "combine several append/retract streams that share a schema into one
// logical table". Unlike a plain concat of tables, this operator is
// defined over the raw stream form (it does not require its inputs to
// share a universe).
func (g *Graph) MergeStreamsToTable(name string, tables []TableHandle, props *TableProperties) (TableHandle, error) {
	var cs []*Collection
	for _, h := range tables {
		c, _, _, err := g.Table(h)
		if err != nil {
			return 0, err
		}
		cs = append(cs, c)
	}
	return g.newTableFromCollection(name, Concat(cs...), props), nil
}
