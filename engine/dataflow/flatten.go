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
	"encoding/json"

	"github.com/cockroachdb/dataflow/engine/dferrors"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/value"
)

// Flatten expands flatteningColumn's Tuple, array, JSON array or String
// values into one row per element (one per character for a String).
// Each new row's key hashes the source key and the element index and
// takes the source key's shard (with_shard_of), so the exploded rows
// stay co-located with their source. A source value of any other kind
// is logged to errLog as a ValueError and contributes no output rows.
func (g *Graph) Flatten(flatteningColumn ColumnHandle, errLog ErrorLogHandle) (UniverseHandle, ColumnHandle, error) {
	col, _, err := g.Column(flatteningColumn)
	if err != nil {
		return 0, 0, err
	}

	var universeRows []Row
	var valueRows []Row
	for _, r := range col.Rows() {
		v := firstElem(r.Values)
		elems, ok := flattenElements(v)
		if !ok {
			g.logError(errLog, r.Key, r.Time, &dferrors.ValueError{Detail: "flatten target is not a tuple, array, JSON array or string"})
			continue
		}
		for i, e := range elems {
			nk := key.ForValues(value.NewPointer(r.Key), value.NewInt(int64(i))).WithShardOf(r.Key)
			universeRows = append(universeRows, Row{Key: nk, Time: r.Time, Diff: r.Diff})
			valueRows = append(valueRows, Row{Key: nk, Values: []value.Value{e}, Time: r.Time, Diff: r.Diff})
		}
	}

	u := g.newUniverseFromCollection(NewCollection(universeRows))
	c := g.newColumnFromCollection(u, NewCollection(valueRows), nil)
	return u, c, nil
}

// flattenElements returns the element sequence of a Tuple, array, JSON
// array or String Value, or ok=false if v is none of these.
func flattenElements(v value.Value) (elems []value.Value, ok bool) {
	switch v.Kind() {
	case value.KindTuple:
		vs, _ := v.AsTuple()
		return vs, true
	case value.KindIntArray:
		_, data, _ := v.AsIntArray()
		out := make([]value.Value, len(data))
		for i, d := range data {
			out[i] = value.NewInt(d)
		}
		return out, true
	case value.KindFloatArray:
		_, data, _ := v.AsFloatArray()
		out := make([]value.Value, len(data))
		for i, d := range data {
			out[i] = value.NewFloat(d)
		}
		return out, true
	case value.KindString:
		s, _ := v.AsString()
		out := make([]value.Value, 0, len(s))
		for _, r := range s {
			out = append(out, value.NewString(string(r)))
		}
		return out, true
	case value.KindJSON:
		s, _ := v.AsString()
		var raw []json.RawMessage
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return nil, false
		}
		out := make([]value.Value, len(raw))
		for i, r := range raw {
			out[i] = value.NewJSON(string(r))
		}
		return out, true
	default:
		return nil, false
	}
}
