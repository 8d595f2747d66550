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

// MissingKeyPolicy controls Ix's behavior when a lookup key produced by
// keysColumn is absent from the target universe, ix
// operator.
type MissingKeyPolicy int

const (
	// FailMissing reports a missing key as KeyMissingInOutputTableError
	// and excludes that row from the result.
	FailMissing MissingKeyPolicy = iota
	// SkipMissing silently excludes rows whose lookup key is missing.
	SkipMissing
	// ForwardNone includes the row in the result with a None value
	// wherever a missing key would otherwise produce one.
	ForwardNone
)

// Ix looks up, for each row of keysColumn, the corresponding row of
// onColumn's universe, producing a derived universe keyed by
// keysColumn's own row keys and a column carrying the
// looked-up values, ix operator: "an indirect lookup by
// pointer column, with FailMissing/SkipMissing/ForwardNone policies for
// an absent key".
func (g *Graph) Ix(keysColumn, onColumn ColumnHandle, policy MissingKeyPolicy, errLog ErrorLogHandle) (UniverseHandle, ColumnHandle, error) {
	keysCol, keysUniverse, err := g.Column(keysColumn)
	if err != nil {
		return 0, 0, err
	}
	targetCol, _, err := g.Column(onColumn)
	if err != nil {
		return 0, 0, err
	}
	targetVals := snapshotByKey(targetCol)

	var universeRows []Row
	var valueRows []Row
	for _, r := range keysCol.Rows() {
		v := firstElem(r.Values)
		if v.IsNone() {
			// A null lookup value isn't a missing-key lookup at all;
			// table in §4.2 governs it independently of presence in
			// targetVals.
			switch policy {
			case ForwardNone:
				universeRows = append(universeRows, Row{Key: r.Key, Time: r.Time, Diff: r.Diff})
				valueRows = append(valueRows, Row{Key: r.Key, Values: []value.Value{value.None}, Time: r.Time, Diff: r.Diff})
			case SkipMissing:
				// row excluded, no error
			case FailMissing:
				g.logError(errLog, r.Key, r.Time, &dferrors.ValueError{Detail: "ix keys column value is null"})
			}
			continue
		}
		lookupKey, ok := value.AsPointer[key.Key](v)
		if !ok {
			g.logError(errLog, r.Key, r.Time, &dferrors.ValueError{Detail: "ix keys column value is not a pointer"})
			continue
		}
		target, present := targetVals[lookupKey]
		switch {
		case present:
			universeRows = append(universeRows, Row{Key: r.Key, Time: r.Time, Diff: r.Diff})
			valueRows = append(valueRows, Row{Key: r.Key, Values: []value.Value{target}, Time: r.Time, Diff: r.Diff})
		case policy == ForwardNone:
			universeRows = append(universeRows, Row{Key: r.Key, Time: r.Time, Diff: r.Diff})
			valueRows = append(valueRows, Row{Key: r.Key, Values: []value.Value{value.None}, Time: r.Time, Diff: r.Diff})
		case policy == FailMissing:
			g.logError(errLog, r.Key, r.Time, &dferrors.KeyMissingInOutputTableError{Key: lookupKey})
		case policy == SkipMissing:
			// row excluded, no error
		}
	}

	_ = keysUniverse
	u := g.newUniverseFromCollection(NewCollection(universeRows))
	c := g.newColumnFromCollection(u, NewCollection(valueRows), nil)
	return u, c, nil
}
