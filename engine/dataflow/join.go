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

// JoinType selects which side(s) of a Join are preserved when no
// matching row exists on the other side, join operator.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeftOuter
	JoinRightOuter
	JoinFullOuter
)

// ShardPolicy controls how a join's output keys are derived from its
// input keys, join operator.
type ShardPolicy int

const (
	// ShardLeft derives output keys with_shard_of the left row's key,
	// keeping joined rows co-located with their left-side origin.
	ShardLeft ShardPolicy = iota
	// ShardRight derives output keys with_shard_of the right row's key.
	ShardRight
)

// JoinCondition pairs one left column path with one right column path,
// "equi-join on a list of column path pairs".
type JoinCondition struct {
	Left, Right ColumnPath
}

// BuildEquiJoinConditions pairs up parallel lists of left/right column
// paths into JoinCondition pairs, join operator. Called at graph-build
// time before Join; a length mismatch between the two lists is
// reported immediately rather than deferred into the join itself.
func BuildEquiJoinConditions(left, right []ColumnPath) ([]JoinCondition, error) {
	if len(left) != len(right) {
		return nil, &dferrors.DifferentJoinConditionLengthsError{Left: len(left), Right: len(right)}
	}
	conditions := make([]JoinCondition, len(left))
	for i := range left {
		conditions[i] = JoinCondition{Left: left[i], Right: right[i]}
	}
	return conditions, nil
}

// Join computes an equi-join between leftUniverse/leftColumns and
// rightUniverse/rightColumns under conditions. The result universe's
// keys are derived deterministically from the matching (left key,
// right key) pair via key.ForValues, then reassigned a shard per
// policy so that multi-worker placement of join output is
// controllable independently of its content hash. Join-key values
// that are Value::Error are dropped and reported via errLog as
// ErrorInJoin rather than joined on.
func (g *Graph) Join(
	leftUniverse UniverseHandle, leftColumns []ColumnHandle,
	rightUniverse UniverseHandle, rightColumns []ColumnHandle,
	conditions []JoinCondition,
	joinType JoinType,
	policy ShardPolicy,
	errLog ErrorLogHandle,
) (UniverseHandle, []ColumnHandle, error) {
	leftBase, err := g.Universe(leftUniverse)
	if err != nil {
		return 0, nil, err
	}
	rightBase, err := g.Universe(rightUniverse)
	if err != nil {
		return 0, nil, err
	}

	leftCols := make([]*Collection, len(leftColumns))
	for i, h := range leftColumns {
		c, u, err := g.Column(h)
		if err != nil {
			return 0, nil, err
		}
		if u != leftUniverse {
			return 0, nil, &dferrors.UniverseMismatchError{Left: int(leftUniverse), Right: int(u)}
		}
		leftCols[i] = c
	}
	rightCols := make([]*Collection, len(rightColumns))
	for i, h := range rightColumns {
		c, u, err := g.Column(h)
		if err != nil {
			return 0, nil, err
		}
		if u != rightUniverse {
			return 0, nil, &dferrors.UniverseMismatchError{Left: int(rightUniverse), Right: int(u)}
		}
		rightCols[i] = c
	}

	leftTuples := tupleByKey(leftCols)
	rightTuples := tupleByKey(rightCols)

	leftKeys, _ := leftBase.Consolidated()
	rightKeys, _ := rightBase.Consolidated()

	// Index right rows by join condition value for efficient matching.
	rightIndex := make(map[string][]key.Key)
	for _, r := range rightKeys {
		cond, ok, hasErr := conditionValues(rightTuples[r.Key], conditions, false)
		if hasErr {
			g.logError(errLog, r.Key, r.LatestTime, dferrors.ErrorInJoin)
			continue
		}
		if !ok {
			continue
		}
		h := conditionHash(cond)
		rightIndex[h] = append(rightIndex[h], r.Key)
	}

	matchedRight := make(map[key.Key]bool)
	var outUniverse []Row
	outCols := make([][]Row, len(leftColumns)+len(rightColumns))

	emit := func(lk, rk key.Key, outK key.Key) {
		outUniverse = append(outUniverse, Row{Key: outK, Diff: 1})
		lv := leftTuples[lk]
		rv := rightTuples[rk]
		for i := range leftColumns {
			var v value.Value
			if i < len(lv) {
				v = lv[i]
			}
			outCols[i] = append(outCols[i], Row{Key: outK, Values: []value.Value{v}, Diff: 1})
		}
		for i := range rightColumns {
			var v value.Value
			if i < len(rv) {
				v = rv[i]
			}
			outCols[len(leftColumns)+i] = append(outCols[len(leftColumns)+i], Row{Key: outK, Values: []value.Value{v}, Diff: 1})
		}
	}

	for _, l := range leftKeys {
		cond, ok, hasErr := conditionValues(leftTuples[l.Key], conditions, true)
		if hasErr {
			g.logError(errLog, l.Key, l.LatestTime, dferrors.ErrorInJoin)
			continue
		}
		if !ok {
			continue
		}
		h := conditionHash(cond)
		matches := rightIndex[h]
		if len(matches) == 0 {
			if joinType == JoinLeftOuter || joinType == JoinFullOuter {
				outK := deriveJoinKey(l.Key, key.Zero, policy)
				emit(l.Key, key.Zero, outK)
			}
			continue
		}
		for _, r := range matches {
			matchedRight[r] = true
			outK := deriveJoinKey(l.Key, r, policy)
			emit(l.Key, r, outK)
		}
	}

	if joinType == JoinRightOuter || joinType == JoinFullOuter {
		for _, r := range rightKeys {
			if matchedRight[r.Key] {
				continue
			}
			outK := deriveJoinKey(key.Zero, r.Key, policy)
			emit(key.Zero, r.Key, outK)
		}
	}

	u := g.newUniverseFromCollection(NewCollection(outUniverse))
	handles := make([]ColumnHandle, len(outCols))
	for i, rows := range outCols {
		handles[i] = g.newColumnFromCollection(u, NewCollection(rows), nil)
	}
	return u, handles, nil
}

func deriveJoinKey(l, r key.Key, policy ShardPolicy) key.Key {
	base := key.ForValues(value.NewPointer(l), value.NewPointer(r))
	if policy == ShardRight {
		return base.WithShardOf(r)
	}
	return base.WithShardOf(l)
}

func tupleByKey(cols []*Collection) map[key.Key][]value.Value {
	out := make(map[key.Key][]value.Value)
	for i, c := range cols {
		for k, v := range snapshotByKey(c) {
			if out[k] == nil {
				out[k] = make([]value.Value, len(cols))
			}
			out[k][i] = v
		}
	}
	return out
}

// conditionValues extracts the join-key values for one side of a row.
// It returns hasErr=true (dropping the row for ErrorInJoin) when any
// extracted value is Value::Error; ok=false for a structurally
// unnavigable path, which is dropped silently.
func conditionValues(tuple []value.Value, conditions []JoinCondition, isLeft bool) ([]value.Value, bool, bool) {
	out := make([]value.Value, len(conditions))
	for i, cond := range conditions {
		path := cond.Right
		if isLeft {
			path = cond.Left
		}
		if len(path) == 0 {
			return nil, false, false
		}
		idx := path[0]
		if idx < 0 || idx >= len(tuple) {
			return nil, false, false
		}
		v := tuple[idx]
		if v.IsError() {
			return nil, false, true
		}
		out[i] = v
	}
	return out, true, false
}

func conditionHash(vs []value.Value) string {
	var b []byte
	for _, v := range vs {
		b = append(b, []byte(v.String())...)
		b = append(b, 0)
	}
	return string(b)
}
