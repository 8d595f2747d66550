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
	"github.com/cockroachdb/dataflow/engine/expr"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/value"
)

// ExpressionColumn evaluates a deterministic expression over each row
// formed by zipping inputColumns, memoizing results per input tuple via
// an expr.Cache, expression_column operator.
func (g *Graph) ExpressionColumn(universe UniverseHandle, inputColumns []ColumnHandle, compiled expr.Compiled, errLog ErrorLogHandle) (ColumnHandle, error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	cols := make([]*Collection, len(inputColumns))
	for i, h := range inputColumns {
		c, u, err := g.Column(h)
		if err != nil {
			return 0, err
		}
		if u != universe {
			return 0, &dferrors.UniverseMismatchError{Left: int(universe), Right: int(u)}
		}
		cols[i] = c
	}
	tuples := tupleByKey(cols)

	var cache *expr.Cache
	if compiled.Determinism == expr.IsDeterministic {
		cache = expr.NewCache(compiled)
	}

	var out []Row
	for _, r := range base.Rows() {
		inputs := tuples[r.Key]
		var result value.Value
		var evalErr error
		if cache != nil {
			result, evalErr = cache.Eval(inputs)
		} else {
			result, evalErr = compiled.Fn(inputs)
		}
		if evalErr != nil {
			g.logError(errLog, r.Key, r.Time, dferrors.ErrorInValue)
			result = value.NewError(evalErr.Error())
		}
		out = append(out, Row{Key: r.Key, Values: []value.Value{result}, Time: r.Time, Diff: r.Diff})
	}
	return g.newColumnFromCollection(universe, NewCollection(out), nil), nil
}

// ExpressionTableDeterministic applies a deterministic expression to
// produce a multi-column table in one pass, per this engine's
// expression_table operator; it is ExpressionColumn generalized to a
// tuple-valued output interpreted as the new table's row.
func (g *Graph) ExpressionTableDeterministic(name string, universe UniverseHandle, inputColumns []ColumnHandle, compiled expr.Compiled, props *TableProperties, errLog ErrorLogHandle) (TableHandle, error) {
	h, err := g.ExpressionColumn(universe, inputColumns, compiled, errLog)
	if err != nil {
		return 0, err
	}
	col, _, err := g.Column(h)
	if err != nil {
		return 0, err
	}
	var rows []Row
	for _, r := range col.Rows() {
		tuple, _ := firstElem(r.Values).AsTuple()
		rows = append(rows, Row{Key: r.Key, Values: tuple, Time: r.Time, Diff: r.Diff})
	}
	return g.newTableFromCollection(name, NewCollection(rows), props), nil
}

// ExpressionTableNonDeterministic is ExpressionTableDeterministic's
// replay-safe counterpart, expression_table_non_deterministic:
// each result is computed once per key and cached in-process so that a
// later deletion re-emits the exact value it produced rather than
// recomputing (which, for a non-deterministic expression, would almost
// certainly disagree). A delete with any negative diff retracts the
// cached row once, with diff -1. Diffs other than exactly -1 on a delete report
// ErrExpectedDeletion; diffs more negative than -1 additionally report
// ErrAppendOnlyViolation, the spec's documented conservative choice for
// an otherwise-unspecified case.
func (g *Graph) ExpressionTableNonDeterministic(name string, universe UniverseHandle, inputColumns []ColumnHandle, compiled expr.Compiled, props *TableProperties, errLog ErrorLogHandle) (TableHandle, error) {
	compiled.Determinism = expr.IsNonDeterministic
	base, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	cols := make([]*Collection, len(inputColumns))
	for i, h := range inputColumns {
		c, u, err := g.Column(h)
		if err != nil {
			return 0, err
		}
		if u != universe {
			return 0, &dferrors.UniverseMismatchError{Left: int(universe), Right: int(u)}
		}
		cols[i] = c
	}
	tuples := tupleByKey(cols)

	cache := make(map[key.Key]value.Value)
	var rows []Row
	for _, r := range base.Rows() {
		if r.Diff < 0 {
			if r.Diff != -1 {
				g.logError(errLog, r.Key, r.Time, dferrors.ErrExpectedDeletion)
				if r.Diff < -1 {
					g.logError(errLog, r.Key, r.Time, dferrors.ErrAppendOnlyViolation)
				}
			}
			cached, ok := cache[r.Key]
			if !ok {
				// No cached emission for this key; nothing to retract
				// against, so forward the raw retraction defensively.
				rows = append(rows, Row{Key: r.Key, Time: r.Time, Diff: r.Diff})
				continue
			}
			delete(cache, r.Key)
			tuple, _ := cached.AsTuple()
			rows = append(rows, Row{Key: r.Key, Values: tuple, Time: r.Time, Diff: -1})
			continue
		}
		result, evalErr := compiled.Fn(tuples[r.Key])
		if evalErr != nil {
			g.logError(errLog, r.Key, r.Time, dferrors.ErrorInValue)
			result = value.NewError(evalErr.Error())
		}
		cache[r.Key] = result
		tuple, _ := result.AsTuple()
		rows = append(rows, Row{Key: r.Key, Values: tuple, Time: r.Time, Diff: r.Diff})
	}
	return g.newTableFromCollection(name, NewCollection(rows), props), nil
}
