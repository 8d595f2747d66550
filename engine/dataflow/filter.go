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

// Filter restricts universe h to the rows of filteringColumn that carry
// a truthy Bool value, Filter operator. Values are matched to universe
// rows by (key, time); a universe row with no filtering value at the
// same key and time is kept unchanged. Rows
// whose filtering value is a KindError are, like resolver
// loop handling a malformed resolved-timestamp payload, routed to the
// error log rather than silently dropped or silently kept.
func (g *Graph) Filter(universe UniverseHandle, filteringColumn ColumnHandle, errLog ErrorLogHandle) (UniverseHandle, error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	col, colUniverse, err := g.Column(filteringColumn)
	if err != nil {
		return 0, err
	}
	if colUniverse != universe {
		return 0, &dferrors.UniverseMismatchError{Left: int(universe), Right: int(colUniverse)}
	}

	filterVal := make(map[keyAtTime]value.Value)
	for _, r := range col.Rows() {
		filterVal[keyAtTime{r.Key, r.Time}] = firstElem(r.Values)
	}

	var out []Row
	for _, r := range base.Rows() {
		fv, ok := filterVal[keyAtTime{r.Key, r.Time}]
		if !ok {
			out = append(out, r)
			continue
		}
		if fv.IsError() {
			g.logError(errLog, r.Key, r.Time, dferrors.ErrorInFilter)
			continue
		}
		b, _ := fv.AsBool()
		if b {
			out = append(out, r)
		}
	}
	return g.newUniverseFromCollection(NewCollection(out)), nil
}

// RemoveValue restricts universe h to rows whose filteringColumn value
// does NOT equal target, "remove all rows with a given
// value" variant of Filter.
func (g *Graph) RemoveValue(universe UniverseHandle, filteringColumn ColumnHandle, target value.Value) (UniverseHandle, error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	col, colUniverse, err := g.Column(filteringColumn)
	if err != nil {
		return 0, err
	}
	if colUniverse != universe {
		return 0, &dferrors.UniverseMismatchError{Left: int(universe), Right: int(colUniverse)}
	}

	removed := make(map[keyAtTime]bool)
	for _, r := range col.Rows() {
		if value.Equal(firstElem(r.Values), target) {
			removed[keyAtTime{r.Key, r.Time}] = true
		}
	}
	var out []Row
	for _, r := range base.Rows() {
		if removed[keyAtTime{r.Key, r.Time}] {
			continue
		}
		out = append(out, r)
	}
	return g.newUniverseFromCollection(NewCollection(out)), nil
}

// AssertAppendOnly verifies that universe h never carries a negative
// diff, returning ErrExpectedAppendOnly the first time one is observed;
// the universe is otherwise passed through unchanged. This mirrors the
// invariant that a resolved timestamp watermark may only move
// forward, never backward.
func (g *Graph) AssertAppendOnly(universe UniverseHandle) (UniverseHandle, error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	for _, r := range base.Rows() {
		if r.Diff < 0 {
			return 0, dferrors.ErrExpectedAppendOnly
		}
	}
	return universe, nil
}

// keyAtTime indexes a row by (key, time), the natural join key for
// matching a base universe's rows against a same-universe column's rows
// produced at the same moment.
type keyAtTime struct {
	k key.Key
	tm ts.Time
}
