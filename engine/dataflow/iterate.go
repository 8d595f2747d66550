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
	"github.com/cockroachdb/dataflow/engine/iterate"
	"github.com/cockroachdb/dataflow/engine/ts"
)

// IterationBody computes one round of an Iterate loop entirely in
// terms of universe rows, so a caller never has to reach into
// engine/iterate directly.
type IterationBody func(delta []Row) ([]Row, error)

// Iterate runs body to a fixed point over universe's rows and
// materializes the converged result as a fresh universe. limit bounds
// the number of rounds
// (ErrIterationLimitTooSmall if limit < 2); Converged reports whether a
// fixed point was reached before the limit.
func (g *Graph) Iterate(universe UniverseHandle, body IterationBody, limit int) (result UniverseHandle, converged bool, err error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, false, err
	}

	toIterRows := func(rows []Row) []iterate.Row {
		out := make([]iterate.Row, len(rows))
		for i, r := range rows {
			out[i] = iterate.Row{Key: r.Key, Values: r.Values, At: ts.Product{Outer: r.Time}, Diff: r.Diff}
		}
		return out
	}
	fromIterRows := func(rows []iterate.Row) []Row {
		out := make([]Row, len(rows))
		for i, r := range rows {
			out[i] = Row{Key: r.Key, Values: r.Values, Time: r.At.Outer, Diff: r.Diff}
		}
		return out
	}

	wrappedBody := func(delta []iterate.Row) ([]iterate.Row, error) {
		out, err := body(fromIterRows(delta))
		if err != nil {
			return nil, err
		}
		return toIterRows(out), nil
	}

	res, err := iterate.Run(toIterRows(base.Rows()), wrappedBody, limit)
	if err != nil {
		return 0, false, err
	}
	return g.newUniverseFromCollection(NewCollection(fromIterRows(res.Rows))), res.Converged, nil
}
