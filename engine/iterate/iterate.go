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

// Package iterate implements Iterate operator: a
// nested dataflow scope whose rows carry a product timestamp (outer,
// iteration), run to a fixed point by semi-naive evaluation -- only the
// rows that changed since the previous round are fed back in, rather
// than recomputing the whole body every round. The retry-until-settled
// shape follows the resolved-timestamp retry loop in
// internal/source/cdc/resolver.go, generalized from "retry until the
// upstream resolved-timestamp feed confirms no more work" into
// "iterate a dataflow body until its delta is empty or a round limit
// is hit".
package iterate

import (
	"github.com/cockroachdb/dataflow/engine/dferrors"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
	"github.com/sirupsen/logrus"
)

// Row is one update inside an iteration subgraph, timestamped by the
// product (outer, iteration) order rather than a plain ts.Time.
type Row struct {
	Key key.Key
	Values []value.Value
	At ts.Product
	Diff int64
}

// Body computes one round of the loop: given the current round's delta
// (only rows that changed since the previous round; on round 0 this is
// the loop's initial input), it returns the full round's output delta.
// A Body must be a pure function of its input delta plus whatever state
// it threads through closures itself.
type Body func(delta []Row) ([]Row, error)

// Result is what Iterate returns once it reaches a fixed point or its
// round limit.
type Result struct {
	Rows []Row
	Rounds int
	Converged bool
}

// Run drives body to a fixed point starting from initial, per this engine's
// Iterate semantics: "repeat until a round's output delta, after
// consolidation against the accumulated total, is empty -- or until
// limit rounds have run, whichever comes first". limit must be at least
// 2, matching ErrIterationLimitTooSmall invariant (round 0
// seeds the loop; at least one further round is needed to detect a
// fixed point).
func Run(initial []Row, body Body, limit int) (Result, error) {
	if limit < 2 {
		return Result{}, dferrors.ErrIterationLimitTooSmall
	}

	total := make(map[key.Key]aggregate)
	applyDelta(total, initial)

	delta := initial
	round := 0
	for round < limit-1 {
		out, err := body(delta)
		if err != nil {
			return Result{}, err
		}
		changed := applyDelta(total, out)
		round++
		logrus.WithFields(logrus.Fields{"round": round, "changed": len(changed)}).Trace("iterate: round complete")
		if len(changed) == 0 {
			return Result{Rows: flatten(total), Rounds: round, Converged: true}, nil
		}
		delta = changed
	}
	return Result{Rows: flatten(total), Rounds: round, Converged: false}, nil
}

type aggregate struct {
	values []value.Value
	diff int64
	at ts.Product
}

// applyDelta folds rows into total (by summing diffs per key) and
// returns only the keys whose net diff actually changed this round --
// the semi-naive "delta of the delta" fed into the next round.
func applyDelta(total map[key.Key]aggregate, rows []Row) []Row {
	var changed []Row
	touched := make(map[key.Key]int64)
	for _, r := range rows {
		agg, ok := total[r.Key]
		before := agg.diff
		if !ok {
			agg = aggregate{}
		}
		agg.diff += r.Diff
		agg.values = r.Values
		agg.at = r.At
		total[r.Key] = agg
		touched[r.Key] += r.Diff
		if before != agg.diff && touched[r.Key] == r.Diff {
			// First time this key was touched this round; decide
			// inclusion once all rows for the round are folded in,
			// below.
		}
	}
	for k, net := range touched {
		if net == 0 {
			continue
		}
		agg := total[k]
		changed = append(changed, Row{Key: k, Values: agg.values, At: agg.at, Diff: net})
	}
	return changed
}

func flatten(total map[key.Key]aggregate) []Row {
	var out []Row
	for k, agg := range total {
		if agg.diff == 0 {
			continue
		}
		out = append(out, Row{Key: k, Values: agg.values, At: agg.at, Diff: agg.diff})
	}
	return out
}
