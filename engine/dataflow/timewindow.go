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
	"github.com/cockroachdb/dataflow/engine/ts"
)

// Buffer delays every row of universe until threshold has elapsed past
// its original time. The delayed
// universe's rows carry the same Diff but a Time advanced by
// threshold's nanosecond duration.
func (g *Graph) Buffer(universe UniverseHandle, thresholdNanos int64) (UniverseHandle, error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	var out []Row
	for _, r := range base.Rows() {
		out = append(out, Row{Key: r.Key, Time: ts.New(r.Time.Nanos()+thresholdNanos, r.Time.Logical()), Diff: r.Diff})
	}
	return g.newUniverseFromCollection(NewCollection(out)), nil
}

// Forget retracts every row of universe once watermarkNanos have
// elapsed since the row's insertion, emitting a matching -1 at a "neu"
// time so the retraction is strictly ordered after the insertion, per
// forget operator: "evict rows older than a sliding
// watermark". filterOutForgetting, when true, implements the
// filter_out_results_of_forgetting variant: the retraction rows
// themselves are suppressed from the output, leaving only the original
// insertions (useful when a downstream sink should see an append-only
// stream and forget is used purely to bound this operator's own
// memory).
func (g *Graph) Forget(universe UniverseHandle, watermarkNanos int64, filterOutForgetting bool) (UniverseHandle, error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	var out []Row
	maxT := base.MaxTime()
	for _, r := range base.Rows() {
		out = append(out, r)
		if filterOutForgetting {
			continue
		}
		cutoff := r.Time.Nanos() + watermarkNanos
		if cutoff <= maxT.Nanos() {
			out = append(out, Row{Key: r.Key, Time: ts.New(cutoff, r.Time.Logical()).Neu(), Diff: -r.Diff})
		}
	}
	return g.newUniverseFromCollection(NewCollection(out)), nil
}

// ForgetImmediately retracts every row of universe at the moment it
// arrives (a "neu" time immediately after its insertion), so the
// universe never accumulates history: only the most recent instant's
// rows are ever visible to a consolidated read, per this engine's
// forget_immediately operator.
func (g *Graph) ForgetImmediately(universe UniverseHandle) (UniverseHandle, error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	var out []Row
	for _, r := range base.Rows() {
		out = append(out, r)
		out = append(out, Row{Key: r.Key, Time: r.Time.Neu(), Diff: -r.Diff})
	}
	return g.newUniverseFromCollection(NewCollection(out)), nil
}

// Freeze suppresses any row of universe whose time falls outside
// [floorNanos, ceilNanos] relative to the frontier at which Freeze
// observes the universe, freeze operator: "reject
// excessively late or early events rather than processing them".
func (g *Graph) Freeze(universe UniverseHandle, floorNanos, ceilNanos int64) (UniverseHandle, error) {
	base, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	frontier := base.MaxTime().Nanos()
	var out []Row
	for _, r := range base.Rows() {
		delta := frontier - r.Time.Nanos()
		if delta < floorNanos || delta > ceilNanos {
			continue
		}
		out = append(out, r)
	}
	return g.newUniverseFromCollection(NewCollection(out)), nil
}
