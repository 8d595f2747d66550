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

// Package ts implements the dataflow's logical timestamp. It is
// grounded on internal/util/hlc package (referenced
// throughout internal/source/cdc/resolver.go as hlc.Time, hlc.Compare,
// hlc.Zero, hlc.New, but not included in the ecosystem) and
// rebuilt here in the same shape, inferred from its call sites: a
// monotonic (nanos, logical) pair with a total order.
package ts

import "fmt"

// Time is a monotonic timestamp: a wall-clock nanosecond component plus
// a logical tiebreaker, following hlc.Time. Within a
// dataflow graph it additionally distinguishes "original" input times
// from "neu" (derived) times produced by retraction-generating
// operators -- see Neu below and glossary entry for "Neu
// time".
type Time struct {
	nanos int64
	logical int32
	neu bool
}

// Zero is the timestamp before any real time; it compares less than
// every other Time.
func Zero() Time { return Time{} }

// New constructs a Time from its wall-clock and logical components.
func New(nanos int64, logical int32) Time {
	return Time{nanos: nanos, logical: logical}
}

// Nanos returns the wall-clock nanosecond component.
func (t Time) Nanos() int64 { return t.nanos }

// Logical returns the logical tiebreaker component.
func (t Time) Logical() int32 { return t.logical }

// IsZero reports whether t is the Zero timestamp.
func (t Time) IsZero() bool { return t.nanos == 0 && t.logical == 0 && !t.neu }

// Neu returns a derived timestamp that is strictly after t but shares
// t's wall-clock instant, used by forget/retraction operators to
// ensure a retraction happens strictly after the event it retracts
//.
func (t Time) Neu() Time {
	return Time{nanos: t.nanos, logical: t.logical, neu: true}
}

// IsNeu reports whether t was produced by Neu.
func (t Time) IsNeu() bool { return t.neu }

// Next returns the smallest Time strictly greater than t at the same
// wall-clock instant, advancing the logical component.
func (t Time) Next() Time {
	return Time{nanos: t.nanos, logical: t.logical + 1}
}

// Compare implements the total order over Time: original times order
// by (nanos, logical), and a "neu" timestamp at the same (nanos,
// logical) sorts strictly after its original counterpart.
func Compare(a, b Time) int {
	if a.nanos != b.nanos {
		if a.nanos < b.nanos {
			return -1
		}
		return 1
	}
	if a.logical != b.logical {
		if a.logical < b.logical {
			return -1
		}
		return 1
	}
	if a.neu == b.neu {
		return 0
	}
	if !a.neu {
		return -1
	}
	return 1
}

// Less reports whether a orders strictly before b.
func Less(a, b Time) bool { return Compare(a, b) < 0 }

// LessEq reports whether a orders before or equal to b.
func LessEq(a, b Time) bool { return Compare(a, b) <= 0 }

// Max returns the later of a and b.
func Max(a, b Time) Time {
	if Compare(a, b) >= 0 {
		return a
	}
	return b
}

// Min returns the earlier of a and b.
func Min(a, b Time) Time {
	if Compare(a, b) <= 0 {
		return a
	}
	return b
}

func (t Time) String() string {
	if t.neu {
		return fmt.Sprintf("%d.%d+", t.nanos, t.logical)
	}
	return fmt.Sprintf("%d.%d", t.nanos, t.logical)
}

// Product is the timestamp used inside an iteration subgraph: the
// outer scope's time paired with a fixed-point iteration counter, per
// Iterate operator: "a nested scope with a
// product timestamp (outer, iteration) enabling fixed-point
// computations".
type Product struct {
	Outer Time
	Iteration uint32
}

// CompareProduct implements the product order: ties on Outer are broken
// by Iteration, matching the semantics needed for semi-naive
// evaluation inside engine/iterate.
func CompareProduct(a, b Product) int {
	if c := Compare(a.Outer, b.Outer); c != 0 {
		return c
	}
	switch {
	case a.Iteration < b.Iteration:
		return -1
	case a.Iteration > b.Iteration:
		return 1
	default:
		return 0
	}
}

// LessProduct reports whether a orders strictly before b under the
// product order.
func LessProduct(a, b Product) bool { return CompareProduct(a, b) < 0 }

func (p Product) String() string {
	return fmt.Sprintf("(%s, %d)", p.Outer, p.Iteration)
}
