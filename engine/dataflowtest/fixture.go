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

// Package dataflowtest provides a ready-to-use dataflow.Graph plus the
// helpers most of this engine's operator tests need, mirroring
// internal/sinktest/all.Fixture: one struct a test embeds or constructs
// once per test, instead of hand-rolling a Graph and an in-memory
// Storage in every test function.
package dataflowtest

import (
	"github.com/cockroachdb/dataflow/engine/dataflow"
	"github.com/cockroachdb/dataflow/engine/driver"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/persist"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
)

// Fixture provides a complete set of in-process dataflow services: a
// Graph built from dataflow.DefaultConfig, an in-memory persist.Storage
// for Deduplicate/Reduce state, and a shared ErrorReporter, so that
// operator tests never need to construct this plumbing by hand.
type Fixture struct {
	Graph   *dataflow.Graph
	Storage persist.Storage
	Errors  *driver.ErrorReporter
}

// NewFixture constructs a Fixture around a fresh Graph.
func NewFixture() *Fixture {
	return &Fixture{
		Graph:   dataflow.NewGraph(dataflow.DefaultConfig()),
		Storage: persist.NewInMemory(),
		Errors:  driver.NewErrorReporter(true),
	}
}

// Row is a convenience constructor for a single-column dataflow.Row at
// time t with diff +1, the shape most universe/table fixture data takes
// in this engine's own operator tests.
func Row(k key.Key, t ts.Time, vs ...value.Value) dataflow.Row {
	return dataflow.Row{Key: k, Values: vs, Time: t, Diff: 1}
}

// Retraction mirrors Row but with diff -1, for tests that build a
// collection's history by hand rather than through an operator.
func Retraction(k key.Key, t ts.Time, vs ...value.Value) dataflow.Row {
	return dataflow.Row{Key: k, Values: vs, Time: t, Diff: -1}
}

// MustUniverse builds a universe from keys and fails the calling test
// (via t.FailNow, through the narrow require interface below) if it errors --
// the boilerplate nearly every operator test repeats before it can
// attach a column.
func (f *Fixture) MustUniverse(t require, keys []key.Key) dataflow.UniverseHandle {
	h, err := f.Graph.NewUniverse(keys)
	if err != nil {
		t.FailNow()
	}
	return h
}

// require is the narrow slice of testify's require.TestingT that
// MustUniverse needs, avoiding a hard dependency on *testing.T so
// fixture helpers stay usable from non-test callers too.
type require interface {
	FailNow()
}
