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

// Package wiring collects this module's top-level Provide* constructors
// into a single wire.NewSet, mirroring internal/source/logical's Set:
// a Graph, a driver Scheduler around it, and the shared Var/ErrorReporter
// plumbing a running dataflow process needs, all wired by
// github.com/google/wire rather than assembled by hand in main.
package wiring

import (
	"time"

	"github.com/google/wire"
	"github.com/pkg/errors"

	"github.com/cockroachdb/dataflow/engine/dataflow"
	"github.com/cockroachdb/dataflow/engine/driver"
	"github.com/cockroachdb/dataflow/engine/persist"
)

// Set is used by Wire.
var Set = wire.NewSet(
	ProvideGraphConfig,
	ProvideGraph,
	ProvideDriverConfig,
	ProvideErrorReporter,
	ProvideStorage,
	ProvideWakeVar,
	ProvideScheduler,
)

// ProvideGraphConfig supplies the dataflow.Graph's default Config. A
// caller that bound its own flags should provide an overriding
// *dataflow.Config instead of including this provider in its set.
func ProvideGraphConfig() *dataflow.Config {
	return dataflow.DefaultConfig()
}

// ProvideGraph constructs the dataflow graph builder used by every
// operator in engine/dataflow.
func ProvideGraph(cfg *dataflow.Config) *dataflow.Graph {
	return dataflow.NewGraph(cfg)
}

// ProvideDriverConfig supplies the process-level driver.Config with its
// defaults applied, following ProvideBaseConfig's
// "validate what Wire assembled" convention.
func ProvideDriverConfig() (*driver.Config, error) {
	cfg := &driver.Config{
		Processes:          1,
		Threads:             1,
		MinCommitFrequency:  100 * time.Millisecond,
		MonitoringLevel:     0,
	}
	if err := cfg.Preflight(); err != nil {
		return nil, errors.Wrap(err, "wiring: default driver config")
	}
	return cfg, nil
}

// ProvideErrorReporter supplies one process-wide ErrorReporter for
// callers to report operator errors into; neither the Graph nor the
// Scheduler is connected to it.
func ProvideErrorReporter() *driver.ErrorReporter {
	return driver.NewErrorReporter(false)
}

// ProvideStorage supplies the default in-process persist.Storage
// backing Deduplicate/Reduce state. A deployment that wants durable
// checkpointing provides its own persist.Storage implementation instead
// of including this provider.
func ProvideStorage() persist.Storage {
	return persist.NewInMemory()
}

// ProvideWakeVar supplies the generation counter every input connector
// signals on arrival, and the Scheduler parks on between steps.
func ProvideWakeVar() *driver.Var[uint64] {
	return driver.NewVar(uint64(0))
}

// ProvideScheduler assembles the step_or_park Scheduler around step,
// following execution model: one Step is "rebuild
// whatever changed, report whether anything did". step itself comes
// from the caller's own provider set, since only the application
// assembling a particular dataflow's operators knows how to rebuild it;
// wiring only supplies the Scheduler that drives that Step to
// completion.
func ProvideScheduler(cfg *driver.Config, step driver.Step, wake *driver.Var[uint64]) *driver.Scheduler {
	return driver.NewScheduler(cfg, step, wake)
}
