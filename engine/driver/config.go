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

// Package driver implements the execution loop that turns a built
// dataflow graph (engine/dataflow) into a running process: a
// step_or_park scheduler, cooperative shutdown, and the process-level
// Config/Bind/Preflight conventions cdc-sink uses throughout
// internal/source/server and internal/source/cdc for every runnable
// component.
package driver

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config is the process-level configuration for running a dataflow to
// completion or indefinitely, following cdc-sink's
// internal/source/server.Config Bind/Preflight shape.
type Config struct {
	Processes int
	Threads int
	ProcessID int
	MinCommitFrequency time.Duration
	TerminateOnError bool
	MonitoringLevel int
	WithHTTPServer bool
	HTTPBindAddr string
}

// Bind registers the driver's flags on flags, mirroring cdc-sink's
// Config.Bind convention of one flags.XxxVar call per field with an
// inline usage string.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.IntVar(&c.Processes, "processes", 1, "number of dataflow worker processes")
	flags.IntVar(&c.Threads, "threads", 1, "number of worker threads per process")
	flags.IntVar(&c.ProcessID, "processId", 0, "this process's index among --processes")
	flags.DurationVar(&c.MinCommitFrequency, "minCommitFrequency", 100*time.Millisecond,
		"minimum interval between committing progress to output connectors")
	flags.BoolVar(&c.TerminateOnError, "terminateOnError", false,
		"stop the dataflow the first time any operator logs an error")
	flags.IntVar(&c.MonitoringLevel, "monitoringLevel", 0, "monitoring level; recorded in the config, not read by this module")
	flags.BoolVar(&c.WithHTTPServer, "withHttpServer", false, "recorded in the config; this module starts no HTTP server")
	flags.StringVar(&c.HTTPBindAddr, "httpBindAddr", ":26260", "address for the monitoring HTTP server")
}

// Preflight validates the bound configuration, following cdc-sink's
// Preflight convention of returning a descriptive error rather than
// panicking on a bad flag combination.
func (c *Config) Preflight() error {
	if c.Processes <= 0 {
		return errors.New("processes must be positive")
	}
	if c.Threads <= 0 {
		return errors.New("threads must be positive")
	}
	if c.ProcessID < 0 || c.ProcessID >= c.Processes {
		return errors.Errorf("processId %d out of range for %d processes", c.ProcessID, c.Processes)
	}
	if c.MinCommitFrequency <= 0 {
		return errors.New("minCommitFrequency must be positive")
	}
	if c.WithHTTPServer && c.HTTPBindAddr == "" {
		return errors.New("httpBindAddr unset while withHttpServer is enabled")
	}
	return nil
}
