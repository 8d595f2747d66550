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

// Package metrics declares the Prometheus instruments this engine's
// operators report through, adapted from
// internal/staging/stage/metrics.go's one-file-per-subsystem,
// promauto-registered-package-var convention. The instruments are
// registered at package init; no operator in this module updates them,
// and no code here reads Config.MonitoringLevel (engine/dataflow.Config).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets is the shared histogram bucket scheme for this
// engine's duration metrics, covering sub-millisecond operator steps up
// through multi-second consolidations.
var LatencyBuckets = []float64{
	.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// OperatorLabels names the dimension every per-operator metric below is
// broken out by: the operator kind (e.g. "group_by", "join",
// "reduce"), mirroring stage's per-table breakdown via TableLabels.
var OperatorLabels = []string{"operator"}

var (
	// ConsolidationDurations times Collection.Consolidated calls,
	// keyed by the operator whose output is being consolidated.
	ConsolidationDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dataflow_consolidation_duration_seconds",
		Help:    "time spent consolidating a collection's raw rows into net diffs",
		Buckets: LatencyBuckets,
	}, OperatorLabels)

	// BatchSizes records how many rows an operator processed in a
	// single TimeGroup, the dataflow analogue of stage's
	// per-call mutation-count metrics.
	BatchSizes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dataflow_operator_batch_size",
		Help:    "number of rows processed by an operator in a single time group",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}, OperatorLabels)

	// ReduceCacheSize reports the live entry count of a Reduce
	// operator's incremental aggregate cache, gauged rather than
	// counted since it can shrink as keys are retracted.
	ReduceCacheSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dataflow_reduce_cache_entries",
		Help: "number of keys currently tracked by a reduce operator's incremental state",
	}, OperatorLabels)

	// ConsolidationErrors counts DuplicateKeyError and similar
	// malformed-universe errors surfaced during consolidation, broken
	// out by operator so a single misbehaving table doesn't hide in
	// an aggregate count.
	ConsolidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataflow_consolidation_errors_total",
		Help: "number of errors raised while consolidating an operator's output",
	}, OperatorLabels)
)
