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
	"context"
	"fmt"

	"github.com/cockroachdb/dataflow/engine/connector"
	"github.com/cockroachdb/dataflow/engine/dferrors"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
)

// ChangeCallback is invoked once per observed row change, in time
// order, subscribe operator: "register a callback that
// observes every insertion and retraction of a table as it happens,
// plus a frontier-advancement notification between batches".
type ChangeCallback func(k key.Key, values []value.Value, tm ts.Time, diff int64)

// FrontierCallback is invoked once per distinct timestamp as Subscribe
// finishes replaying that timestamp's changes.
type FrontierCallback func(tm ts.Time)

// Subscribe replays table's rows, in ascending time order, through
// onChange, invoking onFrontier after each timestamp's batch. Because
// this reference engine evaluates a dataflow graph over an already
// materialized Collection rather than a live streaming schedule,
// Subscribe's replay is driven synchronously at call time, and each
// call replays the table's full history; nothing in engine/driver
// calls Subscribe. By default rows carrying Value::Error are withheld
// from onChange to preserve the "error opacity" invariant; passing
// skipErrors=false surfaces them anyway, for callers that want to
// observe errors directly rather than through the error log.
func (g *Graph) Subscribe(h TableHandle, onChange ChangeCallback, onFrontier FrontierCallback, skipErrors bool) error {
	c, _, _, err := g.Table(h)
	if err != nil {
		return err
	}
	for _, tg := range c.TimeGroups() {
		for _, r := range tg.Rows {
			if skipErrors && rowHasError(r.Values) {
				continue
			}
			onChange(r.Key, r.Values, r.Time, r.Diff)
		}
		if onFrontier != nil {
			onFrontier(tg.Time)
		}
	}
	return nil
}

// Output writes table's consolidated rows through formatter and writer,
// output operator: "the terminal node of a dataflow
// graph, delivering rows to an external system". Output always writes
// the consolidated (net-diff) snapshot, since most external sinks (a
// file, an HTTP endpoint) have no notion of retraction; operators that
// need to see raw diffs should use TableToStream upstream of a
// Subscribe instead. A row carrying Value::Error never reaches writer
// (the "error opacity" invariant): it is dropped and reported via
// errLog as ErrorInOutput, along with any formatter failure.
func (g *Graph) Output(ctx context.Context, h TableHandle, formatter connector.Formatter, writer connector.Writer, errLog ErrorLogHandle) error {
	c, _, _, err := g.Table(h)
	if err != nil {
		return err
	}
	rows, errs := c.Consolidated()
	for _, e := range errs {
		g.logError(errLog, key.Zero, c.MaxTime(), e)
	}
	for _, r := range rows {
		if rowHasError(r.Values) {
			g.logError(errLog, r.Key, r.LatestTime, dferrors.ErrorInOutput)
			continue
		}
		rec, err := formatter.Format(r.Values)
		if err != nil {
			g.logError(errLog, r.Key, r.LatestTime, fmt.Errorf("%w: %v", dferrors.ErrorInOutput, err))
			continue
		}
		if err := writer.Write(ctx, rec); err != nil {
			return err
		}
	}
	return writer.Flush(ctx)
}

func rowHasError(vs []value.Value) bool {
	for _, v := range vs {
		if v.IsError() {
			return true
		}
	}
	return false
}
