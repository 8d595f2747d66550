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
	"fmt"

	"github.com/cockroachdb/dataflow/engine/dferrors"
	"github.com/cockroachdb/dataflow/engine/handle"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
	"github.com/sirupsen/logrus"
)

// NewErrorLog allocates a fresh error log, per this engine's
// error_log operator: "a sink for errors encountered while evaluating
// other operators, itself a regular table the client may subscribe to".
func (g *Graph) NewErrorLog() ErrorLogHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.errorLogs.Alloc(&errorLogEntry{dependsOnBlocked: make(map[string]bool)})
	return ErrorLogHandle(id)
}

// PushErrorLog makes h the default error log for subsequently built
// operators that do not name one explicitly, mirroring cdc-sink's
// stopper.WithContext stack-scoping idiom (internal/source/logical):
// a scope is pushed, used implicitly by everything built within it, and
// popped when the caller is done.
func (g *Graph) PushErrorLog(h ErrorLogHandle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errorLogStack = append(g.errorLogStack, h)
}

// PopErrorLog removes the most recently pushed default error log.
func (g *Graph) PopErrorLog() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := len(g.errorLogStack); n > 0 {
		g.errorLogStack = g.errorLogStack[:n-1]
	}
}

// currentErrorLog returns the top of the error log stack, or the
// lazily-created graph default if the stack is empty.
func (g *Graph) currentErrorLog() ErrorLogHandle {
	g.mu.Lock()
	if n := len(g.errorLogStack); n > 0 {
		h := g.errorLogStack[n-1]
		g.mu.Unlock()
		
		return h
	}
	if g.hasDefaultELog {
		h := g.defaultErrLog
		g.mu.Unlock()
		
		return h
	}
	g.mu.Unlock()
	h := g.NewErrorLog()
	g.mu.Lock()
	g.defaultErrLog = h
	g.hasDefaultELog = true
	g.mu.Unlock()
	return h
}

// logError appends one row to the named error log, keyed randomly (the
// error itself has no natural identity) and timestamped with the
// triggering row's time, then immediately logs it through logrus at
// Warn level -- following pattern in
// internal/source/cdc/resolver.go of both persisting a fault and
// surfacing it to the operator via structured logging.
func (g *Graph) logError(h ErrorLogHandle, cause key.Key, tm ts.Time, err error) {
	e, ok := g.errorLogs.Get(handle.ID(h))
	if !ok {
		logrus.WithError(err).WithField("source_key", cause).Warn("dataflow: error log handle invalid, dropping error")
		return
	}
	msg := err.Error()
	e.mu.Lock()
	e.rows = append(e.rows, Row{
		Key: key.Random(),
		Values: []value.Value{value.NewString(msg)},
		Time: tm,
		Diff: 1,
	})
	e.mu.Unlock()
	logrus.WithFields(logrus.Fields{
		"error_log": int(h),
		"row_key": cause.String(),
		"time": tm.String(),
	}).Warn(msg)
}

// ErrorLogTable materializes an error log's accumulated rows as a
// one-column table of error messages, suitable for Subscribe.
func (g *Graph) ErrorLogTable(h ErrorLogHandle) (TableHandle, error) {
	e, ok := g.errorLogs.Get(handle.ID(h))
	if !ok {
		return 0, dferrors.NewInvalidHandle("error_log", int(h))
	}
	e.mu.Lock()
	rows := append([]Row(nil), e.rows...)
	e.mu.Unlock()
	return g.newTableFromCollection(fmt.Sprintf("error_log_%d", int(h)), NewCollection(rows), &TableProperties{
		Columns: []ColumnProperties{{Name: "message"}},
	}), nil
}

// MarkDependsOnError sets the DependsOnError property of the named
// operator, marking it as one that consumes the error log itself (e.g.
// a monitoring dashboard subscribing to errors). The flag is only
// recorded: logError does not consult it, so writes to the error log
// are not blocked for such an operator.
func (g *Graph) MarkDependsOnError(operatorName string) {
	props := g.OperatorProperties(operatorName)
	props.DependsOnError = true
	g.SetOperatorProperties(operatorName, props)
}
