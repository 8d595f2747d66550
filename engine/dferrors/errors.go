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

// Package dferrors defines the structured error taxonomy used
// throughout the dataflow engine. Each kind is its
// own exported type so that callers can use errors.As to recover
// structured fields, following types.LeaseBusyError /
// IsLeaseBusy pattern in internal/types/types.go.
package dferrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// --- Structural errors ---

// InvalidHandleError is returned when a Universe/Column/Table/ErrorLog
// handle does not refer to a live entity in the graph's arena.
type InvalidHandleError struct {
	Kind string // "universe", "column", "table", or "error_log"
	ID int
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("invalid %s handle: %d", e.Kind, e.ID)
}

// NewInvalidHandle constructs an InvalidHandleError wrapped with a
// stack trace, matching errors.WithStack-at-construction
// convention.
func NewInvalidHandle(kind string, id int) error {
	return errors.WithStack(&InvalidHandleError{Kind: kind, ID: id})
}

// UniverseMismatchError is returned when two collections expected to
// share a universe do not.
type UniverseMismatchError struct {
	Left, Right int
}

func (e *UniverseMismatchError) Error() string {
	return fmt.Sprintf("universe mismatch: %d vs %d", e.Left, e.Right)
}

// DifferentJoinConditionLengthsError is returned at graph-build time
// when a join's left and right column path lists have different
// lengths.
type DifferentJoinConditionLengthsError struct {
	Left, Right int
}

func (e *DifferentJoinConditionLengthsError) Error() string {
	return fmt.Sprintf("join condition length mismatch: %d left columns vs %d right columns",
		e.Left, e.Right)
}

// LengthMismatchError is returned when two parallel slices that must
// have equal length do not.
type LengthMismatchError struct {
	Left, Right int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("length mismatch: %d vs %d", e.Left, e.Right)
}

// IndexOutOfBoundsError is returned by path navigation and array
// flattening when an index falls outside its container.
type IndexOutOfBoundsError struct {
	Index, Length int
}

func (e *IndexOutOfBoundsError) Error() string {
	return fmt.Sprintf("index %d out of bounds for length %d", e.Index, e.Length)
}

// ErrOperatorIDNotSet is returned when an operator is asked for a
// persistent ID before one has been assigned.
var ErrOperatorIDNotSet = errors.New("operator id not set")

// ErrIterationLimitTooSmall is returned by Iterate when limit < 2.
var ErrIterationLimitTooSmall = errors.New("iteration limit too small: must be at least 2")

// --- Data errors ---

// DuplicateKeyError is logged when an operator would otherwise emit two
// rows under the same key.
type DuplicateKeyError struct {
	Key any
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key: %v", e.Key)
}

// KeyMissingInInputTableError is logged when a column references a key
// absent from its universe.
type KeyMissingInInputTableError struct {
	Key any
}

func (e *KeyMissingInInputTableError) Error() string {
	return fmt.Sprintf("key missing in input table: %v", e.Key)
}

// KeyMissingInOutputTableError is logged when an operator's output
// would reference a key its universe does not contain.
type KeyMissingInOutputTableError struct {
	Key any
}

func (e *KeyMissingInOutputTableError) Error() string {
	return fmt.Sprintf("key missing in output table: %v", e.Key)
}

// UpdatingNonExistingRowError is logged by update_rows/update_cells when
// an update has no matching original row.
type UpdatingNonExistingRowError struct {
	Key any
}

func (e *UpdatingNonExistingRowError) Error() string {
	return fmt.Sprintf("updating non-existing row: %v", e.Key)
}

// ErrExpectedAppendOnly is returned by assert_append_only when a
// retraction is observed.
var ErrExpectedAppendOnly = errors.New("expected append-only stream, saw a retraction")

// ErrExpectedDeletion is returned by expression_table_non_deterministic
// when a cache hit arrives with a diff that is not a deletion.
var ErrExpectedDeletion = errors.New("expected deletion diff")

// ErrAppendOnlyViolation is reported for a diff more negative than -1
// arriving where only a single deletion was expected; see this engine's
// open question on diff <= -1 handling.
var ErrAppendOnlyViolation = errors.New("append-only violation: diff more negative than -1")

// ErrorInFilter, ErrorInReindex, ErrorInJoin, ErrorInGroupBy,
// ErrorInDeduplicate, ErrorInOutput wrap an underlying cause observed
// while evaluating the named operator, for insertion into the error
// log.
var (
	ErrorInFilter = errors.New("error in filter")
	ErrorInReindex = errors.New("error in reindex")
	ErrorInJoin = errors.New("error in join")
	ErrorInGroupBy = errors.New("error in group_by")
	ErrorInDeduplicate = errors.New("error in deduplicate")
	ErrorInValue = errors.New("error in value")
	ErrorInOutput = errors.New("error in output")
)

// ValueError wraps a malformed value observed by an operator (e.g. a
// flatten target that is not a tuple, array, JSON array or string).
type ValueError struct {
	Detail string
}

func (e *ValueError) Error() string { return fmt.Sprintf("value error: %s", e.Detail) }

// --- Policy errors ---

// ErrNotSupportedInIteration is returned when a reducer that requires
// total order at the outer scope is used inside an Iterate body.
var ErrNotSupportedInIteration = errors.New("operator not supported inside an iteration subgraph")

// ErrIONotPossible / ErrIterationNotPossible surface configuration
// mistakes in the external connector interfaces.
var (
	ErrIONotPossible = errors.New("io not possible in this configuration")
	ErrIterationNotPossible = errors.New("iteration not possible in this configuration")
)

// UnsupportedTypeError / TypeMismatchWithSchemaError are raised by the
// expression evaluator and by schema-aware operators.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string { return fmt.Sprintf("unsupported type: %s", e.Type) }

// TypeMismatchWithSchemaError is raised when a value's runtime Kind
// does not match the TableProperties schema expected at that column
// path.
type TypeMismatchWithSchemaError struct {
	Expected, Actual string
}

func (e *TypeMismatchWithSchemaError) Error() string {
	return fmt.Sprintf("type mismatch with schema: expected %s, got %s", e.Expected, e.Actual)
}

// --- External errors ---

// DataflowError wraps an error surfaced by the dataflow runtime itself
// (as opposed to user code).
type DataflowError struct {
	Cause error
}

func (e *DataflowError) Error() string { return "dataflow: " + e.Cause.Error() }
func (e *DataflowError) Unwrap() error { return e.Cause }

// WorkerPanicError wraps a panic recovered from a worker goroutine,
// grounded on custom panic hook design note.
type WorkerPanicError struct {
	WorkerIndex int
	Recovered any
}

func (e *WorkerPanicError) Error() string {
	return fmt.Sprintf("worker %d panicked: %v", e.WorkerIndex, e.Recovered)
}

// DynError wraps an arbitrary user error so it can flow through the
// same error-log machinery as the structured kinds above.
type DynError struct {
	Cause error
}

func (e *DynError) Error() string { return e.Cause.Error() }
func (e *DynError) Unwrap() error { return e.Cause }

// --- errors.As-style helpers, mirroring types.IsLeaseBusy ---

// IsDuplicateKey reports whether err (or a wrapped cause) is a
// DuplicateKeyError.
func IsDuplicateKey(err error) (dup *DuplicateKeyError, ok bool) {
	return dup, errors.As(err, &dup)
}

// IsKeyMissingInInputTable reports whether err is a
// KeyMissingInInputTableError.
func IsKeyMissingInInputTable(err error) (e *KeyMissingInInputTableError, ok bool) {
	return e, errors.As(err, &e)
}

// IsKeyMissingInOutputTable reports whether err is a
// KeyMissingInOutputTableError.
func IsKeyMissingInOutputTable(err error) (e *KeyMissingInOutputTableError, ok bool) {
	return e, errors.As(err, &e)
}

// IsValueError reports whether err is a ValueError.
func IsValueError(err error) (e *ValueError, ok bool) {
	return e, errors.As(err, &e)
}
