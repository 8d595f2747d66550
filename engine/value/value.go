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

// Package value defines the tagged-variant Value type that flows
// through every dataflow collection, along with the total order and
// hashing used to derive keys and to consolidate diffs.
package value

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"time"
)

// Kind identifies which branch of a Value is populated.
type Kind int

//go:generate go run golang.org/x/tools/cmd/stringer -type=Kind -trimprefix Kind

// The variants of Value, in the order given by this engine.
const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindPointer
	KindTuple
	KindIntArray
	KindFloatArray
	KindJSON
	KindDateTimeNaive
	KindDateTimeUTC
	KindDuration
	KindError
	KindPending
	KindPyObject
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	case KindPointer:
		return "Pointer"
	case KindTuple:
		return "Tuple"
	case KindIntArray:
		return "IntArray"
	case KindFloatArray:
		return "FloatArray"
	case KindJSON:
		return "Json"
	case KindDateTimeNaive:
		return "DateTimeNaive"
	case KindDateTimeUTC:
		return "DateTimeUtc"
	case KindDuration:
		return "Duration"
	case KindError:
		return "Error"
	case KindPending:
		return "Pending"
	case KindPyObject:
		return "PyObjectWrapper"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Pointer is implemented by key.Key. It is declared here, rather than
// imported directly, to avoid a cyclic dependency between value and
// key: key.ForValues needs to hash a Value, and a Value needs to
// hold a key.Key in its Pointer branch.
type Pointer interface {
	Less(other Pointer) bool
	Bytes() []byte
}

// Value is a tagged variant over the types a dataflow column may carry.
// The zero Value is KindNone. Values are not comparable with == (the
// struct holds slices); Compare and Equal implement the full
// structural total order.
type Value struct {
	kind Kind

	i int64 // Int, DateTimeNaive/Utc (unix nanos), Duration (nanos)
	f float64 // Float
	b bool // Bool
	s string // String, Bytes (raw), Json (raw text), Error (message)
	ptr any // Pointer: holds a key.Key: set via NewPointer
	tuple []Value // Tuple
	ints []int64 // IntArray, flattened row-major
	floats []float64 // FloatArray, flattened row-major
	shape []int // IntArray/FloatArray dimensions
	py any // PyObjectWrapper: opaque payload
}

// None is the canonical empty Value.
var None = Value{kind: KindNone}

// Pending marks a not-yet-arrived asynchronous value.
var Pending = Value{kind: KindPending}

// NewBool wraps a bool.
func NewBool(b bool) Value { return Value{kind: KindBool, b: b} }

// NewInt wraps an int64.
func NewInt(i int64) Value { return Value{kind: KindInt, i: i} }

// NewFloat wraps a float64.
func NewFloat(f float64) Value { return Value{kind: KindFloat, f: f} }

// NewString wraps a string.
func NewString(s string) Value { return Value{kind: KindString, s: s} }

// NewBytes wraps a byte slice.
func NewBytes(b []byte) Value { return Value{kind: KindBytes, s: string(b)} }

// NewPointer wraps a key.Key (or any comparable 128-bit key type).
// It is generic over Pointer so that engine/key.Key, which itself
// depends on engine/value for ForValues, need not be imported here.
func NewPointer[P Pointer](p P) Value { return Value{kind: KindPointer, ptr: p} }

// NewTuple wraps a positional sequence of Values.
func NewTuple(vs...Value) Value { return Value{kind: KindTuple, tuple: vs} }

// NDArrayShapeFieldName and NDArrayElementsFieldName name the two
// fields an external Arrow/Delta schema translator must agree on when
// it serializes a KindIntArray/KindFloatArray Value to a struct column:
// one field holding the dimensions, one holding the flattened,
// row-major elements. The engine itself never reads these constants --
// they exist so the (out of scope) Arrow-side conversion and this
// package name the same two fields.
const (
	NDArrayShapeFieldName    = "shape"
	NDArrayElementsFieldName = "elements"
)

// NewIntArray wraps a row-major n-dimensional array of int64.
func NewIntArray(shape []int, data []int64) Value {
	return Value{kind: KindIntArray, shape: append([]int(nil), shape...), ints: data}
}

// NewFloatArray wraps a row-major n-dimensional array of float64.
func NewFloatArray(shape []int, data []float64) Value {
	return Value{kind: KindFloatArray, shape: append([]int(nil), shape...), floats: data}
}

// NewJSON wraps the raw text of a JSON document. The engine stores the
// raw text; only Flatten parses it, to expand a JSON array.
func NewJSON(raw string) Value { return Value{kind: KindJSON, s: raw} }

// NewDateTimeNaive wraps a timestamp with no associated timezone,
// stored as nanoseconds since the Unix epoch in an unspecified zone.
func NewDateTimeNaive(nanos int64) Value { return Value{kind: KindDateTimeNaive, i: nanos} }

// NewDateTimeUTC wraps a UTC timestamp, stored as nanoseconds since the
// Unix epoch.
func NewDateTimeUTC(t time.Time) Value {
	return Value{kind: KindDateTimeUTC, i: t.UnixNano()}
}

// NewDuration wraps a signed duration in nanoseconds.
func NewDuration(d time.Duration) Value { return Value{kind: KindDuration, i: int64(d)} }

// NewError wraps an error message. A Value of KindError taints any
// tuple that contains it, error-opacity invariant.
func NewError(msg string) Value { return Value{kind: KindError, s: msg} }

// NewErrorf is a convenience wrapper around NewError + fmt.Sprintf.
func NewErrorf(format string, args...any) Value {
	return NewError(fmt.Sprintf(format, args...))
}

// NewPyObject wraps an opaque payload that the engine does not
// interpret; it only moves it around and compares it by identity.
func NewPyObject(obj any) Value { return Value{kind: KindPyObject, py: obj} }

// Kind reports which branch of the Value is populated.
func (v Value) Kind() Kind { return v.kind }

// IsError reports whether v is KindError.
func (v Value) IsError() bool { return v.kind == KindError }

// IsNone reports whether v is KindNone.
func (v Value) IsNone() bool { return v.kind == KindNone }

// IsPending reports whether v is KindPending.
func (v Value) IsPending() bool { return v.kind == KindPending }

// AsBool returns the wrapped bool; ok is false if v is not KindBool.
func (v Value) AsBool() (b, ok bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt returns the wrapped int64; ok is false if v is not KindInt.
func (v Value) AsInt() (i int64, ok bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat returns the wrapped float64; ok is false if v is not KindFloat.
func (v Value) AsFloat() (f float64, ok bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

// AsString returns the wrapped string for KindString or KindJSON.
func (v Value) AsString() (s string, ok bool) {
	if v.kind != KindString && v.kind != KindJSON {
		return "", false
	}
	return v.s, true
}

// AsBytes returns the wrapped byte slice for KindBytes.
func (v Value) AsBytes() (b []byte, ok bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return []byte(v.s), true
}

// AsTuple returns the wrapped slice for KindTuple.
func (v Value) AsTuple() (vs []Value, ok bool) {
	if v.kind != KindTuple {
		return nil, false
	}
	return v.tuple, true
}

// AsIntArray returns the wrapped shape and flattened data for KindIntArray.
func (v Value) AsIntArray() (shape []int, data []int64, ok bool) {
	if v.kind != KindIntArray {
		return nil, nil, false
	}
	return v.shape, v.ints, true
}

// AsFloatArray returns the wrapped shape and flattened data for KindFloatArray.
func (v Value) AsFloatArray() (shape []int, data []float64, ok bool) {
	if v.kind != KindFloatArray {
		return nil, nil, false
	}
	return v.shape, v.floats, true
}

// AsPointer type-asserts the wrapped key to P. Callers in engine/key use
// this with their concrete Key type.
func AsPointer[P Pointer](v Value) (p P, ok bool) {
	if v.kind != KindPointer {
		return p, false
	}
	p, ok = v.ptr.(P)
	return p, ok
}

// AsDuration returns the wrapped duration for KindDuration.
func (v Value) AsDuration() (d time.Duration, ok bool) {
	if v.kind != KindDuration {
		return 0, false
	}
	return time.Duration(v.i), true
}

// AsNanos returns the raw nanosecond count backing a DateTimeNaive,
// DateTimeUtc or Duration value.
func (v Value) AsNanos() (nanos int64, ok bool) {
	switch v.kind {
	case KindDateTimeNaive, KindDateTimeUTC, KindDuration:
		return v.i, true
	default:
		return 0, false
	}
}

// ErrorMessage returns the message carried by a KindError Value.
func (v Value) ErrorMessage() string {
	if v.kind != KindError {
		return ""
	}
	return v.s
}

// PyObject returns the opaque payload of a KindPyObject Value.
func (v Value) PyObject() (obj any, ok bool) {
	if v.kind != KindPyObject {
		return nil, false
	}
	return v.py, true
}

// kindOrder fixes the ordering used between values of different kinds,
// so that Compare defines a total order over the whole Value space
//.
func kindOrder(k Kind) int {
	switch k {
	case KindNone:
		return 0
	case KindPending:
		return 1
	case KindBool:
		return 2
	case KindInt:
		return 3
	case KindFloat:
		return 4
	case KindString:
		return 5
	case KindBytes:
		return 6
	case KindPointer:
		return 7
	case KindTuple:
		return 8
	case KindIntArray:
		return 9
	case KindFloatArray:
		return 10
	case KindJSON:
		return 11
	case KindDateTimeNaive:
		return 12
	case KindDateTimeUTC:
		return 13
	case KindDuration:
		return 14
	case KindPyObject:
		return 15
	case KindError:
		return 16
	default:
		return 17
	}
}

// Compare implements a total order over Value, consistent with Equal.
// Errors sort last among non-error kinds so that, all else equal, a
// row's error status is the most significant ordering key only when
// explicitly compared against another error.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		return intCompare(int64(kindOrder(a.kind)), int64(kindOrder(b.kind)))
	}
	switch a.kind {
	case KindNone, KindPending:
		return 0
	case KindBool:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case KindInt:
		return intCompare(a.i, b.i)
	case KindFloat:
		return floatCompare(a.f, b.f)
	case KindString, KindJSON, KindError:
		return compareStrings(a.s, b.s)
	case KindBytes:
		return bytes.Compare([]byte(a.s), []byte(b.s))
	case KindPointer:
		return comparePointers(a.ptr, b.ptr)
	case KindTuple:
		return compareTuples(a.tuple, b.tuple)
	case KindIntArray:
		return compareIntArrays(a, b)
	case KindFloatArray:
		return compareFloatArrays(a, b)
	case KindDateTimeNaive, KindDateTimeUTC, KindDuration:
		return intCompare(a.i, b.i)
	case KindPyObject:
		return comparePointers(a.py, b.py)
	default:
		return 0
	}
}

// Equal reports whether two Values compare equal under Compare.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

func intCompare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func floatCompare(a, b float64) int {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return 1
	case math.IsNaN(b):
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func comparePointers(a, b any) int {
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return compareStrings(as, bs)
}

func compareTuples(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return intCompare(int64(len(a)), int64(len(b)))
}

func compareIntArrays(a, b Value) int {
	if c := compareShapes(a.shape, b.shape); c != 0 {
		return c
	}
	n := len(a.ints)
	if len(b.ints) < n {
		n = len(b.ints)
	}
	for i := 0; i < n; i++ {
		if c := intCompare(a.ints[i], b.ints[i]); c != 0 {
			return c
		}
	}
	return intCompare(int64(len(a.ints)), int64(len(b.ints)))
}

func compareFloatArrays(a, b Value) int {
	if c := compareShapes(a.shape, b.shape); c != 0 {
		return c
	}
	n := len(a.floats)
	if len(b.floats) < n {
		n = len(b.floats)
	}
	for i := 0; i < n; i++ {
		if c := floatCompare(a.floats[i], b.floats[i]); c != 0 {
			return c
		}
	}
	return intCompare(int64(len(a.floats)), int64(len(b.floats)))
}

func compareShapes(a, b []int) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := intCompare(int64(a[i]), int64(b[i])); c != 0 {
			return c
		}
	}
	return intCompare(int64(len(a)), int64(len(b)))
}

// String renders a Value for logging and debugging. It is not meant to
// round-trip.
func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "None"
	case KindPending:
		return "Pending"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindBytes:
		return fmt.Sprintf("Bytes(%d)", len(v.s))
	case KindPointer:
		return fmt.Sprintf("Pointer(%v)", v.ptr)
	case KindTuple:
		return fmt.Sprintf("%v", v.tuple)
	case KindIntArray:
		return fmt.Sprintf("IntArray%v%v", v.shape, v.ints)
	case KindFloatArray:
		return fmt.Sprintf("FloatArray%v%v", v.shape, v.floats)
	case KindJSON:
		return v.s
	case KindDateTimeNaive:
		return fmt.Sprintf("DateTimeNaive(%d)", v.i)
	case KindDateTimeUTC:
		return fmt.Sprintf("DateTimeUtc(%d)", v.i)
	case KindDuration:
		return time.Duration(v.i).String()
	case KindError:
		return fmt.Sprintf("Error(%s)", v.s)
	case KindPyObject:
		return fmt.Sprintf("PyObjectWrapper(%v)", v.py)
	default:
		return "?"
	}
}

// Hash appends a Value's contribution to an FNV-1a style accumulator.
// It is used by engine/key.ForValues to derive a Key from a tuple of
// Values; it is not a cryptographic hash.
func (v Value) Hash(acc uint64) uint64 {
	const prime = 1099511628211
	acc = hashByte(acc, byte(v.kind))
	switch v.kind {
	case KindNone, KindPending:
		return acc
	case KindBool:
		if v.b {
			return hashByte(acc, 1)
		}
		return hashByte(acc, 0)
	case KindInt, KindDateTimeNaive, KindDateTimeUTC, KindDuration:
		return hashUint64(acc, uint64(v.i))
	case KindFloat:
		return hashUint64(acc, math.Float64bits(v.f))
	case KindString, KindBytes, KindJSON, KindError:
		return hashString(acc, v.s)
	case KindPointer:
		return hashString(acc, fmt.Sprint(v.ptr))
	case KindTuple:
		for _, e := range v.tuple {
			acc = e.Hash(acc)
		}
		return acc
	case KindIntArray:
		for _, d := range v.shape {
			acc = hashUint64(acc, uint64(d))
		}
		for _, e := range v.ints {
			acc = hashUint64(acc, uint64(e))
		}
		return acc
	case KindFloatArray:
		for _, d := range v.shape {
			acc = hashUint64(acc, uint64(d))
		}
		for _, e := range v.floats {
			acc = hashUint64(acc, math.Float64bits(e))
		}
		return acc
	case KindPyObject:
		return hashString(acc, fmt.Sprint(v.py))
	default:
		_ = prime
		return acc
	}
}

func hashByte(acc uint64, b byte) uint64 {
	acc ^= uint64(b)
	acc *= 1099511628211
	return acc
}

func hashUint64(acc uint64, u uint64) uint64 {
	for i := 0; i < 8; i++ {
		acc = hashByte(acc, byte(u>>(8*i)))
	}
	return acc
}

func hashString(acc uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		acc = hashByte(acc, s[i])
	}
	return acc
}

// wireValue is Value's on-the-wire shape for gob serialization: Value's
// fields are unexported, so GobEncode/GobDecode round-trip through this
// exported mirror instead of relying on gob's reflection over Value
// directly. Pointer and PyObject are not representable here (neither
// carries a concrete type value knows how to reconstruct without
// importing engine/key, which would cycle); encoding one is an error.
type wireValue struct {
	Kind   Kind
	I      int64
	F      float64
	B      bool
	S      string
	Tuple  []Value
	Ints   []int64
	Floats []float64
	Shape  []int
}

// GobEncode implements gob.GobEncoder, letting a Value (or a slice of
// Values) be persisted via encoding/gob, the format engine/persist uses
// for its snapshot log.
func (v Value) GobEncode() ([]byte, error) {
	if v.kind == KindPointer || v.kind == KindPyObject {
		return nil, fmt.Errorf("value: Kind %s is not gob-serializable", v.kind)
	}
	var buf bytes.Buffer
	w := wireValue{
		Kind: v.kind, I: v.i, F: v.f, B: v.b, S: v.s,
		Tuple: v.tuple, Ints: v.ints, Floats: v.floats, Shape: v.shape,
	}
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (v *Value) GobDecode(data []byte) error {
	var w wireValue
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	*v = Value{
		kind: w.Kind, i: w.I, f: w.F, b: w.B, s: w.S,
		tuple: w.Tuple, ints: w.Ints, floats: w.Floats, shape: w.Shape,
	}
	return nil
}
