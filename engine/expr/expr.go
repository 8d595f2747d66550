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

// Package expr implements the expression evaluator behind this engine's
// expression_column / expression_table operators: a per-row function
// of a tuple of input Values producing a single output Value. Compiled
// expressions are plain Go closures (Func); the optional Script
// wrapper, compiles a
// short user-supplied JavaScript snippet with github.com/dop251/goja --
// the pure-Go JS engine in the dependency set -- for
// deployments that want to accept a computed column expression as
// configuration data rather than Go source (mirroring own
// appetite for pluggable, string-configured logic, e.g. Dialect names
// resolved at runtime in internal/source/logical).
package expr

import (
	"fmt"

	"github.com/cockroachdb/dataflow/engine/value"
	"github.com/dop251/goja"
	"github.com/pkg/errors"
)

// Func is a compiled expression: a pure function from a row's input
// tuple to one output Value. Evaluation must not retain references to
// its input slice past return.
type Func func(inputs []value.Value) (value.Value, error)

// Deterministic marks whether repeated calls to a Func with the same
// inputs always produce the same output, distinction
// between expression_column (deterministic, memoized per input tuple)
// and expression_table_non_deterministic (evaluated fresh every time,
// with stale cache entries explicitly retracted).
type Deterministic bool

const (
	IsDeterministic Deterministic = true
	IsNonDeterministic Deterministic = false
)

// Compiled pairs a Func with its determinism classification and an
// optional batch size hint, matching this engine's
// max_expression_batch_size config knob: a non-deterministic expression
// evaluated against an external system (e.g. an HTTP lookup) should be
// called in batches rather than one row at a time.
type Compiled struct {
	Fn Func
	Determinism Deterministic
	MaxBatchSize int
}

// EvalBatch evaluates c against every row of inputs, one Fn call per
// row, and produces one output per input row. It does not read
// MaxBatchSize: all rows are evaluated in a single pass.
func (c Compiled) EvalBatch(inputs [][]value.Value) ([]value.Value, error) {
	out := make([]value.Value, len(inputs))
	for i, row := range inputs {
		v, err := c.Fn(row)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluating expression at row %d", i)
		}
		out[i] = v
	}
	return out, nil
}

// Cache memoizes a deterministic Compiled expression's output per input
// tuple, note that expression_column is "transparently
// memoized; a cache hit skips recomputation entirely, a stale entry for
// a retracted input is itself retracted downstream". The cache key is
// the tuple's rendered string form -- sufficient for the column types
// this engine supports, all of which round-trip through Value.String
// losslessly for hashing purposes.
type Cache struct {
	compiled Compiled
	entries map[string]value.Value
}

// NewCache wraps compiled with a memoizing cache. It panics if compiled
// is not deterministic, since caching a non-deterministic expression
// would silently violate contract for that operator variant.
func NewCache(compiled Compiled) *Cache {
	if compiled.Determinism != IsDeterministic {
		panic("expr: Cache requires a deterministic Compiled expression")
	}
	return &Cache{compiled: compiled, entries: make(map[string]value.Value)}
}

func cacheKey(inputs []value.Value) string {
	s := ""
	for _, v := range inputs {
		s += v.String() + "\x00"
	}
	return s
}

// Eval returns the cached output for inputs if present, otherwise
// evaluates, caches, and returns the new result.
func (c *Cache) Eval(inputs []value.Value) (value.Value, error) {
	k := cacheKey(inputs)
	if v, ok := c.entries[k]; ok {
		return v, nil
	}
	v, err := c.compiled.Fn(inputs)
	if err != nil {
		return value.None, err
	}
	c.entries[k] = v
	return v, nil
}

// Forget evicts inputs' cached entry, called when the row that produced
// it has been retracted upstream.
func (c *Cache) Forget(inputs []value.Value) {
	delete(c.entries, cacheKey(inputs))
}

// Script compiles a JavaScript expression, evaluated with goja, into a
// Func. The script sees its row's values bound to `args` (a JS array)
// and must evaluate to a boolean, number or string (null and undefined
// become None); any other result, arrays included, is an error.
type Script struct {
	program *goja.Program
}

// CompileScript parses source once; the returned Script's Func compiles
// to a fresh goja.Runtime per call so that concurrent column
// evaluations never share mutable interpreter state.
func CompileScript(source string) (*Script, error) {
	program, err := goja.Compile("expression", "(function(args) { return ("+source+"); })", true)
	if err != nil {
		return nil, errors.Wrap(err, "compiling expression script")
	}
	return &Script{program: program}, nil
}

// Func returns a Func that evaluates s against a row's inputs.
func (s *Script) Func() Func {
	return func(inputs []value.Value) (value.Value, error) {
		vm := goja.New()
		fnVal, err := vm.RunProgram(s.program)
		if err != nil {
			return value.None, errors.Wrap(err, "loading expression script")
		}
		fn, ok := goja.AssertFunction(fnVal)
		if !ok {
			return value.None, errors.New("expression script did not produce a callable")
		}
		jsArgs := make([]any, len(inputs))
		for i, v := range inputs {
			jsArgs[i] = jsValueOf(v)
		}
		result, err := fn(goja.Undefined(), vm.ToValue(jsArgs))
		if err != nil {
			return value.None, errors.Wrap(err, "evaluating expression script")
		}
		return valueOfJS(result)
	}
}

func jsValueOf(v value.Value) any {
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindInt:
		i, _ := v.AsInt()
		return i
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f
	case value.KindString, value.KindJSON:
		s, _ := v.AsString()
		return s
	case value.KindNone:
		return nil
	default:
		return v.String()
	}
}

func valueOfJS(v goja.Value) (value.Value, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return value.None, nil
	}
	exported := v.Export()
	switch e := exported.(type) {
	case bool:
		return value.NewBool(e), nil
	case int64:
		return value.NewInt(e), nil
	case float64:
		if float64(int64(e)) == e {
			return value.NewInt(int64(e)), nil
		}
		return value.NewFloat(e), nil
	case string:
		return value.NewString(e), nil
	default:
		return value.None, fmt.Errorf("expr: unsupported script result type %T", exported)
	}
}
