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

// Package handle implements the per-worker arena that backs the
// dataflow graph's stable integer handles. This generalizes
// internal/util/ident.SchemaMap/TableMap idiom -- a
// comparable key type addressing into worker-local storage -- to an
// autoincrementing integer handle addressing into a slice arena.
package handle

import (
	"fmt"
	"sync"
)

// ID is the raw integer underlying every handle type the dataflow
// package exposes (UniverseHandle, ColumnHandle, TableHandle,
// ErrorLogHandle). Keeping it as a single underlying type here, with
// distinct named types declared at the point of use, lets every handle
// share one Arena implementation while remaining impossible to mix up
// at the Go type-checker level.
type ID int

// Invalid is never returned by Alloc.
const Invalid ID = -1

// Arena is a single-owner, append-only store of per-worker entities.
// Entries are never removed; the arena (and any lazy caches held by its
// entries) is dropped wholesale when the worker's dataflow scope ends.
type Arena[T any] struct {
	mu sync.Mutex
	items []T
}

// NewArena constructs an empty Arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Alloc appends v to the arena and returns its stable handle.
func (a *Arena[T]) Alloc(v T) ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := ID(len(a.items))
	a.items = append(a.items, v)
	return id
}

// Get returns the entity at id, or the zero value and false if id is
// out of range.
func (a *Arena[T]) Get(id ID) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var zero T
	if id < 0 || int(id) >= len(a.items) {
		return zero, false
	}
	return a.items[id], true
}

// MustGet is Get, panicking on an invalid handle. It is used internally
// once a handle has already been validated by the graph-building API's
// Result-returning accessors.
func (a *Arena[T]) MustGet(id ID) T {
	v, ok := a.Get(id)
	if !ok {
		panic(fmt.Sprintf("handle.Arena: invalid id %d", id))
	}
	return v
}

// Set overwrites the entity at id. Entities are conceptually immutable
// after construction, but their *contents* may include lazily-memoized
// caches (the arranged/consolidated forms of a Collection) implemented
// with interior mutability; Set supports replacing an entry wholesale
// when that is simpler than a mutex inside the entry itself.
func (a *Arena[T]) Set(id ID, v T) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < 0 || int(id) >= len(a.items) {
		panic(fmt.Sprintf("handle.Arena: invalid id %d", id))
	}
	a.items[id] = v
}

// Len returns the number of entities allocated so far.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Range calls fn for every (id, entity) pair in allocation order. It
// does not hold the arena's lock while fn runs.
func (a *Arena[T]) Range(fn func(id ID, v T) error) error {
	a.mu.Lock()
	items := append([]T(nil), a.items...)
	a.mu.Unlock()
	for i, v := range items {
		if err := fn(ID(i), v); err != nil {
			return err
		}
	}
	return nil
}
