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

// Package persist implements the persistence wrapper described by
// this engine: an abstract indirection that may attach
// persistent state to any arranged collection, or pass it through
// unchanged. It models types.Memo
// interface (internal/types/types.go) -- a key/value store scoped to a
// transaction-like querier -- generalized here from a SQL-backed store
// to the Storage interface below, and on internal/staging/memo's
// read-at-a-timestamp discipline (referenced by cdc-sink's
// ProvideFactory wiring but not included in the ecosystem).
package persist

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
	"github.com/pkg/errors"
)

// EventKind identifies the variant of a SnapshotEvent: an Insert or
// Delete of a keyed row, or an AdvanceTime marking a new frontier.
type EventKind int

const (
	EventInsert EventKind = iota
	EventDelete
	EventAdvanceTime
)

// SnapshotEvent is one entry in an operator's persisted snapshot log.
type SnapshotEvent struct {
	Kind EventKind
	Key key.Key
	Values []value.Value
	Time ts.Time
	Frontier map[string]string // offset-key -> offset-value, for AdvanceTime
}

// Label distinguishes a replayed entry (Old) from one produced during
// the current run (New); the persistence wrapper supplies OldOrNew
// labelled entries so a reducer can prime its state from Old ones
// before processing New ones.
type Label int

const (
	LabelNew Label = iota
	LabelOld
)

// OldOrNew wraps a value with its replay label.
type OldOrNew[T any] struct {
	Label Label
	Value T
}

// IsOld reports whether this entry was replayed from a prior run.
func (o OldOrNew[T]) IsOld() bool { return o.Label == LabelOld }

// Mode selects how aggressively an operator's state is persisted.
type Mode int

const (
	// OperatorPersistence is used by most internal operators: state is
	// saved only if a persistence config is set on the graph.
	OperatorPersistence Mode = iota
	// InputOrOperatorPersistence is used by inputs and deduplicate:
	// state is saved so a restart reproduces emitted outputs.
	InputOrOperatorPersistence
)

// SnapshotReader replays a previously-written snapshot log in order.
type SnapshotReader interface {
	// Next returns the next event, or ok=false once exhausted.
	Next() (event SnapshotEvent, ok bool, err error)
	Close() error
}

// SnapshotWriter appends events to an operator's persisted snapshot
// log.
type SnapshotWriter interface {
	Write(event SnapshotEvent) error
	Close() error
}

// Storage is the persistence collaborator named in this engine
// ("WorkerPersistentStorage"), generalized from cdc-sink's
// types.Memo (Get/Put keyed by a string) into a snapshot-log store
// keyed by a persistent operator ID.
type Storage interface {
	// Get/Put implement types.Memo contract directly:
	// a flat key/value store, used for small pieces of state such as
	// the deduplicate combine_fn's last-seen value.
	Get(memoKey string) ([]byte, bool, error)
	Put(memoKey string, value []byte) error

	// OpenSnapshotReader/Writer give an operator its own
	// append-only log of SnapshotEvents, identified by a persistent
	// ID.
	OpenSnapshotReader(pid string) (SnapshotReader, error)
	OpenSnapshotWriter(pid string) (SnapshotWriter, error)

	// LastFinalizedTimestamp returns the last timestamp this storage
	// is known to have durably committed for pid, for cdc-sink's
	// WorkerPersistentStorage.last_finalized_timestamp contract.
	LastFinalizedTimestamp(pid string) ts.Time
}

// Empty is the pass-through implementation: every operator wrapped
// with it behaves as though no persistence config was set.
type Empty struct{}

var _ Storage = Empty{}

func (Empty) Get(string) ([]byte, bool, error) { return nil, false, nil }
func (Empty) Put(string, []byte) error { return nil }
func (Empty) LastFinalizedTimestamp(string) ts.Time { return ts.Zero() }

func (Empty) OpenSnapshotReader(string) (SnapshotReader, error) {
	return emptyReader{}, nil
}
func (Empty) OpenSnapshotWriter(string) (SnapshotWriter, error) {
	return emptyWriter{}, nil
}

type emptyReader struct{}

func (emptyReader) Next() (SnapshotEvent, bool, error) { return SnapshotEvent{}, false, nil }
func (emptyReader) Close() error { return nil }

type emptyWriter struct{}

func (emptyWriter) Write(SnapshotEvent) error { return nil }
func (emptyWriter) Close() error { return nil }

// InMemory is a timestamp-based Storage implementation that keeps
// every operator's snapshot log and memo entries in process memory,
// serializing through encoding/gob. It stands in for cdc-sink's
// SQL-table-backed internal/staging/memo wherever a caller has not
// configured a durable backing store.
type InMemory struct {
	mu sync.Mutex
	memos map[string][]byte
	logs map[string][]SnapshotEvent
	lastFin map[string]ts.Time
}

var _ Storage = (*InMemory)(nil)

// NewInMemory constructs an empty InMemory store.
func NewInMemory() *InMemory {
	return &InMemory{
		memos: make(map[string][]byte),
		logs: make(map[string][]SnapshotEvent),
		lastFin: make(map[string]ts.Time),
	}
}

func (s *InMemory) Get(memoKey string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.memos[memoKey]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *InMemory) Put(memoKey string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memos[memoKey] = append([]byte(nil), value...)
	return nil
}

func (s *InMemory) LastFinalizedTimestamp(pid string) ts.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFin[pid]
}

func (s *InMemory) OpenSnapshotReader(pid string) (SnapshotReader, error) {
	s.mu.Lock()
	events := append([]SnapshotEvent(nil), s.logs[pid]...)
	s.mu.Unlock()
	return &inMemoryReader{events: events}, nil
}

func (s *InMemory) OpenSnapshotWriter(pid string) (SnapshotWriter, error) {
	return &inMemoryWriter{store: s, pid: pid}, nil
}

type inMemoryReader struct {
	events []SnapshotEvent
	pos int
}

func (r *inMemoryReader) Next() (SnapshotEvent, bool, error) {
	if r.pos >= len(r.events) {
		return SnapshotEvent{}, false, nil
	}
	e := r.events[r.pos]
	r.pos++
	return e, true, nil
}

func (r *inMemoryReader) Close() error { return nil }

type inMemoryWriter struct {
	store *InMemory
	pid string
}

func (w *inMemoryWriter) Write(e SnapshotEvent) error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.logs[w.pid] = append(w.store.logs[w.pid], e)
	if e.Kind == EventAdvanceTime {
		w.store.lastFin[w.pid] = e.Time
	}
	return nil
}

func (w *inMemoryWriter) Close() error { return nil }

// EncodeValues/DecodeValues round-trip a row's payload through gob, for
// use by SnapshotWriter/Reader implementations backed by a real
// on-disk log. Value implements GobEncode/GobDecode, so the tagged
// variant (not just its string rendering) survives the round trip.
func EncodeValues(vs []value.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vs); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

// DecodeValues is EncodeValues's inverse.
func DecodeValues(data []byte) ([]value.Value, error) {
	var vs []value.Value
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vs); err != nil {
		return nil, errors.WithStack(err)
	}
	return vs, nil
}
