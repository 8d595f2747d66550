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

// Package connector implements the external I/O boundary described by
// this engine: readers that turn an external data source into a
// stream of raw records, parsers that turn a raw record into a row of
// Values, and writers that turn rows of Values back into records for an
// external sink. It models cdc-sink's
// internal/source/logical.Provider/Dialect interfaces
// (internal/source/logical/provider.go) -- a pull-based ReadInto loop
// handed a Batcher -- generalized from "replication provider" to
// "dataflow connector".
package connector

import (
	"context"

	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/value"
)

// Record is one raw unit of input read from an external source, before
// parsing: a byte offset (for FromInputOffset keying) plus its payload.
type Record struct {
	SourceID string
	Offset int64
	Payload []byte
}

// Reader pulls Records from an external source, following the
// Provider.ReadInto(ctx, Batcher) pull loop convention.
type Reader interface {
	// Read returns the next Record, or ok=false at end of stream.
	Read(ctx context.Context) (rec Record, ok bool, err error)
	Close() error
}

// Parser turns one Record's payload into a row's Values, per this engine's
// "parsers are pluggable per data format (CSV, JSON Lines...)".
type Parser interface {
	Parse(payload []byte) (values []value.Value, err error)
}

// InputEvent is what a connector hands the dataflow driver for each
// successfully parsed record: a deterministic key (derived via
// key.FromInputOffset unless the parser recovers a primary key itself),
// the parsed row, and whether this is an insertion or a deletion
// (CDC-style connectors emit both).
type InputEvent struct {
	Key key.Key
	Values []value.Value
	IsDelete bool
}

// ReadAndParse drives reader/parser to completion, yielding InputEvents
// in arrival order. The returned channel is closed once the reader is
// exhausted or ctx is canceled; any read/parse error is sent to errs
// before the channel closes, matching pattern of
// surfacing ingestion faults on a side channel rather than panicking
// the read loop.
func ReadAndParse(ctx context.Context, sourceID string, r Reader, p Parser) (<-chan InputEvent, <-chan error) {
	events := make(chan InputEvent)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		defer close(errs)
		for {
			rec, ok, err := r.Read(ctx)
			if err != nil {
				errs <- err
				return
			}
			if !ok {
				return
			}
			vals, err := p.Parse(rec.Payload)
			if err != nil {
				errs <- err
				continue
			}
			k := key.FromInputOffset(sourceID, rec.Offset)
			select {
			case events <- InputEvent{Key: k, Values: vals}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return events, errs
}

// Formatter renders a row's Values back into an external record, the
// writer-side counterpart of Parser.
type Formatter interface {
	Format(values []value.Value) ([]byte, error)
}

// Writer delivers formatted records to an external sink, following the
// applier abstraction in internal/sinktest/base: accept a batch,
// commit it, and report failures distinctly from success so the
// caller can retry.
type Writer interface {
	Write(ctx context.Context, rec []byte) error
	Flush(ctx context.Context) error
	Close() error
}
