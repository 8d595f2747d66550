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

// BroadcastChunkSize bounds how many rows of a broadcast source are
// folded into the target universe per call to AdvanceBroadcast, per
// "gradual broadcast: replicate a (typically small) table to
// every worker over several steps rather than all at once, so a large
// broadcast doesn't stall the rest of the dataflow for one tick".
const BroadcastChunkSize = 4096

// BroadcastState tracks how much of a source collection's rows have
// been folded into a gradual broadcast so far. In this single-process
// reference engine there is only ever one worker, so "replicate to
// every worker" degenerates to "copy the rows across", but the gradual
// (chunked) admission discipline is preserved so that a caller driving
// the dataflow one step at a time sees the same incremental-progress
// behavior a multi-worker deployment would.
type BroadcastState struct {
	source *Collection
	admitted int
}

// NewBroadcast begins gradually broadcasting source.
func NewBroadcast(source ColumnHandle, g *Graph) (*BroadcastState, error) {
	col, _, err := g.Column(source)
	if err != nil {
		return nil, err
	}
	return &BroadcastState{source: col}, nil
}

// Done reports whether every row of the source has been admitted.
func (b *BroadcastState) Done() bool {
	return b.admitted >= len(b.source.Rows())
}

// Advance admits up to BroadcastChunkSize additional rows and returns
// them; repeated calls drain the source collection in time order,
// matching requirement that a gradual broadcast eventually
// delivers every row exactly once.
func (b *BroadcastState) Advance() []Row {
	rows := sortedByTime(b.source.Rows())
	end := b.admitted + BroadcastChunkSize
	if end > len(rows) {
		end = len(rows)
	}
	chunk := rows[b.admitted:end]
	b.admitted = end
	return chunk
}
