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
	"github.com/cockroachdb/dataflow/engine/dferrors"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/persist"
	"github.com/cockroachdb/dataflow/engine/value"
)

// CombineFn decides, given the previously accepted value for a key (or
// ok=false if none has been accepted yet) and a newly arrived
// candidate, whether the candidate should be accepted and become the
// new "previously accepted" value.
type CombineFn func(previous value.Value, previousOK bool, candidate value.Value) (accept bool)

// Deduplicate emits, for each key, every non-retraction value that
// combineFn accepts (each as a +1 row), suppressing the values the
// function rejects, per deduplicate operator. State survives restarts through
// storage (InputOrOperatorPersistence), matching
// insistence that a source's already-applied offsets
// survive a resolver restart (internal/source/cdc/resolver.go).
// Candidates that are Value::Error are dropped and logged via errLog
// as ErrorInDeduplicate rather than offered to combineFn.
func (g *Graph) Deduplicate(source ColumnHandle, combineFn CombineFn, storage persist.Storage, persistentID string, errLog ErrorLogHandle) (UniverseHandle, ColumnHandle, error) {
	col, _, err := g.Column(source)
	if err != nil {
		return 0, 0, err
	}

	previous := make(map[key.Key]value.Value)
	previousOK := make(map[key.Key]bool)
	loadDedupState(storage, persistentID, previous, previousOK)

	var universeRows []Row
	var valueRows []Row
	for _, tg := range col.TimeGroups() {
		for _, r := range tg.Rows {
			if r.Diff < 0 {
				continue
			}
			candidate := firstElem(r.Values)
			if candidate.IsError() {
				g.logError(errLog, r.Key, r.Time, dferrors.ErrorInDeduplicate)
				continue
			}
			prev := previous[r.Key]
			if !combineFn(prev, previousOK[r.Key], candidate) {
				continue
			}
			previous[r.Key] = candidate
			previousOK[r.Key] = true
			universeRows = append(universeRows, Row{Key: r.Key, Time: r.Time, Diff: 1})
			valueRows = append(valueRows, Row{Key: r.Key, Values: []value.Value{candidate}, Time: r.Time, Diff: 1})
			_ = prev
		}
	}
	saveDedupState(storage, persistentID, previous)

	u := g.newUniverseFromCollection(NewCollection(universeRows))
	c := g.newColumnFromCollection(u, NewCollection(valueRows), nil)
	return u, c, nil
}

func loadDedupState(storage persist.Storage, pid string, previous map[key.Key]value.Value, previousOK map[key.Key]bool) {
	reader, err := storage.OpenSnapshotReader(pid)
	if err != nil {
		return
	}
	defer reader.Close()
	for {
		ev, ok, err := reader.Next()
		
		if err != nil || !ok {
			return
		}
		switch ev.Kind {
		case persist.EventInsert:
			if len(ev.Values) > 0 {
				previous[ev.Key] = ev.Values[0]
				previousOK[ev.Key] = true
			}
		case persist.EventDelete:
			delete(previous, ev.Key)
			delete(previousOK, ev.Key)
		}
	}
}

func saveDedupState(storage persist.Storage, pid string, previous map[key.Key]value.Value) {
	writer, err := storage.OpenSnapshotWriter(pid)
	if err != nil {
		return
	}
	defer writer.Close()
	for k, v := range previous {
		_ = writer.Write(persist.SnapshotEvent{Kind: persist.EventInsert, Key: k, Values: []value.Value{v}})
	}
}

// assertDedupSupported guards against using Deduplicate inside an
// iteration subgraph, where a stable notion of "previous value across
// restarts" does not make sense.
func assertDedupSupported(insideIteration bool) error {
	if insideIteration {
		return dferrors.ErrNotSupportedInIteration
	}
	return nil
}
