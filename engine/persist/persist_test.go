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

package persist_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/persist"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
)

func TestEmptyStorageBehavesAsPassthrough(t *testing.T) {
	s := persist.Empty{}
	_, ok, err := s.Get("k")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.Put("k", []byte("v")))
	require.True(t, s.LastFinalizedTimestamp("pid").IsZero())

	r, err := s.OpenSnapshotReader("pid")
	require.NoError(t, err)
	_, ok, err = r.Next()
	require.NoError(t, err)
	require.False(t, ok)

	w, err := s.OpenSnapshotWriter("pid")
	require.NoError(t, err)
	require.NoError(t, w.Write(persist.SnapshotEvent{Kind: persist.EventInsert}))
}

func TestInMemoryGetPutRoundTrips(t *testing.T) {
	s := persist.NewInMemory()
	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put("k", []byte("hello")))
	v, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), v)
}

func TestInMemoryGetReturnsACopyNotTheInternalSlice(t *testing.T) {
	s := persist.NewInMemory()
	require.NoError(t, s.Put("k", []byte("hello")))
	v, _, err := s.Get("k")
	require.NoError(t, err)
	v[0] = 'X'

	v2, _, err := s.Get("k")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v2, "mutating a returned value must not corrupt stored state")
}

func TestInMemorySnapshotLogRoundTrips(t *testing.T) {
	s := persist.NewInMemory()
	w, err := s.OpenSnapshotWriter("pid-1")
	require.NoError(t, err)

	k := key.ForValues(value.NewString("row"))
	require.NoError(t, w.Write(persist.SnapshotEvent{
		Kind:   persist.EventInsert,
		Key:    k,
		Values: []value.Value{value.NewInt(42)},
		Time:   ts.New(1, 0),
	}))
	require.NoError(t, w.Write(persist.SnapshotEvent{
		Kind: persist.EventAdvanceTime,
		Time: ts.New(5, 0),
	}))
	require.NoError(t, w.Close())

	require.Equal(t, ts.New(5, 0), s.LastFinalizedTimestamp("pid-1"))

	r, err := s.OpenSnapshotReader("pid-1")
	require.NoError(t, err)
	defer r.Close()

	e1, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, persist.EventInsert, e1.Kind)
	require.Equal(t, k, e1.Key)

	e2, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, persist.EventAdvanceTime, e2.Kind)

	_, ok, err = r.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInMemorySnapshotReaderSnapshotsAtOpenTime(t *testing.T) {
	s := persist.NewInMemory()
	w, err := s.OpenSnapshotWriter("pid")
	require.NoError(t, err)
	require.NoError(t, w.Write(persist.SnapshotEvent{Kind: persist.EventInsert}))

	r, err := s.OpenSnapshotReader("pid")
	require.NoError(t, err)

	require.NoError(t, w.Write(persist.SnapshotEvent{Kind: persist.EventDelete}))

	var events []persist.SnapshotEvent
	for {
		e, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		events = append(events, e)
	}
	require.Len(t, events, 1, "a reader opened before a later write should not observe it")
}

func TestOldOrNewIsOld(t *testing.T) {
	require.True(t, persist.OldOrNew[int]{Label: persist.LabelOld, Value: 1}.IsOld())
	require.False(t, persist.OldOrNew[int]{Label: persist.LabelNew, Value: 1}.IsOld())
}

func TestEncodeDecodeValuesRoundTrips(t *testing.T) {
	vs := []value.Value{value.NewInt(7), value.NewString("x"), value.None}
	enc, err := persist.EncodeValues(vs)
	require.NoError(t, err)

	dec, err := persist.DecodeValues(enc)
	require.NoError(t, err)
	require.Equal(t, vs, dec)
}

func TestDecodeValuesRejectsGarbage(t *testing.T) {
	_, err := persist.DecodeValues([]byte("not gob data"))
	require.Error(t, err)
}
