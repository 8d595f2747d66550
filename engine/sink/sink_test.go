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

package sink_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/dataflow/engine/sink"
)

type fakeWriter struct {
	mu       sync.Mutex
	writes   [][]byte
	flushes  int
	failN    int // fail the first failN writes, then succeed
	attempts int
	closed   bool
}

func (w *fakeWriter) Write(ctx context.Context, rec []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.attempts <= w.failN {
		return errors.New("transient write failure")
	}
	w.writes = append(w.writes, rec)
	return nil
}

func (w *fakeWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) snapshot() (writes int, flushes int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.writes), w.flushes
}

func TestSinkDeliversRecordsAndFlushesOnCommit(t *testing.T) {
	w := &fakeWriter{}
	s := sink.New("test", w, sink.RetryPolicy{MaxAttempts: 1})
	s.Send(sink.OutputEvent{Records: [][]byte{[]byte("a"), []byte("b")}, Commit: true})
	require.NoError(t, s.Close())

	writes, flushes := w.snapshot()
	require.Equal(t, 2, writes)
	require.Equal(t, 1, flushes)
	require.True(t, w.closed)
}

func TestSinkRetriesThenSucceeds(t *testing.T) {
	w := &fakeWriter{failN: 2}
	s := sink.New("test", w, sink.RetryPolicy{MaxAttempts: 5, Backoff: time.Millisecond})
	s.Send(sink.OutputEvent{Records: [][]byte{[]byte("a")}})
	require.NoError(t, s.Close())

	writes, _ := w.snapshot()
	require.Equal(t, 1, writes, "the record is eventually written once retries succeed")
}

func TestSinkReportsErrorAfterExhaustingRetries(t *testing.T) {
	w := &fakeWriter{failN: 100}
	s := sink.New("test", w, sink.RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond})
	s.Send(sink.OutputEvent{Records: [][]byte{[]byte("a")}})

	select {
	case err := <-s.Errs():
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected a delivery error after exhausting retries")
	}
	require.NoError(t, s.Close())
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := sink.DefaultRetryPolicy()
	require.Equal(t, 5, p.MaxAttempts)
	require.Equal(t, 250*time.Millisecond, p.Backoff)
}
