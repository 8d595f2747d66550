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

// Package key implements the 128-bit content-addressed Key used to
// identify rows across the dataflow. A Key's low bits are its shard,
// which determines the worker that owns it: worker = shard mod
// worker_count.
package key

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/dataflow/engine/value"
)

// Key is a 128-bit hash, split into two uint64 halves. The shard is
// extracted from Low. Keeping the identifier as a small, comparable
// value type lets it be used directly as a map key and channel
// payload.
type Key struct {
	High, Low uint64
}

// Zero is the Key whose bits are all zero. It is never produced by
// ForValues or Random, so it is safe to use as a "no key" sentinel.
var Zero = Key{}

// Less implements value.Pointer so a Key can be embedded in a Value's
// Pointer branch and compared by Value's total order.
func (k Key) Less(other Pointer) bool {
	o, ok := other.(Key)
	if !ok {
		return false
	}
	if k.High != o.High {
		return k.High < o.High
	}
	return k.Low < o.Low
}

// Pointer is a local alias of value.Pointer to avoid importing value's
// generic constraint name directly at every call site.
type Pointer = value.Pointer

// Bytes returns the big-endian encoding of the key, High first.
func (k Key) Bytes() []byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], k.High)
	binary.BigEndian.PutUint64(buf[8:16], k.Low)
	return buf[:]
}

// String renders the key as a hex string, for logging.
func (k Key) String() string {
	return fmt.Sprintf("%016x%016x", k.High, k.Low)
}

// Shard returns the portion of the key's low bits that determines
// worker ownership: worker = shard mod worker_count.
func (k Key) Shard() uint64 { return k.Low }

// Worker returns Shard mod workerCount. workerCount must be positive.
func (k Key) Worker(workerCount int) int {
	if workerCount <= 0 {
		return 0
	}
	return int(k.Shard() % uint64(workerCount))
}

// ForValues derives a Key by hashing a tuple of values. The hash is
// split into two 64-bit halves by hashing twice with different seeds,
// which keeps the implementation dependency-free while remaining
// deterministic across runs, a requirement of the determinism
// invariant.
func ForValues(vs...value.Value) Key {
	var accHigh uint64 = 0xcbf29ce484222325
	var accLow uint64 = 0x100000001b3
	for _, v := range vs {
		accHigh = v.Hash(accHigh)
		accLow = v.Hash(accLow ^ 0x9e3779b97f4a7c15)
	}
	return Key{High: accHigh, Low: accLow}
}

// WithShardOf returns a Key that hashes like k but whose shard (low
// bits) is copied from other. This is used by operators such as
// flatten and join to keep derived rows co-located with their source row.
func (k Key) WithShardOf(other Key) Key {
	return Key{High: k.High, Low: other.Low}
}

// Random returns a cryptographically random Key. It is used by the
// error log, whose rows have no natural identity.
func Random() Key {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back
		// to a process-local counter so callers still get a key that
		// is unique within this process.
		return fallbackKey()
	}
	return Key{
		High: binary.BigEndian.Uint64(buf[0:8]),
		Low: binary.BigEndian.Uint64(buf[8:16]),
	}
}

var fallbackCounter uint64

func fallbackKey() Key {
	n := atomic.AddUint64(&fallbackCounter, 1)
	return Key{High: 0xfa11bac0, Low: n}
}

// FromInputOffset derives a deterministic Key from a connector's
// source ID and byte offset: a reader replaying the same byte range
// after a restart must reproduce the same keys so that upsert-session
// merges line up with previously staged rows.
func FromInputOffset(sourceID string, offset int64) Key {
	return ForValues(value.NewString(sourceID), value.NewInt(offset))
}
