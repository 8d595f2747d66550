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
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/dataflow/engine/dferrors"
	"github.com/cockroachdb/dataflow/engine/handle"
	"github.com/cockroachdb/dataflow/engine/key"
	"github.com/cockroachdb/dataflow/engine/persist"
	"github.com/cockroachdb/dataflow/engine/ts"
	"github.com/cockroachdb/dataflow/engine/value"
)

// UniverseHandle, ColumnHandle, TableHandle and ErrorLogHandle are the
// stable integer handles exposed by the graph-building API. They are
// distinct Go types, backed by the same handle.ID arena machinery, so
// that passing a TableHandle where a ColumnHandle is expected is a
// compile error rather than a runtime one.
type (
	UniverseHandle handle.ID
	ColumnHandle handle.ID
	TableHandle handle.ID
	ErrorLogHandle handle.ID
)

// ColumnPath addresses a (possibly nested) field within a Table's
// tuple payload. Column paths navigate the tuple tree described by a
// TableProperties.
type ColumnPath []int

// Get navigates tuple according to p, returning the Value found there.
// An out-of-range index at any level is reported as an
// IndexOutOfBoundsError; attempting to descend into a non-Tuple Value
// is reported as a ValueError.
func (p ColumnPath) Get(tuple []value.Value) (value.Value, error) {
	cur := value.NewTuple(tuple...)
	for _, idx := range p {
		elems, ok := cur.AsTuple()
		if !ok {
			return value.None, &dferrors.ValueError{Detail: "column path descends into a non-tuple value"}
		}
		if idx < 0 || idx >= len(elems) {
			return value.None, &dferrors.IndexOutOfBoundsError{Index: idx, Length: len(elems)}
		}
		cur = elems[idx]
	}
	return cur, nil
}

// TableProperties describes the schema of a Table as a tree of named
// columns, so that ColumnPaths can be validated and so that external
// interfaces can translate to/from a concrete wire
// schema.
type TableProperties struct {
	Columns []ColumnProperties
}

// ColumnProperties is one entry of a TableProperties tree.
type ColumnProperties struct {
	Name string
	Children *TableProperties // non-nil if this column is itself a tuple
}

type universeEntry struct {
	collection *Collection
}

type columnEntry struct {
	universe UniverseHandle
	collection *Collection
	metadata any
}

type tableEntry struct {
	universe UniverseHandle
	collection *Collection
	properties *TableProperties
	name string // for persistent-id derivation and debug output
}

type errorLogEntry struct {
	mu sync.Mutex
	rows []Row
	lastFlush ts.Time
	flushPeriod ts.Time // unused; the error log has no flush step, rows are visible as soon as logError appends them
	dependsOnBlocked map[string]bool
}

// Config carries the graph-build-time flags named in this engine section
// 6: "a Config describing processes, threads, process_id... and
// per-graph flags: ignore_asserts, terminate_on_error,
// max_expression_batch_size, monitoring_level, with_http_server".
// This type has no flag binding or validation of its own; the
// pflag-bound, Preflight-validated process config is driver.Config.
type Config struct {
	Processes int
	Threads int
	ProcessID int

	IgnoreAsserts bool
	TerminateOnError bool
	MaxExpressionBatchSize int
	MonitoringLevel int
	WithHTTPServer bool

	Persistence persist.Storage // nil means no persistence attached
}

// DefaultConfig returns a single-process, single-thread Config with a
// conservative expression batch size, matching pattern of
// exposing a zero-value-safe default alongside Bind/Preflight.
func DefaultConfig() *Config {
	return &Config{
		Processes: 1,
		Threads: 1,
		MaxExpressionBatchSize: 1024,
		Persistence: persist.Empty{},
	}
}

// Graph is the handle-based dataflow graph builder described by
// internally: a client declares universes, columns,
// tables, and operators against it, receiving handles back. It is not
// safe for concurrent use by multiple goroutines during construction,
// matching *Resolvers type, which serializes graph
// mutation behind its own mutex.
type Graph struct {
	mu sync.Mutex

	cfg *Config

	universes *handle.Arena[*universeEntry]
	columns *handle.Arena[*columnEntry]
	tables *handle.Arena[*tableEntry]
	errorLogs *handle.Arena[*errorLogEntry]

	properties map[string]OperatorProperties
	probes []*Probe

	errorLogStack []ErrorLogHandle
	defaultErrLog ErrorLogHandle
	hasDefaultELog bool
}

// OperatorProperties is the payload of SetOperatorProperties, including
// a TraceDepth hint for retained arrangement history. The graph records
// these properties but does not apply them to any operator.
type OperatorProperties struct {
	Name string
	TraceDepth int
	DependsOnError bool // marks an operator that consumes the error log; recorded only, not enforced by logError
}

// NewGraph constructs an empty Graph scoped to one worker.
func NewGraph(cfg *Config) *Graph {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Graph{
		cfg: cfg,
		universes: handle.NewArena[*universeEntry](),
		columns: handle.NewArena[*columnEntry](),
		tables: handle.NewArena[*tableEntry](),
		errorLogs: handle.NewArena[*errorLogEntry](),
		properties: make(map[string]OperatorProperties),
	}
}

// Config returns the graph's immutable build-time configuration.
func (g *Graph) Config() *Config { return g.cfg }

// --- Universe ---

// NewUniverse allocates a universe from an explicit set of keys at
// time zero. Most universes are instead produced as the by-product of
// a table operator (e.g. the universe backing a filter's output).
func (g *Graph) NewUniverse(keys []key.Key) (UniverseHandle, error) {
	rows := make([]Row, len(keys))
	for i, k := range keys {
		rows[i] = Row{Key: k, Time: ts.Zero(), Diff: 1}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.universes.Alloc(&universeEntry{collection: NewCollection(rows)})
	return UniverseHandle(id), nil
}

func (g *Graph) newUniverseFromCollection(c *Collection) UniverseHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.universes.Alloc(&universeEntry{collection: c})
	return UniverseHandle(id)
}

// Universe returns the collection backing a universe handle.
func (g *Graph) Universe(h UniverseHandle) (*Collection, error) {
	e, ok := g.universes.Get(handle.ID(h))
	if !ok {
		return nil, dferrors.NewInvalidHandle("universe", int(h))
	}
	return e.collection, nil
}

// --- Column ---

// NewColumn allocates a column from explicit (key, value) rows over an
// existing universe, invariant keys(column) ⊆
// keys(universe(column)). When asserts are enabled (the default; see
// Config.IgnoreAsserts) a row whose key is absent from the universe
// is rejected with KeyMissingInInputTableError rather than silently
// admitted.
func (g *Graph) NewColumn(universe UniverseHandle, rows []Row, metadata any) (ColumnHandle, error) {
	uc, err := g.Universe(universe)
	if err != nil {
		return 0, err
	}
	if !g.cfg.IgnoreAsserts {
		universeKeys := make(map[key.Key]bool)
		for _, r := range uc.Rows() {
			universeKeys[r.Key] = true
		}
		for _, r := range rows {
			if !universeKeys[r.Key] {
				return 0, &dferrors.KeyMissingInInputTableError{Key: r.Key}
			}
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.columns.Alloc(&columnEntry{universe: universe, collection: NewCollection(rows), metadata: metadata})
	return ColumnHandle(id), nil
}

func (g *Graph) newColumnFromCollection(universe UniverseHandle, c *Collection, metadata any) ColumnHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.columns.Alloc(&columnEntry{universe: universe, collection: c, metadata: metadata})
	return ColumnHandle(id)
}

// Column returns the collection and owning universe of a column handle.
func (g *Graph) Column(h ColumnHandle) (*Collection, UniverseHandle, error) {
	e, ok := g.columns.Get(handle.ID(h))
	if !ok {
		return nil, 0, dferrors.NewInvalidHandle("column", int(h))
	}
	return e.collection, e.universe, nil
}

// ColumnMetadata returns the arbitrary typed metadata attached at
// NewColumn time.
func (g *Graph) ColumnMetadata(h ColumnHandle) (any, error) {
	e, ok := g.columns.Get(handle.ID(h))
	if !ok {
		return nil, dferrors.NewInvalidHandle("column", int(h))
	}
	return e.metadata, nil
}

// --- Table ---

// NewTable allocates a table from explicit rows, deriving a fresh
// universe from the table's keys.
func (g *Graph) NewTable(name string, rows []Row, props *TableProperties) (TableHandle, error) {
	universeRows := make([]Row, len(rows))
	for i, r := range rows {
		universeRows[i] = Row{Key: r.Key, Time: r.Time, Diff: r.Diff}
	}
	u := g.newUniverseFromCollection(NewCollection(universeRows))

	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.tables.Alloc(&tableEntry{
		universe: u,
		collection: NewCollection(rows),
		properties: props,
		name: name,
	})
	return TableHandle(id), nil
}

func (g *Graph) newTableFromCollection(name string, c *Collection, props *TableProperties) TableHandle {
	universeRows := make([]Row, len(c.rows))
	for i, r := range c.rows {
		universeRows[i] = Row{Key: r.Key, Time: r.Time, Diff: r.Diff}
	}
	u := g.newUniverseFromCollection(NewCollection(universeRows))

	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.tables.Alloc(&tableEntry{universe: u, collection: c, properties: props, name: name})
	return TableHandle(id)
}

// Table returns the collection, universe, and schema of a table handle.
func (g *Graph) Table(h TableHandle) (*Collection, UniverseHandle, *TableProperties, error) {
	e, ok := g.tables.Get(handle.ID(h))
	if !ok {
		return nil, 0, nil, dferrors.NewInvalidHandle("table", int(h))
	}
	return e.collection, e.universe, e.properties, nil
}

// TableName returns the name a table was constructed with, used to
// derive a default persistent ID (engine/persist) when no explicit
// unique name is supplied.
func (g *Graph) TableName(h TableHandle) (string, error) {
	e, ok := g.tables.Get(handle.ID(h))
	if !ok {
		return "", dferrors.NewInvalidHandle("table", int(h))
	}
	return e.name, nil
}

// --- Operator properties, probes, debug ---

// SetOperatorProperties records properties for a named operator.
// TraceDepth is stored with them but is not applied to any arrangement;
// only a direct call to arrange.Trace.SetDepth bounds retained versions.
func (g *Graph) SetOperatorProperties(name string, props OperatorProperties) {
	g.mu.Lock()
	defer g.mu.Unlock()
	props.Name = name
	g.properties[name] = props
}

// OperatorProperties returns the properties previously set for name,
// or the zero value if none were set.
func (g *Graph) OperatorProperties(name string) OperatorProperties {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.properties[name]
}

// Probe observes frontier advancement for a table, per this engine's
// glossary entry: "a timely handle used to observe frontier
// advancement for a stream".
type Probe struct {
	table TableHandle
	mu sync.Mutex
	frontier ts.Time
}

// Frontier returns the latest frontier this probe has observed.
func (p *Probe) Frontier() ts.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frontier
}

func (p *Probe) advance(t ts.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frontier = ts.Max(p.frontier, t)
}

// AttachProber attaches a Probe to a table. The probe's frontier moves
// only when AdvanceProbes is called for that table.
func (g *Graph) AttachProber(h TableHandle) (*Probe, error) {
	if _, _, _, err := g.Table(h); err != nil {
		return nil, err
	}
	p := &Probe{table: h}
	g.mu.Lock()
	g.probes = append(g.probes, p)
	g.mu.Unlock()
	return p, nil
}

// AdvanceProbes advances every probe attached to h to t. Nothing in
// engine/driver calls it; the caller that has processed input up to t
// does.
func (g *Graph) AdvanceProbes(h TableHandle, t ts.Time) {
	g.mu.Lock()
	probes := append([]*Probe(nil), g.probes...)
	g.mu.Unlock()
	for _, p := range probes {
		if p.table == h {
			p.advance(t)
		}
	}
}

// ProbeTable is an alias of AttachProber kept for parity with this engine's
// naming ("probe_table" alongside "attach_prober"); in this
// implementation probing a table and attaching a prober to it are the
// same operation.
func (g *Graph) ProbeTable(h TableHandle) (*Probe, error) {
	return g.AttachProber(h)
}

// DebugTable logs a table's consolidated snapshot at Trace level,
// one line per row, prefixed with the table's name.
func (g *Graph) DebugTable(h TableHandle) error {
	c, _, _, err := g.Table(h)
	if err != nil {
		return err
	}
	name, err := g.TableName(h)
	if err != nil {
		return err
	}
	rows, errs := c.Consolidated()
	for _, e := range errs {
		log.WithField("table", name).WithError(e).Trace("dataflow: debug_table consolidation error")
	}
	for _, r := range rows {
		log.WithFields(log.Fields{
			"table": name,
			"key":   r.Key,
			"diff":  r.Diff,
		}).Trace("dataflow: debug_table row")
	}
	return nil
}
