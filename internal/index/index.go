// Package index maintains the subscription index: the routing table from
// host event ids to the (model, event node) pairs that must run.
//
// The index is derived data. It is rebuilt from the enabled models of a
// ModelSource, published as an immutable Snapshot behind an atomic pointer,
// and marked dirty by Invalidate so the next Lookup rebuilds it lazily.
// Readers never block on a rebuild and always see one complete snapshot.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/plugin"
)

// ModelSource supplies the models the index is built from.
type ModelSource interface {
	ListEnabledModels(ctx context.Context) ([]compiler.RawModel, error)
}

// SourceFunc adapts a function to ModelSource.
type SourceFunc func(ctx context.Context) ([]compiler.RawModel, error)

func (f SourceFunc) ListEnabledModels(ctx context.Context) ([]compiler.RawModel, error) {
	return f(ctx)
}

// RebuildStats summarizes one rebuild.
type RebuildStats struct {
	Models   int           // models indexed
	Skipped  int           // models rejected by the compiler or duplicated
	Entries  int           // index entries
	Duration time.Duration // wall time of the rebuild
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the index logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *Index) { x.logger = l }
}

// WithCache shares a compile cache with other components.
func WithCache(c *compiler.Cache) Option {
	return func(x *Index) { x.cache = c }
}

// WithObserver registers a callback invoked after every rebuild attempt.
func WithObserver(fn func(RebuildStats, error)) Option {
	return func(x *Index) { x.observe = fn }
}

// Index is the subscription index.
type Index struct {
	source  ModelSource
	catalog *plugin.Catalog
	cache   *compiler.Cache
	logger  *slog.Logger
	observe func(RebuildStats, error)

	snap  atomic.Pointer[Snapshot]
	dirty atomic.Bool
	gen   atomic.Int64

	// mu serializes rebuilds: one writer at a time.
	mu sync.Mutex
}

// New creates an index over source. It starts empty and dirty, so the
// first Lookup builds it.
func New(source ModelSource, catalog *plugin.Catalog, opts ...Option) *Index {
	x := &Index{
		source:  source,
		catalog: catalog,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.cache == nil {
		x.cache = compiler.NewCache(catalog)
	}
	x.snap.Store(emptySnapshot())
	x.dirty.Store(true)
	return x
}

// Invalidate marks the index dirty. The next Lookup or Current rebuilds it.
func (x *Index) Invalidate() {
	x.dirty.Store(true)
}

// Dirty reports whether a rebuild is pending.
func (x *Index) Dirty() bool {
	return x.dirty.Load()
}

// Current returns the latest snapshot, rebuilding first if the index is
// dirty. A failed rebuild leaves the previous snapshot in effect.
func (x *Index) Current(ctx context.Context) *Snapshot {
	if x.dirty.Load() {
		x.mu.Lock()
		if x.dirty.Load() {
			_ = x.rebuildLocked(ctx)
		}
		x.mu.Unlock()
	}
	return x.snap.Load()
}

// Lookup returns the entries for a fired host event, in execution order.
func (x *Index) Lookup(ctx context.Context, hostEventID string) []ir.IndexEntry {
	return x.Current(ctx).Lookup(hostEventID)
}

// Rebuild rebuilds the index now, regardless of the dirty flag.
func (x *Index) Rebuild(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.rebuildLocked(ctx)
}

func (x *Index) rebuildLocked(ctx context.Context) error {
	start := time.Now()
	// Clear before listing: an Invalidate that races with this rebuild
	// leaves the index dirty again.
	x.dirty.Store(false)

	raws, err := x.source.ListEnabledModels(ctx)
	if err != nil {
		x.dirty.Store(true)
		rerr := &RebuildError{Err: err}
		x.logger.Error("index rebuild failed, keeping previous snapshot",
			"error", err,
			"generation", x.snap.Load().Generation)
		if x.observe != nil {
			x.observe(RebuildStats{Duration: time.Since(start)}, rerr)
		}
		return rerr
	}

	snap, stats := x.build(raws)
	snap.Generation = x.gen.Add(1)
	snap.BuiltAt = start
	stats.Duration = time.Since(start)
	x.snap.Store(snap)

	keep := make(map[string]bool, len(snap.graphs))
	for _, g := range snap.graphs {
		keep[g.Model.Hash] = true
	}
	x.cache.Retain(keep)

	x.logger.Info("index rebuilt",
		"generation", snap.Generation,
		"models", stats.Models,
		"skipped", stats.Skipped,
		"entries", stats.Entries,
		"duration", stats.Duration)
	if x.observe != nil {
		x.observe(stats, nil)
	}
	return nil
}

// build is O(total event nodes across enabled models).
func (x *Index) build(raws []compiler.RawModel) (*Snapshot, RebuildStats) {
	var stats RebuildStats
	graphs := make(map[string]*compiler.Graph, len(raws))
	var entries []ir.IndexEntry

	for i := range raws {
		raw := &raws[i]
		if _, dup := graphs[raw.ID]; dup {
			x.logger.Warn("duplicate model id, keeping first", "model", raw.ID)
			stats.Skipped++
			continue
		}
		g, err := x.cache.Compile(raw)
		if err != nil {
			x.logger.Warn("model rejected by compiler", "model", raw.ID, "error", err)
			stats.Skipped++
			continue
		}
		if !g.Model.Enabled() {
			continue
		}
		for _, d := range g.Diagnostics {
			x.logger.Debug("model diagnostic", "model", raw.ID, "code", d.Code, "field", d.Field, "message", d.Message)
		}
		graphs[raw.ID] = g
		stats.Models++

		for _, ev := range g.Model.Events {
			entries = append(entries, x.entriesFor(g.Model.ID, ev)...)
		}
	}

	stats.Entries = len(entries)
	return newSnapshot(entries, graphs), stats
}

// entriesFor asks the event plugin which ids it can match. Degraded nodes
// never fire and are not indexed.
func (x *Index) entriesFor(modelID string, ev ir.EventNode) []ir.IndexEntry {
	if ev.Degraded {
		return nil
	}
	p, err := x.catalog.Event(ev.Plugin, ev.Config)
	if err != nil {
		x.logger.Warn("event plugin unavailable, node not indexed",
			"model", modelID, "node", ev.ID, "plugin", ev.Plugin, "error", err)
		return nil
	}
	seen := make(map[string]bool)
	var out []ir.IndexEntry
	for _, pattern := range p.Patterns() {
		if pattern == "" || seen[pattern] {
			continue
		}
		seen[pattern] = true
		out = append(out, ir.IndexEntry{
			Pattern:  pattern,
			ModelID:  modelID,
			NodeID:   ev.ID,
			Priority: ev.Priority,
		})
	}
	return out
}

// RebuildError reports a model source failure. The previous snapshot stays
// in effect.
type RebuildError struct {
	Err error
}

func (e *RebuildError) Error() string {
	return fmt.Sprintf("index rebuild: %v", e.Err)
}

func (e *RebuildError) Unwrap() error { return e.Err }

// IsRebuildError reports whether err is a RebuildError.
func IsRebuildError(err error) bool {
	var re *RebuildError
	return errors.As(err, &re)
}

// sortEntries orders entries for dispatch: priority, model id, node id,
// then pattern so the order is total.
func sortEntries(entries []ir.IndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if c := ir.LessEntry(entries[i], entries[j]); c != 0 {
			return c < 0
		}
		return entries[i].Pattern < entries[j].Pattern
	})
}
