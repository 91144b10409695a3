package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/ir"
)

type memoryEntry struct {
	source string
	rec    ModelRecord
}

// Memory is an in-process ModelStore and report log. Models are stored in
// their encoded form, so reads return copies that callers may mutate.
type Memory struct {
	mu      sync.RWMutex
	models  map[string]memoryEntry
	reports []ir.InvocationReport
	seen    map[string]bool
	Notifier
}

var _ ModelStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		models: make(map[string]memoryEntry),
		seen:   make(map[string]bool),
	}
}

// PutModel inserts or replaces a model.
func (m *Memory) PutModel(_ context.Context, raw compiler.RawModel) (bool, error) {
	data, rec, err := MarshalModel(raw)
	if err != nil {
		return false, fmt.Errorf("put model: %w", err)
	}
	m.mu.Lock()
	old, ok := m.models[rec.ID]
	if ok && old.rec.Hash == rec.Hash {
		m.mu.Unlock()
		return false, nil
	}
	rec.Revision = old.rec.Revision + 1
	m.models[rec.ID] = memoryEntry{source: data, rec: rec}
	m.mu.Unlock()

	m.Notify(Change{Kind: ChangePut, ModelID: rec.ID})
	return true, nil
}

// GetModel returns one model.
func (m *Memory) GetModel(_ context.Context, id string) (compiler.RawModel, error) {
	m.mu.RLock()
	e, ok := m.models[id]
	m.mu.RUnlock()
	if !ok {
		return compiler.RawModel{}, notFound(id)
	}
	return UnmarshalModel(e.source, e.rec.Status)
}

// ListModels returns every model record ordered by id.
func (m *Memory) ListModels(context.Context) ([]ModelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]ModelRecord, 0, len(m.models))
	for _, e := range m.models {
		records = append(records, e.rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// ListEnabledModels returns the enabled models ordered by id.
func (m *Memory) ListEnabledModels(context.Context) ([]compiler.RawModel, error) {
	m.mu.RLock()
	entries := make([]memoryEntry, 0, len(m.models))
	for _, e := range m.models {
		if e.rec.Status == ir.StatusEnabled {
			entries = append(entries, e)
		}
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].rec.ID < entries[j].rec.ID })
	models := make([]compiler.RawModel, 0, len(entries))
	for _, e := range entries {
		raw, err := UnmarshalModel(e.source, ir.StatusEnabled)
		if err != nil {
			return nil, err
		}
		models = append(models, raw)
	}
	return models, nil
}

// SetStatus enables or disables a model.
func (m *Memory) SetStatus(_ context.Context, id string, status ir.Status) error {
	if _, err := NormalizeStatus(string(status)); err != nil || status == "" {
		return fmt.Errorf("set status %s: invalid status %q", id, status)
	}
	m.mu.Lock()
	e, ok := m.models[id]
	if !ok {
		m.mu.Unlock()
		return notFound(id)
	}
	if e.rec.Status == status {
		m.mu.Unlock()
		return nil
	}
	data, hash, err := withStatus(e.source, status)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("set status %s: %w", id, err)
	}
	e.source = data
	e.rec.Status = status
	e.rec.Hash = hash
	e.rec.Revision++
	m.models[id] = e
	m.mu.Unlock()

	m.Notify(Change{Kind: ChangeStatus, ModelID: id})
	return nil
}

// DeleteModel removes a model.
func (m *Memory) DeleteModel(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.models[id]; !ok {
		m.mu.Unlock()
		return notFound(id)
	}
	delete(m.models, id)
	m.mu.Unlock()

	m.Notify(Change{Kind: ChangeDelete, ModelID: id})
	return nil
}

// WriteReports appends reports, ignoring invocation ids already stored.
func (m *Memory) WriteReports(_ context.Context, reports []ir.InvocationReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range reports {
		if m.seen[r.InvocationID] {
			continue
		}
		m.seen[r.InvocationID] = true
		m.reports = append(m.reports, r)
	}
	return nil
}

// ReadReports returns the stored reports matching f in execution order.
func (m *Memory) ReadReports(_ context.Context, f ReportFilter) ([]ir.InvocationReport, error) {
	m.mu.RLock()
	all := append([]ir.InvocationReport(nil), m.reports...)
	m.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Seq != all[j].Seq {
			return all[i].Seq < all[j].Seq
		}
		return all[i].InvocationID < all[j].InvocationID
	})
	out := []ir.InvocationReport{}
	for _, r := range all {
		if f.ModelID != "" && r.ModelID != f.ModelID {
			continue
		}
		if f.DispatchID != "" && r.DispatchID != f.DispatchID {
			continue
		}
		if f.State != "" && r.State != f.State {
			continue
		}
		if f.AfterSeq > 0 && r.Seq <= f.AfterSeq {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
