package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/ir"
)

// createTestStore creates a new SQLite store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestModel creates a minimal model subscribed to event.
func createTestModel(id, event string) compiler.RawModel {
	return compiler.RawModel{
		ID:    id,
		Label: "Model " + id,
		Events: []compiler.RawEvent{{
			ID:       "ev",
			Plugin:   "host_event",
			Config:   map[string]any{"event": event},
			Priority: 3,
		}},
		Actions: []compiler.RawAction{{
			ID:     "say",
			Plugin: "set_message",
			Config: map[string]any{"message": "hello"},
		}},
		Successors: []compiler.RawSuccessor{{Source: "ev", Target: "say"}},
	}
}

// createTestReport creates a report with minimal required fields.
func createTestReport(id, dispatchID, modelID string, seq int64) ir.InvocationReport {
	return ir.InvocationReport{
		InvocationID: id,
		DispatchID:   dispatchID,
		HostEventID:  "user:login",
		ModelID:      modelID,
		EventNodeID:  "ev",
		State:        ir.StateCompleted,
		NodesVisited: 2,
		Seq:          seq,
	}
}

// modelStores returns a fresh instance of every ModelStore implementation
// in this package.
func modelStores(t *testing.T) map[string]ModelStore {
	return map[string]ModelStore{
		"sqlite": createTestStore(t),
		"memory": NewMemory(),
	}
}
