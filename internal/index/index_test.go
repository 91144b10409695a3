package index

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/plugin/builtin"
)

// fakeSource is a mutable in-memory model list.
type fakeSource struct {
	mu     sync.Mutex
	models []compiler.RawModel
	err    error
	calls  int
}

func (f *fakeSource) ListEnabledModels(context.Context) ([]compiler.RawModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []compiler.RawModel
	for _, m := range f.models {
		if m.Status == "" || m.Status == string(ir.StatusEnabled) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeSource) set(models ...compiler.RawModel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = models
}

func hostEventModel(id, event string, priority int) compiler.RawModel {
	return compiler.RawModel{
		ID: id,
		Events: []compiler.RawEvent{{
			ID:       "on",
			Plugin:   "host_event",
			Config:   map[string]any{"event": event},
			Priority: priority,
		}},
	}
}

func entityModel(id, entityType string, priority int) compiler.RawModel {
	return compiler.RawModel{
		ID: id,
		Events: []compiler.RawEvent{{
			ID:       "insert",
			Plugin:   "entity",
			Config:   map[string]any{"entity_type": entityType, "operation": "insert"},
			Priority: priority,
		}},
	}
}

func ids(entries []ir.IndexEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ModelID + "/" + e.NodeID
	}
	return out
}

func TestIndex_PriorityOrder(t *testing.T) {
	src := &fakeSource{}
	src.set(
		entityModel("model-b", "node", 10),
		entityModel("model-a", "node", 0),
		entityModel("model-c", "*", 0),
		entityModel("model-d", "user", -5),
	)
	x := New(src, builtin.NewCatalog())

	got := x.Lookup(context.Background(), "entity:node:insert")
	assert.Equal(t, []string{"model-a/insert", "model-c/insert", "model-b/insert"}, ids(got))

	got = x.Lookup(context.Background(), "entity:user:insert")
	assert.Equal(t, []string{"model-d/insert", "model-c/insert"}, ids(got))

	assert.Empty(t, x.Lookup(context.Background(), "entity:node:update"))
	assert.Empty(t, x.Lookup(context.Background(), "entity:node"))
}

func TestIndex_TieBreakByModelThenNode(t *testing.T) {
	src := &fakeSource{}
	twoNodes := compiler.RawModel{
		ID: "m",
		Events: []compiler.RawEvent{
			{ID: "z", Plugin: "host_event", Config: map[string]any{"event": "x:y"}},
			{ID: "a", Plugin: "host_event", Config: map[string]any{"event": "x:y"}},
		},
	}
	src.set(hostEventModel("n", "x:y", 0), twoNodes, hostEventModel("b", "x:*", 0))
	x := New(src, builtin.NewCatalog())

	got := x.Lookup(context.Background(), "x:y")
	assert.Equal(t, []string{"b/on", "m/a", "m/z", "n/on"}, ids(got))
}

func TestIndex_LazyRebuildOnInvalidate(t *testing.T) {
	src := &fakeSource{}
	src.set(hostEventModel("greet", "user:login", 0))
	x := New(src, builtin.NewCatalog())
	ctx := context.Background()

	assert.True(t, x.Dirty())
	require.Len(t, x.Lookup(ctx, "user:login"), 1)
	assert.False(t, x.Dirty())

	// Unchanged index: no further source calls.
	x.Lookup(ctx, "user:login")
	assert.Equal(t, 1, src.calls)

	disabled := hostEventModel("greet", "user:login", 0)
	disabled.Status = "disabled"
	src.set(disabled)

	// Without invalidation the old routing stays.
	require.Len(t, x.Lookup(ctx, "user:login"), 1)

	x.Invalidate()
	assert.Empty(t, x.Lookup(ctx, "user:login"))
	assert.Equal(t, 2, src.calls)

	src.set(hostEventModel("greet", "user:login", 0))
	x.Invalidate()
	assert.Len(t, x.Lookup(ctx, "user:login"), 1)
}

func TestIndex_StaleOnSourceError(t *testing.T) {
	src := &fakeSource{}
	src.set(hostEventModel("greet", "user:login", 0))

	var observed []error
	x := New(src, builtin.NewCatalog(), WithObserver(func(_ RebuildStats, err error) {
		observed = append(observed, err)
	}))
	ctx := context.Background()
	require.NoError(t, x.Rebuild(ctx))
	before := x.Current(ctx)

	src.err = errors.New("store unreachable")
	err := x.Rebuild(ctx)
	require.Error(t, err)
	assert.True(t, IsRebuildError(err))
	assert.ErrorIs(t, err, src.err)
	assert.True(t, x.Dirty(), "failed rebuild stays dirty")

	// Dispatch continues with the stale snapshot.
	assert.Len(t, x.Lookup(ctx, "user:login"), 1)
	assert.Same(t, before, x.Current(ctx))

	src.err = nil
	require.NoError(t, x.Rebuild(ctx))
	assert.False(t, x.Dirty())
	assert.Greater(t, x.Current(ctx).Generation, before.Generation)

	require.Len(t, observed, 5)
	assert.NoError(t, observed[0])
	assert.Error(t, observed[1])
	assert.NoError(t, observed[len(observed)-1])
}

func TestIndex_SkipsInvalidAndDegraded(t *testing.T) {
	bad := hostEventModel("bad", "a:b", 0)
	bad.Events[0].Priority = "high"

	degraded := hostEventModel("degraded", "a:b", 0)
	degraded.Events[0].Plugin = "missing_plugin"

	dup := hostEventModel("ok", "a:b", 5)

	src := &fakeSource{}
	src.set(bad, degraded, hostEventModel("ok", "a:b", 0), dup)

	var stats RebuildStats
	x := New(src, builtin.NewCatalog(), WithObserver(func(s RebuildStats, _ error) { stats = s }))
	require.NoError(t, x.Rebuild(context.Background()))

	assert.Equal(t, []string{"ok/on"}, ids(x.Lookup(context.Background(), "a:b")))
	assert.Equal(t, 2, stats.Models)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Entries)

	snap := x.Current(context.Background())
	assert.Equal(t, []string{"degraded", "ok"}, snap.Models())
	g, ok := snap.Graph("ok")
	require.True(t, ok)
	assert.Equal(t, int64(0), g.Model.Events[0].Priority)
}

func TestIndex_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	src := &fakeSource{}
	small := []compiler.RawModel{hostEventModel("m1", "e:x", 0)}
	large := []compiler.RawModel{
		hostEventModel("m1", "e:x", 0),
		hostEventModel("m2", "e:x", 1),
		hostEventModel("m3", "e:x", 2),
	}
	src.set(small...)
	x := New(src, builtin.NewCatalog())
	ctx := context.Background()
	require.NoError(t, x.Rebuild(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				n := len(x.Lookup(ctx, "e:x"))
				assert.True(t, n == 1 || n == 3, "partial snapshot of %d entries", n)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			src.set(large...)
		} else {
			src.set(small...)
		}
		x.Invalidate()
		_ = x.Rebuild(ctx)
	}
	wg.Wait()
}

func TestIndex_RoundTripThroughSerializedGraphs(t *testing.T) {
	cat := builtin.NewCatalog()
	models, err := compiler.ParseFile("../compiler/testdata/priorities.json")
	require.NoError(t, err)
	models = append(models, hostEventModel("greet", "user:*", 3))

	original := New(SourceFunc(func(context.Context) ([]compiler.RawModel, error) {
		return models, nil
	}), cat)
	require.NoError(t, original.Rebuild(context.Background()))

	// Compile, serialize, deserialize, convert back and rebuild from that.
	var roundTripped []compiler.RawModel
	for i := range models {
		g, err := compiler.Compile(&models[i], cat)
		require.NoError(t, err)
		data, err := compiler.Marshal(g.Model)
		require.NoError(t, err)
		back, err := compiler.Unmarshal(data)
		require.NoError(t, err)
		roundTripped = append(roundTripped, *compiler.FromModel(back))
	}
	rebuilt := New(SourceFunc(func(context.Context) ([]compiler.RawModel, error) {
		return roundTripped, nil
	}), cat)
	require.NoError(t, rebuilt.Rebuild(context.Background()))

	a := original.Current(context.Background())
	b := rebuilt.Current(context.Background())
	assert.Equal(t, a.Entries(), b.Entries())
	assert.Equal(t, a.Digest(), b.Digest())
	assert.NotEmpty(t, a.Digest())
}

func TestIndex_Golden(t *testing.T) {
	src := &fakeSource{}
	src.set(
		entityModel("audit", "*", 100),
		entityModel("notify", "node", 0),
		hostEventModel("greet-on-login", "user:login", 0),
		hostEventModel("session", "user:*", -1),
	)
	x := New(src, builtin.NewCatalog())

	data, err := json.MarshalIndent(x.Current(context.Background()).Entries(), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "entries", data)
}
