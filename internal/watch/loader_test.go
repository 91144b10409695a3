package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/store"
)

const greetYAML = `id: greet
events:
  - id: ev
    plugin: host_event
    config: {event: "user:login"}
actions:
  - id: say
    plugin: set_message
    config: {message: "Welcome back, [user.name]!"}
successors:
  - {source: ev, target: say}
`

const pairJSON = `{"models": [
  {"id": "alpha", "events": [{"id": "ev", "plugin": "host_event", "config": {"event": "a"}}]},
  {"id": "beta", "events": [{"id": "ev", "plugin": "host_event", "config": {"event": "b"}}]}
]}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newLoader(t *testing.T, dir string) (*Loader, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(dir, mem, WithLogger(logger), WithDebounce(20*time.Millisecond)), mem
}

func enabledIDs(t *testing.T, s store.ModelStore) []string {
	t.Helper()
	models, err := s.ListEnabledModels(context.Background())
	require.NoError(t, err)
	ids := []string{}
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestSync_LoadsSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "greet.yaml", greetYAML)
	writeFile(t, dir, "pair.json", pairJSON)
	writeFile(t, dir, "notes.txt", "not a model")

	l, mem := newLoader(t, dir)
	stats, err := l.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncStats{Files: 2, Models: 3, Changed: 3}, stats)
	assert.Equal(t, []string{"alpha", "beta", "greet"}, enabledIDs(t, mem))

	// A second load of unchanged files writes nothing.
	stats, err = l.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Changed)
}

func TestSync_Subdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	writeFile(t, filepath.Join(dir, "nested"), "greet.yml", greetYAML)

	l, mem := newLoader(t, dir)
	_, err := l.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"greet"}, enabledIDs(t, mem))
}

func TestSync_RemovedFileDisablesModels(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "greet.yaml", greetYAML)
	pair := writeFile(t, dir, "pair.json", pairJSON)

	l, mem := newLoader(t, dir)
	_, err := l.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(pair))
	stats, err := l.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Disabled)
	assert.Equal(t, []string{"greet"}, enabledIDs(t, mem))

	records, err := mem.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ir.StatusDisabled, records[0].Status)

	// Restoring the file enables the models again.
	writeFile(t, dir, "pair.json", pairJSON)
	stats, err = l.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Changed)
	assert.Equal(t, []string{"alpha", "beta", "greet"}, enabledIDs(t, mem))
}

func TestSync_ModelDroppedFromFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "pair.json", pairJSON)

	l, mem := newLoader(t, dir)
	_, err := l.Sync(ctx)
	require.NoError(t, err)

	writeFile(t, dir, "pair.json", `{"id": "alpha", "events": [{"id": "ev", "plugin": "host_event", "config": {"event": "a"}}]}`)
	stats, err := l.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Disabled)
	assert.Equal(t, []string{"alpha"}, enabledIDs(t, mem))
}

func TestSync_BrokenFileKeepsModels(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "greet.yaml", greetYAML)

	l, mem := newLoader(t, dir)
	_, err := l.Sync(ctx)
	require.NoError(t, err)

	writeFile(t, dir, "greet.yaml", "id: [unterminated")
	stats, err := l.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Disabled)
	assert.Equal(t, []string{"greet"}, enabledIDs(t, mem))
}

func TestSync_MissingDirectory(t *testing.T) {
	l, _ := newLoader(t, filepath.Join(t.TempDir(), "missing"))
	_, err := l.Sync(context.Background())
	assert.Error(t, err)
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	writeFile(t, dir, "greet.yaml", greetYAML)

	l, mem := newLoader(t, dir)
	changed := make(chan store.Change, 16)
	mem.OnChange(func(c store.Change) { changed <- c })

	require.NoError(t, l.Watch(ctx))
	defer l.Stop()
	assert.Equal(t, []string{"greet"}, enabledIDs(t, mem))
	assert.Equal(t, store.Change{Kind: store.ChangePut, ModelID: "greet"}, <-changed)

	writeFile(t, dir, "pair.json", pairJSON)
	require.Eventually(t, func() bool {
		return len(enabledIDs(t, mem)) == 3
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "greet.yaml")))
	require.Eventually(t, func() bool {
		ids := enabledIDs(t, mem)
		return len(ids) == 2 && ids[0] == "alpha" && ids[1] == "beta"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatch_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l, _ := newLoader(t, t.TempDir())
	require.NoError(t, l.Watch(ctx))
	cancel()
	assert.NoError(t, l.Stop())
}
