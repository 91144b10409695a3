// Package watch loads model files from a directory into a model store and
// keeps the store in step with the directory while it changes.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/store"
)

// DefaultDebounce is how long the loader waits after the last file event
// before reloading.
const DefaultDebounce = 200 * time.Millisecond

// SyncStats summarizes one directory load.
type SyncStats struct {
	Files    int
	Models   int
	Changed  int
	Disabled int
	Failed   int
}

// Loader mirrors the model files of one directory into a store.
//
// Models are written with PutModel, so unchanged files cause no store
// writes. A model that was loaded from a file and is no longer present in
// any file is disabled, not deleted.
type Loader struct {
	dir      string
	store    store.ModelStore
	logger   *slog.Logger
	debounce time.Duration

	mu sync.Mutex
	// owned maps each file to the model ids it defined at the last load.
	owned map[string][]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

type Option func(*Loader)

// WithLogger sets the loader logger.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithDebounce sets the reload delay.
func WithDebounce(d time.Duration) Option {
	return func(ld *Loader) {
		if d > 0 {
			ld.debounce = d
		}
	}
}

// New creates a loader for dir writing into st.
func New(dir string, st store.ModelStore, opts ...Option) *Loader {
	l := &Loader{
		dir:      dir,
		store:    st,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		owned:    make(map[string][]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Sync loads every model file under the directory. Files that fail to
// parse are skipped and keep the models they defined before.
func (l *Loader) Sync(ctx context.Context) (SyncStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stats SyncStats
	var files []string
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !compiler.SupportedExtension(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walk %s: %w", l.dir, err)
	}
	sort.Strings(files)

	owned := make(map[string][]string, len(files))
	present := make(map[string]bool)
	for _, path := range files {
		stats.Files++
		models, err := compiler.ParseFile(path)
		if err != nil {
			stats.Failed++
			l.logger.Warn("failed to load model file", "path", path, "error", err)
			for _, id := range l.owned[path] {
				present[id] = true
			}
			owned[path] = l.owned[path]
			continue
		}
		ids := make([]string, 0, len(models))
		for _, raw := range models {
			changed, err := l.store.PutModel(ctx, raw)
			if err != nil {
				stats.Failed++
				l.logger.Warn("failed to store model",
					"path", path,
					"model", raw.ID,
					"error", err)
				continue
			}
			stats.Models++
			if changed {
				stats.Changed++
				l.logger.Info("model stored", "path", path, "model", raw.ID)
			}
			ids = append(ids, raw.ID)
			present[raw.ID] = true
		}
		owned[path] = ids
	}

	// Models no file defines any more are disabled, once each.
	for path, ids := range l.owned {
		for _, id := range ids {
			if present[id] {
				continue
			}
			present[id] = true
			if err := l.store.SetStatus(ctx, id, ir.StatusDisabled); err != nil {
				if !store.IsNotFound(err) {
					l.logger.Warn("failed to disable model", "model", id, "error", err)
				}
				continue
			}
			stats.Disabled++
			l.logger.Info("model no longer defined, disabled", "path", path, "model", id)
		}
	}

	l.owned = owned
	return stats, nil
}

// Watch loads the directory, then reloads it whenever a model file
// changes until ctx is done or Stop is called. It returns once the
// directory is being watched.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	err = filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}

	stats, err := l.Sync(ctx)
	if err != nil {
		watcher.Close()
		return err
	}
	l.logger.Info("watching model directory",
		"dir", l.dir,
		"files", stats.Files,
		"models", stats.Models)

	l.watcher = watcher
	l.done = make(chan struct{})
	go l.processEvents(ctx)
	return nil
}

// processEvents reloads after a quiet period following model file events.
func (l *Loader) processEvents(ctx context.Context) {
	defer close(l.done)
	timer := time.NewTimer(l.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = l.watcher.Close()
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := l.watcher.Add(event.Name); err != nil {
						l.logger.Warn("failed to watch directory", "path", event.Name, "error", err)
					}
					timer.Reset(l.debounce)
					continue
				}
			}
			if !compiler.SupportedExtension(event.Name) {
				continue
			}
			l.logger.Debug("model file changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(l.debounce)

		case <-timer.C:
			stats, err := l.Sync(ctx)
			if err != nil {
				l.logger.Error("failed to reload models", "dir", l.dir, "error", err)
				continue
			}
			l.logger.Info("models reloaded",
				"changed", stats.Changed,
				"disabled", stats.Disabled,
				"failed", stats.Failed)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("watcher error", "error", err)
		}
	}
}

// Stop ends watching and waits for any reload in progress.
func (l *Loader) Stop() error {
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	<-l.done
	return err
}
