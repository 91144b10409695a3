package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/config"
	"github.com/roach88/eca/internal/engine"
	"github.com/roach88/eca/internal/index"
	"github.com/roach88/eca/internal/plugin"
	"github.com/roach88/eca/internal/plugin/builtin"
	"github.com/roach88/eca/internal/redisstore"
	"github.com/roach88/eca/internal/store"
)

// runtime is the wired engine of one command: a model store, a report
// log, the subscription index over the store and the engine itself.
type runtime struct {
	cfg      config.Config
	logger   *slog.Logger
	catalog  *plugin.Catalog
	models   store.ModelStore
	reports  store.ReportLog
	index    *index.Index
	engine   *engine.Engine
	registry *prometheus.Registry
	messages *messageLog

	// redis is set when models live in Redis; serve subscribes to it.
	redis *redisstore.Store

	closers []func() error
}

type runtimeOptions struct {
	// models, when set, replaces the configured store with an in-memory
	// one holding these models.
	models []compiler.RawModel
}

// openRuntime wires the configured store and a fresh engine. Logs go to
// logOut. The caller must Close the runtime.
func openRuntime(ctx context.Context, cfg config.Config, logOut io.Writer, ro runtimeOptions) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		logger:   cfg.Logger(logOut),
		catalog:  builtin.NewCatalog(),
		registry: prometheus.NewRegistry(),
		messages: &messageLog{},
	}

	if err := rt.openStores(ctx, ro); err != nil {
		_ = rt.Close()
		return nil, err
	}

	metrics, err := engine.NewMetrics(rt.registry)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	rt.index = index.New(rt.models, rt.catalog,
		index.WithLogger(rt.logger),
		index.WithCache(compiler.NewCache(rt.catalog)),
		index.WithObserver(metrics.ObserveRebuild))
	rt.models.OnChange(func(c store.Change) {
		rt.logger.Debug("model changed, invalidating index", "model", c.ModelID, "change", c.Kind)
		rt.index.Invalidate()
	})

	// Seq values continue after the highest one already in the report log.
	clock := engine.NewClock()
	if seqr, ok := rt.reports.(interface {
		MaxSeq(context.Context) (int64, error)
	}); ok {
		last, err := seqr.MaxSeq(ctx)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("read report log: %w", err)
		}
		clock = engine.NewClockAt(last)
	}

	rt.engine = engine.New(rt.index, rt.catalog,
		engine.WithLogger(rt.logger),
		engine.WithMetrics(metrics),
		engine.WithClock(clock),
		engine.WithMaxNodeVisits(cfg.MaxNodeVisits),
		engine.WithMessageSink(rt.messages),
		engine.WithReportSink(rt.reports))
	return rt, nil
}

func (rt *runtime) openStores(ctx context.Context, ro runtimeOptions) error {
	if ro.models != nil {
		mem := store.NewMemory()
		for _, m := range ro.models {
			if _, err := mem.PutModel(ctx, m); err != nil {
				return fmt.Errorf("load model %s: %w", m.ID, err)
			}
		}
		rt.models, rt.reports = mem, mem
		return nil
	}

	switch rt.cfg.Store {
	case config.StoreMemory:
		mem := store.NewMemory()
		rt.models, rt.reports = mem, mem
		return nil

	case config.StoreRedis:
		rs := redisstore.New(rt.cfg.RedisAddr, "", 0,
			redisstore.WithPrefix(rt.cfg.RedisPrefix),
			redisstore.WithLogger(rt.logger))
		rt.closers = append(rt.closers, rs.Close)
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("connect redis %s: %w", rt.cfg.RedisAddr, err)
		}
		rt.models, rt.redis = rs, rs
		// Reports stay local to the process.
		sq, err := rt.openSQLite()
		if err != nil {
			return err
		}
		rt.reports = sq
		return nil

	default:
		sq, err := rt.openSQLite()
		if err != nil {
			return err
		}
		rt.models, rt.reports = sq, sq
		return nil
	}
}

func (rt *runtime) openSQLite() (*store.Store, error) {
	st, err := store.Open(rt.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", rt.cfg.DBPath, err)
	}
	rt.closers = append(rt.closers, st.Close)
	return st, nil
}

// Close releases the stores in reverse order of opening.
func (rt *runtime) Close() error {
	var first error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}

// messageLog collects set_message output for printing.
type messageLog struct {
	mu    sync.Mutex
	lines []Message
}

// Message is one set_message line.
type Message struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

// AddMessage implements plugin.MessageSink.
func (l *messageLog) AddMessage(modelID, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, Message{Model: modelID, Text: message})
}

// Drain returns and forgets the collected messages.
func (l *messageLog) Drain() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.lines
	l.lines = nil
	if out == nil {
		out = []Message{}
	}
	return out
}
