package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/eca/internal/index"
	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/plugin"
)

// DefaultMaxNodeVisits is the default node-visit ceiling of one root
// invocation, shared with its re-entrant and sub-model invocations.
const DefaultMaxNodeVisits = 1000

// ReportSink persists the reports of each dispatch.
type ReportSink interface {
	WriteReports(ctx context.Context, reports []ir.InvocationReport) error
}

// Engine dispatches host events to the models subscribed to them.
//
// One Engine is shared by the whole process. Dispatch is safe for
// concurrent use: every call resolves one index snapshot and walks with
// token contexts of its own.
type Engine struct {
	index     *index.Index
	catalog   *plugin.Catalog
	clock     *Clock
	ids       IDGenerator
	maxVisits int
	ambient   map[string]any
	messages  plugin.MessageSink
	reports   ReportSink
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxNodeVisits sets the node-visit ceiling. Values below 1 are ignored.
func WithMaxNodeVisits(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxVisits = n
		}
	}
}

// WithAmbient adds host-provided entries to every host-triggered token
// context. Event payload entries win on conflict.
func WithAmbient(entries map[string]any) EngineOption {
	return func(e *Engine) {
		if e.ambient == nil {
			e.ambient = make(map[string]any, len(entries))
		}
		for k, v := range entries {
			e.ambient[k] = v
		}
	}
}

// WithMessageSink routes set_message output to the host.
func WithMessageSink(s plugin.MessageSink) EngineOption {
	return func(e *Engine) { e.messages = s }
}

// WithReportSink persists every dispatch's reports.
func WithReportSink(s ReportSink) EngineOption {
	return func(e *Engine) { e.reports = s }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records dispatch metrics.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithClock sets the clock stamping report Seq values.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator sets the dispatch and invocation id generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// New creates an engine routing through idx and instantiating plugins from
// catalog.
func New(idx *index.Index, catalog *plugin.Catalog, opts ...EngineOption) *Engine {
	e := &Engine{
		index:     idx,
		catalog:   catalog,
		clock:     NewClock(),
		ids:       UUIDv7Generator{},
		maxVisits: DefaultMaxNodeVisits,
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/roach88/eca/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Index returns the subscription index the engine routes through.
func (e *Engine) Index() *index.Index {
	return e.index
}

// MaxNodeVisits returns the configured node-visit ceiling.
func (e *Engine) MaxNodeVisits() int {
	return e.maxVisits
}

// Invalidate marks the index dirty; the next Dispatch rebuilds it.
func (e *Engine) Invalidate() {
	e.index.Invalidate()
}

// RebuildIndex rebuilds the subscription index now. On failure the previous
// index stays in effect and the error is returned.
func (e *Engine) RebuildIndex(ctx context.Context) error {
	if err := e.index.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	return nil
}

// Dispatch runs every model subscribed to hostEventID and returns one
// report per invocation, in execution order.
//
// Dispatch never returns an error and never panics: plugin failures abort
// the affected invocation only, and the remaining subscribers still run.
func (e *Engine) Dispatch(ctx context.Context, hostEventID string, payload map[string]any) (reports []ir.InvocationReport) {
	start := time.Now()
	d := &dispatch{
		engine:  e,
		id:      e.ids.Generate(),
		snap:    e.index.Current(ctx),
		plugins: make(map[nodeKey]any),
	}

	ctx, span := e.tracer.Start(ctx, "eca.dispatch", trace.WithAttributes(
		attribute.String("eca.event", hostEventID),
		attribute.String("eca.dispatch_id", d.id),
		attribute.Int64("eca.index_generation", d.snap.Generation),
	))
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("dispatch panicked",
				"dispatch", d.id,
				"event", hostEventID,
				"panic", r)
			span.SetStatus(codes.Error, fmt.Sprint(r))
			reports = d.finished()
		}
		span.SetAttributes(attribute.Int("eca.invocations", len(reports)))
		span.End()
		e.metrics.observeDispatch(time.Since(start))
		e.record(ctx, reports)
	}()

	entries := d.snap.Lookup(hostEventID)
	e.logger.Debug("dispatching host event",
		"dispatch", d.id,
		"event", hostEventID,
		"subscribers", len(entries),
		"generation", d.snap.Generation)

	ev := plugin.HostEvent{ID: hostEventID, Payload: payload}
	for _, entry := range entries {
		// Sibling subscribers are independent roots with budgets of their own.
		d.run(ctx, entry, ev, 0, NewBudget(e.maxVisits), true)
	}
	return d.finished()
}

func (e *Engine) record(ctx context.Context, reports []ir.InvocationReport) {
	if e.reports == nil || len(reports) == 0 {
		return
	}
	if err := e.reports.WriteReports(ctx, reports); err != nil {
		e.logger.Error("failed to persist invocation reports",
			"dispatch", reports[0].DispatchID,
			"error", err)
	}
}
