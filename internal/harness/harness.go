package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/engine"
	"github.com/roach88/eca/internal/index"
	"github.com/roach88/eca/internal/plugin/builtin"
	"github.com/roach88/eca/internal/store"
	"github.com/roach88/eca/internal/testutil"
)

// Harness holds the engine of one scenario run.
type Harness struct {
	store    *store.Memory
	engine   *engine.Engine
	messages *testutil.MessageSink
	recorder *testutil.Recorder
	logger   *slog.Logger
}

// RunOption configures a run.
type RunOption func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger routes engine logs to l. Runs are silent by default.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store, a clock starting at
// 0 and sequential "inv-N" ids. The catalog holds the built-in plugins
// plus the test plugins of internal/testutil.
//
// An error is returned when the scenario cannot run at all (unreadable
// model files, rejected models). Failed expectations are reported in the
// Result.
func Run(scenario *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	h, err := newHarness(scenario, cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}
	result.Messages = append(result.Messages, h.messages.Messages()...)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario, cfg runConfig) (*Harness, error) {
	ctx := context.Background()

	models, err := loadModels(scenario)
	if err != nil {
		return nil, err
	}

	cat := builtin.NewCatalog()
	rec := &testutil.Recorder{}
	if err := testutil.RegisterTestPlugins(cat, rec); err != nil {
		return nil, err
	}

	// Every model must compile; a scenario with a broken model is a broken
	// scenario, not a test of degraded behavior.
	mem := store.NewMemory()
	for i := range models {
		if _, err := compiler.Compile(&models[i], cat); err != nil {
			return nil, fmt.Errorf("model %s: %w", models[i].ID, err)
		}
		if _, err := mem.PutModel(ctx, models[i]); err != nil {
			return nil, err
		}
	}

	idx := index.New(mem, cat, index.WithLogger(cfg.logger))
	mem.OnChange(func(store.Change) { idx.Invalidate() })

	sink := &testutil.MessageSink{}
	engOpts := []engine.EngineOption{
		engine.WithLogger(cfg.logger),
		engine.WithClock(engine.NewClock()),
		engine.WithIDGenerator(engine.NewSequenceGenerator("inv")),
		engine.WithMessageSink(sink),
	}
	if scenario.MaxNodeVisits > 0 {
		engOpts = append(engOpts, engine.WithMaxNodeVisits(scenario.MaxNodeVisits))
	}
	if len(scenario.Ambient) > 0 {
		engOpts = append(engOpts, engine.WithAmbient(scenario.Ambient))
	}
	eng := engine.New(idx, cat, engOpts...)
	if err := eng.RebuildIndex(ctx); err != nil {
		return nil, err
	}

	return &Harness{
		store:    mem,
		engine:   eng,
		messages: sink,
		recorder: rec,
		logger:   cfg.logger,
	}, nil
}

func loadModels(scenario *Scenario) ([]compiler.RawModel, error) {
	var models []compiler.RawModel
	for _, path := range scenario.Models {
		parsed, err := compiler.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load models: %w", err)
		}
		models = append(models, parsed...)
	}
	models = append(models, scenario.Inline...)
	return models, nil
}

// executeStep dispatches one event and checks its expect clause.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	reports := h.engine.Dispatch(ctx, step.Fire, step.Payload)
	h.logger.Debug("scenario step dispatched",
		"step", i,
		"event", step.Fire,
		"reports", len(reports))

	events := make([]TraceEvent, len(reports))
	for j, r := range reports {
		events[j] = traceEvent(i, r)
	}
	result.Trace = append(result.Trace, events...)

	if step.Expect == nil {
		return
	}
	if len(step.Expect) != len(events) {
		result.AddError(fmt.Sprintf("steps[%d] (%s): expected %d report(s), got %d: %s",
			i, step.Fire, len(step.Expect), len(events), describe(events)))
		return
	}
	for j, want := range step.Expect {
		if msg := matchReport(want, events[j]); msg != "" {
			result.AddError(fmt.Sprintf("steps[%d].expect[%d]: %s", i, j, msg))
		}
	}
}

// matchReport compares the fields set in want. It returns "" on a match.
func matchReport(want ExpectReport, got TraceEvent) string {
	switch {
	case want.Model != got.Model:
		return fmt.Sprintf("model: expected %s, got %s", want.Model, got.Model)
	case want.Node != "" && want.Node != got.Node:
		return fmt.Sprintf("%s node: expected %s, got %s", got.Model, want.Node, got.Node)
	case want.State != "" && want.State != string(got.State):
		return fmt.Sprintf("%s state: expected %s, got %s (%s)", got.Model, want.State, got.State, got.Reason)
	case want.Reason != "" && want.Reason != got.Reason:
		return fmt.Sprintf("%s reason: expected %q, got %q", got.Model, want.Reason, got.Reason)
	case want.Visited != nil && *want.Visited != got.Visited:
		return fmt.Sprintf("%s visited: expected %d, got %d", got.Model, *want.Visited, got.Visited)
	case want.Depth != nil && *want.Depth != got.Depth:
		return fmt.Sprintf("%s depth: expected %d, got %d", got.Model, *want.Depth, got.Depth)
	}
	return ""
}
