// Package testutil provides deterministic fixtures shared by the engine,
// harness and CLI tests: recording plugins, an in-memory model source and a
// message sink.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/eca/internal/plugin"
	"github.com/roach88/eca/internal/tokens"
)

// Recorder collects the trail of "model/node" strings left by the record
// action, in execution order.
//
// Thread-safety: Recorder is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	trail []string
}

// Add appends one entry.
func (r *Recorder) Add(entry string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trail = append(r.trail, entry)
}

// Trail returns a copy of the recorded entries.
func (r *Recorder) Trail() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.trail...)
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trail = nil
}

// ErrPluginFailed is returned by the fail_action and fail_condition plugins.
var ErrPluginFailed = errors.New("plugin failed on purpose")

// RegisterTestPlugins adds the test plugins to c:
//
//	record          action     appends "model/node" (or config label) to rec
//	panic_action    action     panics with config message
//	fail_action     action     returns ErrPluginFailed
//	const           condition  returns config value (bool)
//	panic_condition condition  panics
//	fail_condition  condition  returns ErrPluginFailed
func RegisterTestPlugins(c *plugin.Catalog, rec *Recorder) error {
	regs := []struct {
		kind    plugin.Kind
		id      string
		factory plugin.Factory
	}{
		{plugin.KindAction, "record", func(spec plugin.Spec) (any, error) {
			var cfg struct {
				Label string `config:"label"`
			}
			if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
				return nil, err
			}
			return recordAction{rec: rec, label: cfg.Label}, nil
		}},
		{plugin.KindAction, "panic_action", func(spec plugin.Spec) (any, error) {
			cfg := struct {
				Message string `config:"message"`
			}{Message: "boom"}
			if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
				return nil, err
			}
			return panicAction{message: cfg.Message}, nil
		}},
		{plugin.KindAction, "fail_action", func(plugin.Spec) (any, error) {
			return failAction{}, nil
		}},
		{plugin.KindCondition, "const", func(spec plugin.Spec) (any, error) {
			var cfg struct {
				Value bool `config:"value"`
			}
			if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
				return nil, err
			}
			return constCondition(cfg.Value), nil
		}},
		{plugin.KindCondition, "panic_condition", func(plugin.Spec) (any, error) {
			return panicCondition{}, nil
		}},
		{plugin.KindCondition, "fail_condition", func(plugin.Spec) (any, error) {
			return failCondition{}, nil
		}},
	}
	for _, r := range regs {
		if err := c.Register(r.kind, r.id, r.factory, plugin.Metadata{Label: r.id}); err != nil {
			return fmt.Errorf("register test plugins: %w", err)
		}
	}
	return nil
}

type recordAction struct {
	rec   *Recorder
	label string
}

func (a recordAction) Execute(_ context.Context, env *plugin.Env) (plugin.Outcome, error) {
	entry := env.ModelID + "/" + env.NodeID
	if a.label != "" {
		entry = plugin.ReplaceString(env.Tokens, a.label)
	}
	a.rec.Add(entry)
	return plugin.Continue(), nil
}

type panicAction struct {
	message string
}

func (a panicAction) Execute(context.Context, *plugin.Env) (plugin.Outcome, error) {
	panic(a.message)
}

type failAction struct{}

func (failAction) Execute(context.Context, *plugin.Env) (plugin.Outcome, error) {
	return plugin.Continue(), ErrPluginFailed
}

type constCondition bool

func (c constCondition) Evaluate(context.Context, *tokens.Context) (bool, error) {
	return bool(c), nil
}

type panicCondition struct{}

func (panicCondition) Evaluate(context.Context, *tokens.Context) (bool, error) {
	panic("condition exploded")
}

type failCondition struct{}

func (failCondition) Evaluate(context.Context, *tokens.Context) (bool, error) {
	return false, ErrPluginFailed
}
