package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/plugin"
)

// MessagesToken collects every message produced by set_message in the
// current invocation.
const MessagesToken = "messages"

type tokenSet struct {
	name  string
	value any
}

func newTokenSet(spec plugin.Spec) (any, error) {
	var cfg struct {
		Name string `config:"name"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	return tokenSet{name: cfg.Name, value: ir.ToGo(spec.Config["value"])}, nil
}

func (a tokenSet) Execute(_ context.Context, env *plugin.Env) (plugin.Outcome, error) {
	env.Tokens.Set(a.name, replaceDeep(env, a.value))
	return plugin.Continue(), nil
}

type tokenClear struct {
	name string
}

func newTokenClear(spec plugin.Spec) (any, error) {
	var cfg struct {
		Name string `config:"name"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	return tokenClear{name: cfg.Name}, nil
}

func (a tokenClear) Execute(_ context.Context, env *plugin.Env) (plugin.Outcome, error) {
	env.Tokens.Clear(a.name)
	return plugin.Continue(), nil
}

type tokenIncrement struct {
	name string
	by   int64
}

func newTokenIncrement(spec plugin.Spec) (any, error) {
	cfg := struct {
		Name string `config:"name"`
		By   int64  `config:"by"`
	}{By: 1}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	return tokenIncrement{name: cfg.Name, by: cfg.By}, nil
}

// Execute treats an absent token as zero. A present non-integer token is a
// plugin error.
func (a tokenIncrement) Execute(_ context.Context, env *plugin.Env) (plugin.Outcome, error) {
	var cur int64
	if raw, ok := env.Tokens.Get(a.name); ok && raw != nil {
		n, isInt := asInt(raw)
		if !isInt {
			return plugin.Continue(), fmt.Errorf("token %q is not an integer: %v", a.name, raw)
		}
		cur = n
	}
	env.Tokens.Set(a.name, cur+a.by)
	return plugin.Continue(), nil
}

type setMessage struct {
	message string
}

func newSetMessage(spec plugin.Spec) (any, error) {
	var cfg struct {
		Message string `config:"message"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Message == "" {
		return nil, fmt.Errorf("message is required")
	}
	return setMessage{message: cfg.Message}, nil
}

func (a setMessage) Execute(_ context.Context, env *plugin.Env) (plugin.Outcome, error) {
	msg := plugin.ReplaceString(env.Tokens, a.message)
	var list []any
	if existing, ok := env.Tokens.Get(MessagesToken); ok {
		list, _ = existing.([]any)
	}
	// The list may share its backing array with a payload value.
	env.Tokens.Set(MessagesToken, append(slices.Clip(list), msg))
	if env.Messages != nil {
		env.Messages.AddMessage(env.ModelID, msg)
	}
	return plugin.Continue(), nil
}

type logMessage struct {
	message string
	level   slog.Level
}

func newLogMessage(spec plugin.Spec) (any, error) {
	var cfg struct {
		Message string `config:"message"`
		Level   string `config:"level"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("level: %w", err)
		}
	}
	return logMessage{message: cfg.Message, level: level}, nil
}

func (a logMessage) Execute(ctx context.Context, env *plugin.Env) (plugin.Outcome, error) {
	env.Log().Log(ctx, a.level, plugin.ReplaceString(env.Tokens, a.message))
	return plugin.Continue(), nil
}

type triggerCustomEvent struct {
	eventID string
	tokens  []string
}

func newTriggerCustomEvent(spec plugin.Spec) (any, error) {
	var cfg struct {
		EventID string   `config:"event_id"`
		Tokens  []string `config:"tokens"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.EventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}
	return triggerCustomEvent{eventID: cfg.EventID, tokens: cfg.Tokens}, nil
}

func (a triggerCustomEvent) Execute(_ context.Context, env *plugin.Env) (plugin.Outcome, error) {
	id := plugin.ReplaceString(env.Tokens, a.eventID)
	if err := env.Publish(CustomEventID(id), forwardTokens(env, a.tokens)); err != nil {
		return plugin.Continue(), err
	}
	return plugin.Continue(), nil
}

type publishEvent struct {
	event   string
	payload map[string]any
}

func newPublishEvent(spec plugin.Spec) (any, error) {
	var cfg struct {
		Event   string         `config:"event"`
		Payload map[string]any `config:"payload"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Event == "" {
		return nil, fmt.Errorf("event is required")
	}
	if ir.IsPattern(cfg.Event) {
		return nil, fmt.Errorf("cannot publish pattern %q", cfg.Event)
	}
	return publishEvent{event: cfg.Event, payload: cfg.Payload}, nil
}

func (a publishEvent) Execute(_ context.Context, env *plugin.Env) (plugin.Outcome, error) {
	payload := make(map[string]any, len(a.payload))
	for k, v := range a.payload {
		payload[k] = replaceDeep(env, v)
	}
	if err := env.Publish(plugin.ReplaceString(env.Tokens, a.event), payload); err != nil {
		return plugin.Continue(), err
	}
	return plugin.Continue(), nil
}

type invokeModel struct {
	model          string
	eventID        string
	tokens         []string
	abortOnFailure bool
}

func newInvokeModel(spec plugin.Spec) (any, error) {
	var cfg struct {
		Model          string   `config:"model"`
		EventID        string   `config:"event_id"`
		Tokens         []string `config:"tokens"`
		AbortOnFailure bool     `config:"abort_on_failure"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Model == "" || cfg.EventID == "" {
		return nil, fmt.Errorf("model and event_id are required")
	}
	return invokeModel{
		model:          cfg.Model,
		eventID:        cfg.EventID,
		tokens:         cfg.Tokens,
		abortOnFailure: cfg.AbortOnFailure,
	}, nil
}

// Execute runs the sub-model synchronously. Only the listed tokens cross
// into the sub-model's context.
func (a invokeModel) Execute(ctx context.Context, env *plugin.Env) (plugin.Outcome, error) {
	ev := plugin.HostEvent{
		ID:      CustomEventID(a.eventID),
		Payload: forwardTokens(env, a.tokens),
	}
	reports, err := env.Invoke(ctx, a.model, ev)
	if err != nil {
		return plugin.Continue(), fmt.Errorf("invoke model %s: %w", a.model, err)
	}
	if !a.abortOnFailure {
		return plugin.Continue(), nil
	}
	for _, r := range reports {
		if r.State != ir.StateCompleted {
			reason := string(r.State)
			if r.Reason != "" {
				reason = r.Reason
			}
			return plugin.Abort(fmt.Sprintf("model %s: %s", a.model, reason)), nil
		}
	}
	return plugin.Continue(), nil
}

type abortAction struct {
	reason string
}

func newAbort(spec plugin.Spec) (any, error) {
	cfg := struct {
		Reason string `config:"reason"`
	}{Reason: "aborted"}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	return abortAction{reason: cfg.Reason}, nil
}

func (a abortAction) Execute(_ context.Context, env *plugin.Env) (plugin.Outcome, error) {
	return plugin.Abort(plugin.ReplaceString(env.Tokens, a.reason)), nil
}

// forwardTokens copies the named token paths into a payload keyed by path.
func forwardTokens(env *plugin.Env, paths []string) map[string]any {
	payload := make(map[string]any, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if v, ok := env.Tokens.Get(p); ok {
			payload[p] = v
		}
	}
	return payload
}

// replaceDeep applies token replacement to every string inside v.
func replaceDeep(env *plugin.Env, v any) any {
	switch val := v.(type) {
	case string:
		return env.Replace(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = replaceDeep(env, item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = replaceDeep(env, item)
		}
		return out
	default:
		return v
	}
}
