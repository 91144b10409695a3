package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/tokens"
)

// Host is the engine surface actions may call back into.
type Host interface {
	// Publish queues a re-entrant host event. It is dispatched after the
	// current walk finishes, on the same call stack.
	Publish(ev HostEvent)

	// Invoke runs the event nodes of another model that match ev,
	// synchronously, each with a fresh token context extracted from ev.
	Invoke(ctx context.Context, modelID string, ev HostEvent) ([]ir.InvocationReport, error)
}

// MessageSink receives user-facing messages produced by set_message.
type MessageSink interface {
	AddMessage(modelID, message string)
}

// ErrNoHost is returned by Env callbacks when the action runs detached from
// an engine.
var ErrNoHost = errors.New("plugin: no host attached")

// Env is everything an action sees while it executes.
type Env struct {
	Tokens   *tokens.Context
	Event    HostEvent
	ModelID  string
	NodeID   string
	Logger   *slog.Logger
	Host     Host
	Messages MessageSink
}

// Log returns the env logger, scoped to the node.
func (e *Env) Log() *slog.Logger {
	l := e.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("model", e.ModelID, "node", e.NodeID)
}

// Publish queues a re-entrant host event.
func (e *Env) Publish(id string, payload map[string]any) error {
	if e.Host == nil {
		return ErrNoHost
	}
	e.Host.Publish(HostEvent{ID: id, Payload: payload})
	return nil
}

// Invoke runs a sub-model.
func (e *Env) Invoke(ctx context.Context, modelID string, ev HostEvent) ([]ir.InvocationReport, error) {
	if e.Host == nil {
		return nil, ErrNoHost
	}
	return e.Host.Invoke(ctx, modelID, ev)
}

// Replace resolves token references in s against the env tokens.
func (e *Env) Replace(s string) any {
	return Replace(e.Tokens, s)
}

var tokenRef = regexp.MustCompile(`\[([A-Za-z0-9_][A-Za-z0-9_.\-]*)\]`)

// Replace resolves "[path]" references in s. A string that is exactly one
// reference yields the referenced value with its type intact (or "" when
// absent). References embedded in longer text are formatted with %v;
// absent ones become empty.
func Replace(tc *tokens.Context, s string) any {
	if tc == nil || !strings.Contains(s, "[") {
		return s
	}
	if m := tokenRef.FindStringSubmatch(s); m != nil && m[0] == s {
		v, ok := tc.Get(m[1])
		if !ok {
			return ""
		}
		return v
	}
	return tokenRef.ReplaceAllStringFunc(s, func(ref string) string {
		v, ok := tc.Get(ref[1 : len(ref)-1])
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	})
}

// ReplaceString is Replace with the result always formatted as a string.
func ReplaceString(tc *tokens.Context, s string) string {
	switch v := Replace(tc, s).(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
