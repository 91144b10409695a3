// Package plugin defines the three plugin capabilities an ECA model is built
// from (events, conditions and actions) and the catalog that instantiates
// them by id.
//
// A plugin is registered once at process start with a Factory and static
// Metadata. Every model node that references the plugin gets its own
// instance, built from the node's config map.
package plugin

import (
	"context"
	"fmt"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/tokens"
)

// Kind is one of the three plugin capabilities.
type Kind string

const (
	KindEvent     Kind = "event"
	KindCondition Kind = "condition"
	KindAction    Kind = "action"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindEvent, KindCondition, KindAction:
		return true
	}
	return false
}

// HostEvent is an occurrence fired by the host application.
type HostEvent struct {
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EventPlugin wraps host events. Patterns lists every host event id or
// wildcard pattern the configured instance can match; it is what the
// subscription index records.
type EventPlugin interface {
	Patterns() []string
	Matches(hostEventID string) bool
	ExtractContext(ev HostEvent) map[string]any
}

// ConditionPlugin is a side-effect-free predicate over the token context.
// Missing paths evaluate to false; an error is a plugin failure and aborts
// the invocation.
type ConditionPlugin interface {
	Evaluate(ctx context.Context, tc *tokens.Context) (bool, error)
}

// ActionPlugin performs one step of a model.
type ActionPlugin interface {
	Execute(ctx context.Context, env *Env) (Outcome, error)
}

// Spec is what a Factory receives when a node is instantiated.
type Spec struct {
	Kind   Kind
	ID     string
	Config ir.Map

	// Catalog lets composite plugins (boolean combinators) instantiate the
	// plugins they wrap.
	Catalog *Catalog
}

// Factory builds a configured plugin instance. The returned value must
// implement the interface of the kind it was registered under.
type Factory func(spec Spec) (any, error)

// Metadata is static plugin documentation attached at registration.
type Metadata struct {
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	ConfigKeys  []string `json:"config_keys,omitempty"`
}

// Definition describes one registered plugin.
type Definition struct {
	Kind     Kind     `json:"kind"`
	ID       string   `json:"id"`
	Metadata Metadata `json:"metadata"`
}

// Outcome is the result of an action: Continue or Abort(reason).
type Outcome struct {
	abort  bool
	reason string
}

// Continue lets the walk follow the action's successor.
func Continue() Outcome { return Outcome{} }

// Abort terminates the whole invocation.
func Abort(reason string) Outcome { return Outcome{abort: true, reason: reason} }

// Aborted reports whether the outcome halts the invocation.
func (o Outcome) Aborted() bool { return o.abort }

// Reason is the abort reason, empty for Continue.
func (o Outcome) Reason() string { return o.reason }

func (o Outcome) String() string {
	if o.abort {
		return fmt.Sprintf("abort(%s)", o.reason)
	}
	return "continue"
}
