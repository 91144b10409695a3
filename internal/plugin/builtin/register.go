// Package builtin provides the plugins shipped with the engine: host and
// entity events, token predicates, boolean combinators, Starlark
// expressions, and token/message/event actions.
package builtin

import (
	"fmt"

	"github.com/roach88/eca/internal/plugin"
)

type registration struct {
	kind    plugin.Kind
	id      string
	factory plugin.Factory
	meta    plugin.Metadata
}

var registrations = []registration{
	{plugin.KindEvent, "host_event", newHostEvent, plugin.Metadata{
		Label:       "Host event",
		Description: "Fires on a host event id or a wildcard pattern.",
		ConfigKeys:  []string{"event"},
	}},
	{plugin.KindEvent, "entity", newEntityEvent, plugin.Metadata{
		Label:       "Entity operation",
		Description: "Fires on entity:<type>:<operation>.",
		ConfigKeys:  []string{"entity_type", "operation"},
	}},
	{plugin.KindEvent, "custom_event", newCustomEvent, plugin.Metadata{
		Label:       "Custom event",
		Description: "Fires on events raised by trigger_custom_event or invoke_model.",
		ConfigKeys:  []string{"event_id"},
	}},

	{plugin.KindCondition, "token_exists", newTokenExists, plugin.Metadata{
		Label:      "Token exists",
		ConfigKeys: []string{"path"},
	}},
	{plugin.KindCondition, "token_equals", newTokenEquals, plugin.Metadata{
		Label:      "Token equals",
		ConfigKeys: []string{"path", "value", "case_insensitive"},
	}},
	{plugin.KindCondition, "token_compare", newTokenCompare, plugin.Metadata{
		Label:       "Compare token",
		Description: "Integer comparison: < <= > >= == !=.",
		ConfigKeys:  []string{"path", "operator", "value"},
	}},
	{plugin.KindCondition, "token_in_list", newTokenInList, plugin.Metadata{
		Label:      "Token in list",
		ConfigKeys: []string{"path", "list", "case_insensitive"},
	}},
	{plugin.KindCondition, "all", newCombinator(false), plugin.Metadata{
		Label:      "All of",
		ConfigKeys: []string{"conditions"},
	}},
	{plugin.KindCondition, "any", newCombinator(true), plugin.Metadata{
		Label:      "Any of",
		ConfigKeys: []string{"conditions"},
	}},
	{plugin.KindCondition, "expression", newExpression, plugin.Metadata{
		Label:       "Expression",
		Description: "Starlark boolean expression over the tokens.",
		ConfigKeys:  []string{"expr"},
	}},

	{plugin.KindAction, "token_set", newTokenSet, plugin.Metadata{
		Label:      "Set token",
		ConfigKeys: []string{"name", "value"},
	}},
	{plugin.KindAction, "token_clear", newTokenClear, plugin.Metadata{
		Label:      "Clear token",
		ConfigKeys: []string{"name"},
	}},
	{plugin.KindAction, "token_increment", newTokenIncrement, plugin.Metadata{
		Label:      "Increment token",
		ConfigKeys: []string{"name", "by"},
	}},
	{plugin.KindAction, "set_message", newSetMessage, plugin.Metadata{
		Label:      "Show message",
		ConfigKeys: []string{"message"},
	}},
	{plugin.KindAction, "log_message", newLogMessage, plugin.Metadata{
		Label:      "Log message",
		ConfigKeys: []string{"message", "level"},
	}},
	{plugin.KindAction, "trigger_custom_event", newTriggerCustomEvent, plugin.Metadata{
		Label:      "Trigger custom event",
		ConfigKeys: []string{"event_id", "tokens"},
	}},
	{plugin.KindAction, "publish_event", newPublishEvent, plugin.Metadata{
		Label:      "Publish host event",
		ConfigKeys: []string{"event", "payload"},
	}},
	{plugin.KindAction, "invoke_model", newInvokeModel, plugin.Metadata{
		Label:       "Invoke model",
		Description: "Runs another model's custom event synchronously.",
		ConfigKeys:  []string{"model", "event_id", "tokens", "abort_on_failure"},
	}},
	{plugin.KindAction, "abort", newAbort, plugin.Metadata{
		Label:      "Abort",
		ConfigKeys: []string{"reason"},
	}},
}

// RegisterAll adds every built-in plugin to c.
func RegisterAll(c *plugin.Catalog) error {
	for _, r := range registrations {
		if err := c.Register(r.kind, r.id, r.factory, r.meta); err != nil {
			return fmt.Errorf("builtin: %w", err)
		}
	}
	return nil
}

// NewCatalog returns a catalog holding only the built-in plugins.
func NewCatalog() *plugin.Catalog {
	c := plugin.NewCatalog()
	if err := RegisterAll(c); err != nil {
		panic(err)
	}
	return c
}
