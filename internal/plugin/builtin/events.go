package builtin

import (
	"fmt"
	"strings"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/plugin"
)

// CustomEventPrefix namespaces events fired by trigger_custom_event and
// invoke_model.
const CustomEventPrefix = "eca:custom:"

// CustomEventID returns the host event id of a custom event.
func CustomEventID(id string) string {
	return CustomEventPrefix + id
}

// eventMatcher is shared by every built-in event plugin: a single pattern
// plus context extraction from the payload.
type eventMatcher struct {
	pattern string
}

func (e eventMatcher) Patterns() []string { return []string{e.pattern} }

func (e eventMatcher) Matches(hostEventID string) bool {
	return ir.MatchEvent(e.pattern, hostEventID)
}

// ExtractContext exposes the payload keys as top-level tokens and the event
// itself under "event".
func (e eventMatcher) ExtractContext(ev plugin.HostEvent) map[string]any {
	out := make(map[string]any, len(ev.Payload)+1)
	for k, v := range ev.Payload {
		out[k] = v
	}
	out["event"] = map[string]any{
		"id":      ev.ID,
		"pattern": e.pattern,
	}
	return out
}

func newHostEvent(spec plugin.Spec) (any, error) {
	var cfg struct {
		Event string `config:"event"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if err := validPattern(cfg.Event); err != nil {
		return nil, err
	}
	return eventMatcher{pattern: cfg.Event}, nil
}

func newEntityEvent(spec plugin.Spec) (any, error) {
	var cfg struct {
		EntityType string `config:"entity_type"`
		Operation  string `config:"operation"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.EntityType == "" {
		cfg.EntityType = ir.EventWildcard
	}
	if cfg.Operation == "" {
		return nil, fmt.Errorf("operation is required")
	}
	pattern := strings.Join([]string{"entity", cfg.EntityType, cfg.Operation}, ir.EventSeparator)
	if err := validPattern(pattern); err != nil {
		return nil, err
	}
	return eventMatcher{pattern: pattern}, nil
}

func newCustomEvent(spec plugin.Spec) (any, error) {
	var cfg struct {
		EventID string `config:"event_id"`
	}
	if err := plugin.DecodeConfig(spec.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.EventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}
	pattern := CustomEventID(cfg.EventID)
	if err := validPattern(pattern); err != nil {
		return nil, err
	}
	return eventMatcher{pattern: pattern}, nil
}

func validPattern(p string) error {
	if p == "" {
		return fmt.Errorf("event id is required")
	}
	for _, seg := range strings.Split(p, ir.EventSeparator) {
		if seg == "" {
			return fmt.Errorf("event id %q has an empty segment", p)
		}
		if seg != ir.EventWildcard && strings.Contains(seg, ir.EventWildcard) {
			return fmt.Errorf("event id %q: %q must be a whole segment", p, ir.EventWildcard)
		}
	}
	return nil
}
