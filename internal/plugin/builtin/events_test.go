package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/plugin"
)

func TestEventPlugins_Patterns(t *testing.T) {
	c := NewCatalog()

	tests := []struct {
		name    string
		plugin  string
		config  ir.Map
		pattern string
		matches []string
		misses  []string
	}{
		{
			name:    "host event exact",
			plugin:  "host_event",
			config:  ir.Map{"event": ir.String("user:login")},
			pattern: "user:login",
			matches: []string{"user:login"},
			misses:  []string{"user:logout", "user:login:extra"},
		},
		{
			name:    "entity wildcard type",
			plugin:  "entity",
			config:  ir.Map{"operation": ir.String("insert")},
			pattern: "entity:*:insert",
			matches: []string{"entity:node:insert", "entity:user:insert"},
			misses:  []string{"entity:node:update", "entity:insert"},
		},
		{
			name:    "entity concrete",
			plugin:  "entity",
			config:  ir.Map{"entity_type": ir.String("node"), "operation": ir.String("update")},
			pattern: "entity:node:update",
			matches: []string{"entity:node:update"},
			misses:  []string{"entity:user:update"},
		},
		{
			name:    "custom event",
			plugin:  "custom_event",
			config:  ir.Map{"event_id": ir.String("loop")},
			pattern: "eca:custom:loop",
			matches: []string{"eca:custom:loop"},
			misses:  []string{"loop"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := c.Event(tt.plugin, tt.config)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.pattern}, ev.Patterns())
			for _, id := range tt.matches {
				assert.True(t, ev.Matches(id), id)
			}
			for _, id := range tt.misses {
				assert.False(t, ev.Matches(id), id)
			}
		})
	}
}

func TestEventPlugins_InvalidConfig(t *testing.T) {
	c := NewCatalog()

	tests := []struct {
		plugin string
		config ir.Map
	}{
		{"host_event", ir.Map{}},
		{"host_event", ir.Map{"event": ir.String("user::login")}},
		{"host_event", ir.Map{"event": ir.String("user:log*")}},
		{"entity", ir.Map{"entity_type": ir.String("node")}},
		{"custom_event", ir.Map{}},
	}
	for _, tt := range tests {
		_, err := c.Event(tt.plugin, tt.config)
		assert.True(t, plugin.IsConfigError(err), "%s %v", tt.plugin, tt.config)
	}
}

func TestEventPlugins_ExtractContext(t *testing.T) {
	ev, err := NewCatalog().Event("host_event", ir.Map{"event": ir.String("user:*")})
	require.NoError(t, err)

	got := ev.ExtractContext(plugin.HostEvent{
		ID:      "user:login",
		Payload: map[string]any{"userId": 7},
	})
	assert.Equal(t, map[string]any{
		"userId": 7,
		"event":  map[string]any{"id": "user:login", "pattern": "user:*"},
	}, got)
}

func TestRegisterAll_Twice(t *testing.T) {
	c := NewCatalog()
	assert.Error(t, RegisterAll(c))
	assert.Len(t, c.Definitions(), len(registrations))
}
