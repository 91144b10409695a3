package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_ResolvesModelPaths(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/greet.yaml")
	require.NoError(t, err)

	assert.Equal(t, "greet", s.Name)
	require.Len(t, s.Models, 1)
	assert.Equal(t, filepath.Join("testdata", "models", "greet.yaml"), s.Models[0])
	assert.Equal(t, map[string]any{"site": "Example"}, s.Ambient)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, "user:login", s.Steps[0].Fire)
	require.Len(t, s.Steps[0].Expect, 1)
	require.NotNil(t, s.Steps[0].Expect[0].Visited)
	assert.Equal(t, 2, *s.Steps[0].Expect[0].Visited)
	assert.NotNil(t, s.Steps[1].Expect, "an empty expect list still expects zero reports")
	assert.Empty(t, s.Steps[1].Expect)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Inline(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: inline
description: one inline model
inline:
  - id: m
    events:
      - {id: ev, plugin: host_event, config: {event: "a:b"}}
steps:
  - fire: a:b
`), "")
	require.NoError(t, err)
	require.Len(t, s.Inline, 1)
	assert.Equal(t, "m", s.Inline[0].ID)
}

func TestParseScenario_Errors(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "m.yaml")
	require.NoError(t, os.WriteFile(model, []byte("id: m\n"), 0o644))

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\ndescription: d\nmodels: [m.yaml]\nsteps: [{fire: a}]\nbogus: 1\n", "failed to parse YAML"},
		{"no name", "description: d\nmodels: [m.yaml]\nsteps: [{fire: a}]\n", "name is required"},
		{"no description", "name: x\nmodels: [m.yaml]\nsteps: [{fire: a}]\n", "description is required"},
		{"no models", "name: x\ndescription: d\nsteps: [{fire: a}]\n", "models or inline is required"},
		{"no steps", "name: x\ndescription: d\nmodels: [m.yaml]\n", "steps list is required"},
		{"missing model file", "name: x\ndescription: d\nmodels: [gone.yaml]\nsteps: [{fire: a}]\n", "model file not found"},
		{"negative visits", "name: x\ndescription: d\nmodels: [m.yaml]\nmax_node_visits: -1\nsteps: [{fire: a}]\n", "max_node_visits"},
		{"step without fire", "name: x\ndescription: d\nmodels: [m.yaml]\nsteps: [{payload: {a: 1}}]\n", "steps[0]: fire is required"},
		{"expect without model", "name: x\ndescription: d\nmodels: [m.yaml]\nsteps: [{fire: a, expect: [{state: completed}]}]\n", "steps[0].expect[0]: model is required"},
		{"assertion without type", "name: x\ndescription: d\nmodels: [m.yaml]\nsteps: [{fire: a}]\nassertions: [{count: 1}]\n", "assertions[0]: type is required"},
		{"unknown assertion", "name: x\ndescription: d\nmodels: [m.yaml]\nsteps: [{fire: a}]\nassertions: [{type: vibes}]\n", "unknown assertion type"},
		{"report_state incomplete", "name: x\ndescription: d\nmodels: [m.yaml]\nsteps: [{fire: a}]\nassertions: [{type: report_state, model: m}]\n", "model and state are required"},
		{"report_order empty", "name: x\ndescription: d\nmodels: [m.yaml]\nsteps: [{fire: a}]\nassertions: [{type: report_order}]\n", "models list is required"},
		{"messages missing", "name: x\ndescription: d\nmodels: [m.yaml]\nsteps: [{fire: a}]\nassertions: [{type: messages}]\n", "use [] for none"},
		{"message_contains empty", "name: x\ndescription: d\nmodels: [m.yaml]\nsteps: [{fire: a}]\nassertions: [{type: message_contains}]\n", "text is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
