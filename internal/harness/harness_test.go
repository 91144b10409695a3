package harness

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eca/internal/ir"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"greet", "isolation", "onboarding", "checkout", "runaway"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_SequentialSeqAcrossSteps(t *testing.T) {
	result, err := Run(loadScenario(t, "checkout"))
	require.NoError(t, err)
	require.Len(t, result.Trace, 4)
	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, ir.StateAborted, result.Trace[2].State)
	assert.Equal(t, "model pricing: empty cart", result.Trace[2].Reason)
}

func TestRun_ExpectMismatch(t *testing.T) {
	s := loadScenario(t, "greet")
	visited := 7
	s.Steps[0].Expect[0].Visited = &visited
	s.Steps[1].Expect = nil
	s.Assertions = s.Assertions[:1]
	s.Steps = append(s.Steps, Step{Fire: "user:login", Expect: []ExpectReport{}})

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Equal(t, "steps[0].expect[0]: greet-on-login visited: expected 7, got 2", result.Errors[0])
	assert.Equal(t, "steps[2] (user:login): expected 0 report(s), got 1: greet-on-login/login=completed", result.Errors[1])
	assert.Contains(t, result.Errors[2], "assertions[0]: Assertion failed: report_count")
}

func TestRun_MatchReportFields(t *testing.T) {
	got := TraceEvent{Model: "m", Node: "ev", State: ir.StateAborted, Reason: "nope", Visited: 2, Depth: 1}
	zero := 0

	assert.Empty(t, matchReport(ExpectReport{Model: "m"}, got))
	assert.Equal(t, "model: expected x, got m", matchReport(ExpectReport{Model: "x"}, got))
	assert.Equal(t, "m node: expected other, got ev", matchReport(ExpectReport{Model: "m", Node: "other"}, got))
	assert.Equal(t, "m state: expected completed, got aborted (nope)", matchReport(ExpectReport{Model: "m", State: "completed"}, got))
	assert.Equal(t, `m reason: expected "yes", got "nope"`, matchReport(ExpectReport{Model: "m", Reason: "yes"}, got))
	assert.Equal(t, "m depth: expected 0, got 1", matchReport(ExpectReport{Model: "m", Depth: &zero}, got))
}

func TestRun_InlineModelWithTestPlugins(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: inline-record
description: test plugins are available to scenarios
inline:
  - id: m
    events:
      - {id: ev, plugin: host_event, config: {event: "a:b"}}
    conditions:
      - {id: gate, plugin: const, config: {value: false}}
    actions:
      - {id: boom, plugin: fail_action}
      - {id: fallback, plugin: set_message, config: {message: "else branch"}}
    successors:
      - {source: ev, target: gate}
      - {source: gate, target: boom, label: then}
      - {source: gate, target: fallback, label: else}
steps:
  - fire: a:b
    expect:
      - {model: m, state: completed, visited: 3}
assertions:
  - {type: message_contains, text: else}
`), "")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"m: else branch"}, result.Messages)
}

func TestRun_RejectsBrokenModel(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: broken
description: duplicate node ids
inline:
  - id: bad
    events:
      - {id: ev, plugin: host_event, config: {event: "a:b"}}
    actions:
      - {id: ev, plugin: set_message, config: {message: hi}}
steps:
  - fire: a:b
`), "")
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model bad")
	assert.Contains(t, err.Error(), "already used")
}

func TestRun_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := Run(loadScenario(t, "greet"), WithLogger(logger))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "scenario step dispatched")
}
