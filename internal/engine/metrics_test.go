package engine

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eca/internal/index"
	"github.com/roach88/eca/internal/ir"
)

func TestMetrics_Dispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	f := setup(t, `
models:
  - id: ok
    events:
      - {id: ev, plugin: host_event, config: {event: "go"}}
  - id: broken
    events:
      - {id: ev, plugin: host_event, config: {event: "go"}}
    actions:
      - {id: bad, plugin: fail_action}
    successors:
      - {source: ev, target: bad}
`, WithMetrics(m))

	f.dispatch(t, "go", nil)
	f.dispatch(t, "go", nil)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.dispatches))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.invocations.WithLabelValues("ok", string(ir.StateCompleted))))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.invocations.WithLabelValues("broken", string(ir.StateAborted))))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.pluginErrors.WithLabelValues("broken", "fail_action", string(ErrCodePluginError))))
}

func TestMetrics_ObserveRebuild(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveRebuild(index.RebuildStats{Models: 3, Entries: 7}, nil)
	m.ObserveRebuild(index.RebuildStats{}, errors.New("source down"))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.rebuilds.WithLabelValues("ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.rebuilds.WithLabelValues("error")))
	assert.Equal(t, 7.0, promtest.ToFloat64(m.indexEntries))
	assert.Equal(t, 3.0, promtest.ToFloat64(m.indexModels))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeInvocation(ir.InvocationReport{})
		m.ObserveRebuild(index.RebuildStats{}, nil)
	})
}
