package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/eca/internal/index"
	"github.com/roach88/eca/internal/ir"
)

// Metrics holds the Prometheus collectors for dispatch and index activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	dispatches       prometheus.Counter
	dispatchDuration prometheus.Histogram
	invocations      *prometheus.CounterVec
	nodeVisits       prometheus.Histogram
	pluginErrors     *prometheus.CounterVec
	rebuilds         *prometheus.CounterVec
	rebuildDuration  prometheus.Histogram
	indexEntries     prometheus.Gauge
	indexModels      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	const namespace = "eca"

	m := &Metrics{
		dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Total number of host events dispatched",
		}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of Dispatch calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Total number of model invocations by terminal state",
		}, []string{"model", "state"}),
		nodeVisits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_node_visits",
			Help:      "Nodes visited per invocation",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		pluginErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_errors_total",
			Help:      "Plugin errors and panics at the node boundary",
		}, []string{"model", "plugin", "code"}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuilds_total",
			Help:      "Subscription index rebuilds by result",
		}, []string{"result"}),
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_rebuild_duration_seconds",
			Help:      "Duration of index rebuilds in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		indexEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_entries",
			Help:      "Entries in the current index snapshot",
		}),
		indexModels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_models",
			Help:      "Models in the current index snapshot",
		}),
	}

	collectors := []prometheus.Collector{
		m.dispatches, m.dispatchDuration, m.invocations, m.nodeVisits,
		m.pluginErrors, m.rebuilds, m.rebuildDuration, m.indexEntries, m.indexModels,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.Inc()
	m.dispatchDuration.Observe(d.Seconds())
}

func (m *Metrics) observeInvocation(r ir.InvocationReport) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(r.ModelID, string(r.State)).Inc()
	m.nodeVisits.Observe(float64(r.NodesVisited))
}

func (m *Metrics) observePluginError(modelID, pluginID string, code RuntimeErrorCode) {
	if m == nil {
		return
	}
	m.pluginErrors.WithLabelValues(modelID, pluginID, string(code)).Inc()
}

// ObserveRebuild records an index rebuild. Its signature matches
// index.WithObserver.
func (m *Metrics) ObserveRebuild(stats index.RebuildStats, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.rebuilds.WithLabelValues("error").Inc()
		return
	}
	m.rebuilds.WithLabelValues("ok").Inc()
	m.rebuildDuration.Observe(stats.Duration.Seconds())
	m.indexEntries.Set(float64(stats.Entries))
	m.indexModels.Set(float64(stats.Models))
}
