// Package metrics defines the Prometheus collectors the orchestrator and
// its supporting components report against. Grounded on the teacher's
// convention of threading a prometheus.Registerer into component
// constructors (cmd/client/main.go passes prometheus.DefaultRegisterer
// into ethstateops.NewStateOps) rather than relying on the global default
// registry implicitly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the engine reports, per spec §7's
// "logged and metric-counted" error-handling policy and §4.7's tick-loop
// observability needs.
type Metrics struct {
	TicksTotal              prometheus.Counter
	TickOverrunsTotal       prometheus.Counter
	PathsEnumeratedTotal    prometheus.Counter
	OpportunitiesApproved   prometheus.Counter
	OpportunitiesRejected   *prometheus.CounterVec // labeled by reason
	QueueDroppedTotal       prometheus.Counter
	QueueDepth              prometheus.Gauge
	ValidationFallbackLayer *prometheus.CounterVec // labeled by layer
	AdapterErrorsTotal      *prometheus.CounterVec // labeled by adapter, code
	TickDurationSeconds     prometheus.Histogram
}

// New registers and returns the engine's metrics against reg. reg is
// typically prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbengine", Name: "ticks_total", Help: "Total orchestrator ticks executed.",
		}),
		TickOverrunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbengine", Name: "tick_overruns_total", Help: "Ticks whose Phase A exceeded the overrun threshold.",
		}),
		PathsEnumeratedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbengine", Name: "paths_enumerated_total", Help: "Candidate paths produced by the pathfinder.",
		}),
		OpportunitiesApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbengine", Name: "opportunities_approved_total", Help: "Opportunities reaching the Approved state.",
		}),
		OpportunitiesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbengine", Name: "opportunities_rejected_total", Help: "Opportunities rejected, by reason.",
		}, []string{"reason"}),
		QueueDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbengine", Name: "approved_queue_dropped_total", Help: "Approved-queue entries dropped to backpressure.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbengine", Name: "approved_queue_depth", Help: "Current approved-queue depth.",
		}),
		ValidationFallbackLayer: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbengine", Name: "validation_fallback_layer_total", Help: "DataPoints served, by fabric layer.",
		}, []string{"layer"}),
		AdapterErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbengine", Name: "adapter_errors_total", Help: "Adapter call failures, by adapter and error code.",
		}, []string{"adapter", "code"}),
		TickDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "arbengine", Name: "tick_duration_seconds", Help: "Wall-clock duration of a full orchestrator tick.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TickOverrunsTotal,
		m.PathsEnumeratedTotal,
		m.OpportunitiesApproved,
		m.OpportunitiesRejected,
		m.QueueDroppedTotal,
		m.QueueDepth,
		m.ValidationFallbackLayer,
		m.AdapterErrorsTotal,
		m.TickDurationSeconds,
	)
	return m
}
