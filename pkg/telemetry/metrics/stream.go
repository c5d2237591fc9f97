package metrics

import (
	"mercator-hq/conduit/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics tracks SSE relays.
//
// Metrics:
//   - conduit_proxy_active_streams: streams currently relaying
//   - conduit_proxy_stream_outcomes_total: finished streams by terminal state
type StreamMetrics struct {
	active   prometheus.Gauge
	outcomes *prometheus.CounterVec
}

// NewStreamMetrics creates and registers stream metrics.
func NewStreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StreamMetrics {
	sm := &StreamMetrics{
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "active_streams",
				Help:      "Number of streams currently relaying",
			},
		),

		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stream_outcomes_total",
				Help:      "Total number of finished streams by terminal state",
			},
			[]string{"provider", "outcome"},
		),
	}

	registry.MustRegister(sm.active, sm.outcomes)

	return sm
}

// Started records a new stream.
func (sm *StreamMetrics) Started() {
	sm.active.Inc()
}

// Finished records a terminal state.
func (sm *StreamMetrics) Finished(provider, outcome string) {
	sm.active.Dec()
	sm.outcomes.WithLabelValues(provider, outcome).Inc()
}
