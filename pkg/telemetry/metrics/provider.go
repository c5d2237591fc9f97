package metrics

import (
	"time"

	"mercator-hq/conduit/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics tracks upstream vendor calls.
//
// Metrics:
//   - conduit_proxy_provider_latency_seconds: upstream call latency
//   - conduit_proxy_provider_errors_total: upstream failures by code
type ProviderMetrics struct {
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
}

// NewProviderMetrics creates and registers provider metrics.
func NewProviderMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_latency_seconds",
				Help:      "Upstream provider call latency in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"provider", "model"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_errors_total",
				Help:      "Total number of upstream failures by error code",
			},
			[]string{"provider", "code"},
		),
	}

	registry.MustRegister(pm.latency, pm.errors)

	return pm
}

// RecordLatency records one upstream call.
func (pm *ProviderMetrics) RecordLatency(provider, model string, latency time.Duration) {
	pm.latency.WithLabelValues(provider, model).Observe(latency.Seconds())
}

// RecordError records one upstream failure.
func (pm *ProviderMetrics) RecordError(provider, code string) {
	pm.errors.WithLabelValues(provider, code).Inc()
}
