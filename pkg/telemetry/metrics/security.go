package metrics

import (
	"mercator-hq/conduit/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// SecurityMetrics tracks the security gate.
//
// Metrics:
//   - conduit_proxy_rejections_total: rejected requests by reason
type SecurityMetrics struct {
	rejections *prometheus.CounterVec
}

// NewSecurityMetrics creates and registers security metrics.
func NewSecurityMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *SecurityMetrics {
	sm := &SecurityMetrics{
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rejections_total",
				Help:      "Total number of requests rejected by the security gate",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(sm.rejections)

	return sm
}

// RecordRejection records one rejection.
func (sm *SecurityMetrics) RecordRejection(reason string) {
	sm.rejections.WithLabelValues(reason).Inc()
}
