package metrics

import (
	"time"

	"mercator-hq/conduit/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks inbound request processing.
//
// Metrics:
//   - conduit_proxy_requests_total: requests by endpoint, provider, code
//   - conduit_proxy_request_duration_seconds: end-to-end duration
//   - conduit_proxy_tokens_total: tokens by provider, model, type
//   - conduit_proxy_request_tokens: total tokens per completed call
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	requestTokens   *prometheus.HistogramVec
}

// NewRequestMetrics creates and registers request metrics.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of proxy requests by result code",
			},
			[]string{"endpoint", "provider", "code"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end duration of proxy requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"endpoint", "provider"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_total",
				Help:      "Total number of tokens processed",
			},
			[]string{"provider", "model", "type"},
		),

		requestTokens: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_tokens",
				Help:      "Total tokens per completed call",
				Buckets:   cfg.TokenCountBuckets,
			},
			[]string{"provider", "estimated"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.tokensTotal,
		rm.requestTokens,
	)

	return rm
}

// RecordRequest records one finished request.
func (rm *RequestMetrics) RecordRequest(endpoint, provider, code string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(endpoint, provider, code).Inc()
	rm.requestDuration.WithLabelValues(endpoint, provider).Observe(duration.Seconds())
}

// RecordTokens records prompt and completion tokens.
func (rm *RequestMetrics) RecordTokens(provider, model string, prompt, completion int, estimated bool) {
	if prompt > 0 {
		rm.tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		rm.tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completion))
	}

	est := "false"
	if estimated {
		est = "true"
	}
	rm.requestTokens.WithLabelValues(provider, est).Observe(float64(prompt + completion))
}
