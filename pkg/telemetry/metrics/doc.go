// Package metrics provides Prometheus metrics for the proxy.
//
// # Metrics Categories
//
//   - Request Metrics: requests by endpoint, provider and result code;
//     end-to-end duration; tokens by type
//   - Provider Metrics: upstream latency and errors by taxonomy code
//   - Security Metrics: gate rejections by reason
//   - Stream Metrics: active streams and terminal outcomes
//   - Cache Metrics: /validate verdict cache hits and misses
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordRequest("proxy", "openai", "OK", time.Second)
//	collector.RecordProviderLatency("openai", "gpt-4o", 800*time.Millisecond)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Cardinality
//
// Model names come from callers, so label sets that include a model pass
// through a CardinalityLimiter; past the limit the model is reported as
// "other".
//
// All Record methods are safe on a nil or disabled Collector.
package metrics
