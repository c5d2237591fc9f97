// Package tracing wraps OpenTelemetry for the proxy.
//
// Every upstream call runs inside a "provider.request" span carrying the
// provider, model, stream flag, HTTP status and, on failure, the error code.
// Spans are exported over OTLP gRPC. When tracing is disabled the tracer is
// a noop and adds no measurable overhead.
//
// # Configuration
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    sampler: parent_based
//	    sample_ratio: 0.1
//	    endpoint: localhost:4317
//	    insecure: true
//
// # Propagation
//
// HTTPMiddleware extracts W3C trace context from inbound requests, so a
// caller's trace continues through the proxy.
package tracing
