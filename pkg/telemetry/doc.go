// Package telemetry groups the proxy's observability packages.
//
// # Components
//
//   - logging: slog setup with API key redaction and request-scoped fields
//   - metrics: Prometheus collector for requests, rejections, upstream
//     latency, streams, tokens and the validation cache
//   - tracing: OpenTelemetry spans around upstream calls, exported over OTLP
//
// # Redaction
//
// Log records pass through a redacting handler that masks anything shaped
// like a vendor API key, including the key formats of every supported
// provider. Message content is never logged by the proxy.
//
// # Disabled Components
//
// A nil *metrics.Collector and a noop *tracing.Tracer accept every call, so
// callers never branch on whether telemetry is enabled.
package telemetry
