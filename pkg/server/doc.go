// Package server provides the HTTP server for the AI provider proxy.
//
// It owns every long-lived component (provider registry, upstream transport,
// executor, rate limiter, usage store, validation cache, maintenance
// scheduler, metrics and tracing) and wires them into the handler chain.
//
// # Basic Usage
//
//	cfg, err := config.LoadConfigWithEnvOverrides(path)
//	if err != nil {
//	    return err
//	}
//
//	srv, err := server.New(cfg, server.Options{Version: version, Logger: logger})
//	if err != nil {
//	    return err
//	}
//
//	// Blocks until ctx is cancelled, then shuts down gracefully.
//	return srv.Start(ctx)
//
// # Routes
//
//   - POST /proxy - buffered completion
//   - POST /stream - completion relayed as Server-Sent Events
//   - POST /validate - API key verdict
//   - GET /health - liveness
//   - GET /metrics - Prometheus exposition, when metrics are enabled
//
// Every other method on these paths gets 405 METHOD_NOT_ALLOWED; OPTIONS
// preflights on any path get 204 with the CORS headers.
//
// # Middleware Chain
//
// Outermost first: security headers, panic recovery, request ID, access
// logging, CORS, then tracing when enabled. The three POST routes add the
// method check and the security gate (blocked networks, rate limit, daily
// quota) in front of their handler.
//
// # Graceful Shutdown
//
// Start and Serve return once ctx is done. Shutdown stops accepting
// connections, waits up to server.shutdown_timeout for in-flight requests,
// flushes traces and closes the stores. Open streams see their request
// context cancelled and close the vendor connection.
//
// # TLS
//
// With server.tls.enabled the listener serves HTTPS. The certificate pair is
// reloaded when its files change.
//
// # Hot Reload
//
// ApplyConfig takes a reloaded configuration and applies the rate limit
// policy and the log level. Other settings need a restart.
package server
