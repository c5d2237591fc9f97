// Package middleware provides the HTTP middleware wrapped around every
// proxy endpoint.
//
// # Middleware Chain
//
// Middleware is applied outermost first:
//
//	handler = Chain(mux,
//	    SecurityHeadersMiddleware,
//	    RecoveryMiddleware,
//	    RequestIDMiddleware,
//	    LoggingMiddleware,
//	    CORSMiddleware(DefaultCORSConfig()),
//	)
//
// Security headers are set before anything else runs, so they are present on
// every response including preflights, errors and recovered panics.
// Recovery sits outside the request ID so that a panicking request is still
// answered with a JSON UNKNOWN_ERROR envelope.
//
// Per-route middleware:
//   - AllowMethods: 405 METHOD_NOT_ALLOWED for any other method
//   - GateMiddleware: security gate checks before the body is read
//
// # Request ID
//
// RequestIDMiddleware honors a well-formed X-Request-ID from the client and
// otherwise generates a UUID v4:
//
//	X-Request-ID: 550e8400-e29b-41d4-a716-446655440000
//
// The ID is stored with logging.WithRequestID, so every log line written
// with the request context carries it, and it is echoed in the response.
//
// # CORS
//
// Preflight requests on any path are answered with 204 and a fixed policy:
//
//	Access-Control-Allow-Origin: *
//	Access-Control-Allow-Methods: POST, OPTIONS
//	Access-Control-Allow-Headers: Content-Type, Authorization
//	Access-Control-Max-Age: 86400
package middleware
