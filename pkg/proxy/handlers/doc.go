// Package handlers implements the proxy's HTTP endpoints.
//
//	POST /proxy     buffered completion, 200 with the unified response
//	POST /stream    Server-Sent Events relay of a vendor stream
//	POST /validate  API key check, always 200 unless the input is malformed
//	GET  /health    liveness
//
// Every failure before a stream opens is answered with the JSON error
// envelope from package proxy. Once SSE headers are sent, a failure is
// reported as a single "error" event and the response ends.
//
// Handlers never log request bodies or API keys. Only the provider, model
// and message count of a request are logged.
package handlers
