package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/proxy"
	"mercator-hq/conduit/pkg/security"
	"mercator-hq/conduit/pkg/telemetry/logging"
	"mercator-hq/conduit/pkg/telemetry/metrics"
	"mercator-hq/conduit/pkg/usage"
)

// Endpoint names used as metric labels.
const (
	EndpointProxy    = "proxy"
	EndpointStream   = "stream"
	EndpointValidate = "validate"
)

// codeOK labels successful requests in metrics.
const codeOK = "OK"

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// Config wires the completion handlers.
type Config struct {
	Validator *proxy.Validator
	Executor  *proxy.Executor

	// Usage records completed calls. Nil disables accounting.
	Usage usage.Store

	Metrics *metrics.Collector

	// MaxBodyBytes caps the request body. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

func (c Config) maxBody() int64 {
	if c.MaxBodyBytes > 0 {
		return c.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}

// readBody reads at most limit bytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, providers.NewInvalidRequest("request body exceeds %d bytes", limit)
		}
		return nil, providers.NewInvalidRequest("failed to read request body")
	}
	return body, nil
}

// callerOf returns the caller key set by the security gate, falling back to
// the remote address when the gate is not installed.
func callerOf(r *http.Request) string {
	if id, ok := security.IdentityFromContext(r.Context()); ok {
		return id.Caller
	}
	if caller := logging.GetCaller(r.Context()); caller != "" {
		return caller
	}
	return security.CallerKey(r, false)
}

// recordUsage stores one completed call and bills it to the caller's daily
// quota. Accounting failures are logged and never fail the request.
func recordUsage(ctx context.Context, store usage.Store, rec usage.Record) {
	security.MarkBilled(ctx)
	if store == nil {
		return
	}
	// The request context may already be done once a stream ends.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := store.Increment(ctx, rec); err != nil {
		slog.WarnContext(ctx, "failed to record usage",
			"provider", rec.Provider,
			"error", err,
		)
	}
}

// usageRecord builds a usage row from u, which may be nil.
func usageRecord(caller, provider, model string, u *providers.Usage, now time.Time) usage.Record {
	rec := usage.Record{
		Caller:   caller,
		Provider: provider,
		Model:    model,
		Time:     now,
	}
	if u != nil {
		rec.PromptTokens = u.PromptTokens
		rec.CompletionTokens = u.CompletionTokens
	}
	return rec
}

// fail writes the error envelope, logs it and records the request metric.
func fail(ctx context.Context, w http.ResponseWriter, m *metrics.Collector, endpoint, provider string, start time.Time, err error) {
	perr := proxy.WriteError(w, err)
	proxy.LogErrorSafely(ctx, perr)
	m.RecordRequest(endpoint, provider, string(perr.Code), time.Since(start))
}
