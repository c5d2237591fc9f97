package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/conduit/pkg/keycheck"
	"mercator-hq/conduit/pkg/proxy"
	"mercator-hq/conduit/pkg/telemetry/metrics"
)

// verdictCacheName labels /validate cache metrics.
const verdictCacheName = "validate"

// ValidateHandler serves POST /validate.
type ValidateHandler struct {
	validator    *proxy.Validator
	checker      *keycheck.Checker
	metrics      *metrics.Collector
	maxBodyBytes int64
}

// NewValidateHandler creates a key validation handler.
func NewValidateHandler(validator *proxy.Validator, checker *keycheck.Checker, m *metrics.Collector, maxBodyBytes int64) *ValidateHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &ValidateHandler{
		validator:    validator,
		checker:      checker,
		metrics:      m,
		maxBodyBytes: maxBodyBytes,
	}
}

// ServeHTTP answers 200 with a verdict for every well-formed request. Only
// malformed input or an unknown provider is an error response.
func (h *ValidateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	raw, err := readBody(w, r, h.maxBodyBytes)
	if err != nil {
		fail(ctx, w, h.metrics, EndpointValidate, "", start, err)
		return
	}

	provider, apiKey, err := h.validator.ValidateKeyRequest(raw)
	if err != nil {
		fail(ctx, w, h.metrics, EndpointValidate, provider, start, err)
		return
	}

	result, err := h.checker.Check(ctx, provider, apiKey)
	if err != nil {
		fail(ctx, w, h.metrics, EndpointValidate, provider, start, err)
		return
	}

	if result.Error != keycheck.MsgInvalidFormat {
		if result.Cached {
			h.metrics.RecordCacheHit(verdictCacheName)
		} else {
			h.metrics.RecordCacheMiss(verdictCacheName)
		}
	}

	slog.InfoContext(ctx, "key validated",
		"provider", provider,
		"valid", result.Valid,
		"throttled", result.Throttled,
		"cached", result.Cached,
	)

	if err := proxy.WriteJSON(w, http.StatusOK, result); err != nil {
		slog.ErrorContext(ctx, "failed to write response", "error", err)
	}
	h.metrics.RecordRequest(EndpointValidate, provider, codeOK, time.Since(start))
}
