package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/conduit/pkg/proxy"
)

// ProxyHandler serves POST /proxy.
type ProxyHandler struct {
	cfg Config
}

// NewProxyHandler creates a buffered completion handler.
func NewProxyHandler(cfg Config) *ProxyHandler {
	return &ProxyHandler{cfg: cfg}
}

// ServeHTTP validates the body, performs one upstream call and writes the
// unified response.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	raw, err := readBody(w, r, h.cfg.maxBody())
	if err != nil {
		fail(ctx, w, h.cfg.Metrics, EndpointProxy, "", start, err)
		return
	}

	req, err := h.cfg.Validator.Validate(raw)
	if err != nil {
		fail(ctx, w, h.cfg.Metrics, EndpointProxy, "", start, err)
		return
	}

	proxy.LogRequestSafely(ctx, req.Provider, req.Model, len(req.Messages))

	resp, err := h.cfg.Executor.ExecuteAIRequest(ctx, req)
	if err != nil {
		fail(ctx, w, h.cfg.Metrics, EndpointProxy, req.Provider, start, err)
		return
	}

	recordUsage(ctx, h.cfg.Usage, usageRecord(callerOf(r), req.Provider, resp.Model, resp.Usage, start))

	if err := proxy.WriteSuccess(w, resp); err != nil {
		slog.ErrorContext(ctx, "failed to write response", "error", err)
	}
	h.cfg.Metrics.RecordRequest(EndpointProxy, req.Provider, codeOK, time.Since(start))
}
