package handlers

import (
	"log/slog"
	"net/http"

	"mercator-hq/conduit/pkg/proxy"
)

// HealthHandler handles health check requests for liveness probes.
type HealthHandler struct{}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP implements http.Handler for liveness checks.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := proxy.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}); err != nil {
		slog.DebugContext(r.Context(), "failed to write health response", "error", err)
	}
}
