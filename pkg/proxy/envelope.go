package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/conduit/pkg/providers"
)

// ErrorBody is the JSON envelope for every failed request.
type ErrorBody struct {
	Error          string         `json:"error"`
	Code           providers.Code `json:"code"`
	ProviderDetail string         `json:"providerDetail,omitempty"`
}

// NewErrorBody builds the envelope for perr.
func NewErrorBody(perr *providers.ProxyError) ErrorBody {
	return ErrorBody{
		Error:          perr.Message,
		Code:           perr.Code,
		ProviderDetail: perr.ProviderDetail,
	}
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

// WriteSuccess writes a completed response with status 200.
func WriteSuccess(w http.ResponseWriter, resp *providers.UnifiedResponse) error {
	return WriteJSON(w, http.StatusOK, resp)
}

// WriteError classifies err, writes the error envelope and returns the
// classified error. Unclassified errors are reported as UNKNOWN_ERROR with
// a generic message.
func WriteError(w http.ResponseWriter, err error) *providers.ProxyError {
	perr := providers.AsProxyError(err)

	if perr.Code == providers.CodeRateLimitExceeded && perr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(perr.RetryAfter)))
	}

	status := perr.StatusCode
	if status == 0 {
		status = perr.Code.HTTPStatus()
	}

	if werr := WriteJSON(w, status, NewErrorBody(perr)); werr != nil {
		slog.Debug("failed to write error response", "error", werr)
	}
	return perr
}

// RetryAfterSeconds rounds d up to whole seconds, at least one.
func RetryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// SetSSEHeaders sets the headers for a Server-Sent Events response.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Content-Type-Options", "nosniff")
}

// WriteSSEChunk writes chunk as a "data:" frame and flushes it.
func WriteSSEChunk(w http.ResponseWriter, chunk *providers.StreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE chunk: %w", err)
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE chunk: %w", err)
	}

	flush(w)
	return nil
}

// WriteSSEError writes an "error" event after which the stream is closed.
func WriteSSEError(w http.ResponseWriter, perr *providers.ProxyError) error {
	data, err := json.Marshal(NewErrorBody(perr))
	if err != nil {
		return fmt.Errorf("failed to marshal SSE error: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: error\ndata: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE error: %w", err)
	}

	flush(w)
	return nil
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LogRequestSafely logs the shape of a request. Message content and the
// caller's key are never logged.
func LogRequestSafely(ctx context.Context, provider, model string, messageCount int) {
	slog.InfoContext(ctx, "proxy request",
		"provider", provider,
		"model", model,
		"message_count", messageCount,
	)
}

// LogErrorSafely logs the classified fields of perr. Provider detail stays
// out of the log line. The underlying cause is logged, scrubbed, only for
// UNKNOWN_ERROR, where it is the sole record of what went wrong.
func LogErrorSafely(ctx context.Context, perr *providers.ProxyError) {
	if perr == nil {
		return
	}

	level := slog.LevelWarn
	if perr.StatusCode >= http.StatusInternalServerError || perr.Code == providers.CodeUnknownError {
		level = slog.LevelError
	}

	attrs := []any{
		"code", string(perr.Code),
		"message", perr.Message,
		"status", perr.StatusCode,
	}
	if perr.Provider != "" {
		attrs = append(attrs, "provider", perr.Provider)
	}
	if perr.Code == providers.CodeUnknownError && perr.Cause != nil {
		attrs = append(attrs, "cause", providers.ScrubSecret(perr.Cause.Error(), ""))
	}
	slog.Log(ctx, level, "proxy request failed", attrs...)
}
