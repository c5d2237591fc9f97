package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/proxy"
)

// StreamHandler serves POST /stream.
type StreamHandler struct {
	cfg Config
}

// NewStreamHandler creates a streaming handler.
func NewStreamHandler(cfg Config) *StreamHandler {
	return &StreamHandler{cfg: cfg}
}

// ServeHTTP opens a vendor stream and relays each chunk as an SSE frame as
// soon as it is read. The stream flag in the body is ignored.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	raw, err := readBody(w, r, h.cfg.maxBody())
	if err != nil {
		fail(ctx, w, h.cfg.Metrics, EndpointStream, "", start, err)
		return
	}

	req, err := h.cfg.Validator.Validate(raw)
	if err != nil {
		fail(ctx, w, h.cfg.Metrics, EndpointStream, "", start, err)
		return
	}
	req.Stream = true

	proxy.LogRequestSafely(ctx, req.Provider, req.Model, len(req.Messages))

	stream, err := h.cfg.Executor.ExecuteStreamingRequest(ctx, req)
	if err != nil {
		fail(ctx, w, h.cfg.Metrics, EndpointStream, req.Provider, start, err)
		return
	}
	defer stream.Close()

	// The server write timeout applies to buffered responses only.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	proxy.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	code := codeOK
	chunkCount := 0
	var firstChunkTime time.Time

	for {
		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			perr := providers.AsProxyError(err)
			code = string(perr.Code)
			proxy.LogErrorSafely(ctx, perr)

			// A client that went away cannot receive the error event.
			if ctx.Err() == nil {
				if werr := proxy.WriteSSEError(w, perr); werr != nil {
					slog.DebugContext(ctx, "failed to write SSE error", "error", werr)
				}
			}
			break
		}

		if !chunk.Done && chunkCount == 0 {
			firstChunkTime = time.Now()
		}

		if err := proxy.WriteSSEChunk(w, chunk); err != nil {
			slog.WarnContext(ctx, "client disconnected during streaming",
				"provider", req.Provider,
				"chunks_sent", chunkCount,
				"error", err,
			)
			code = string(providers.CodeTransportError)
			stream.Close()
			break
		}

		if chunk.Done {
			break
		}
		chunkCount++
	}

	if stream.State() == proxy.StateCompleted {
		recordUsage(ctx, h.cfg.Usage, usageRecord(callerOf(r), req.Provider, req.Model, stream.Usage(), start))
	}

	var firstChunkLatency time.Duration
	if !firstChunkTime.IsZero() {
		firstChunkLatency = firstChunkTime.Sub(start)
	}

	slog.InfoContext(ctx, "stream finished",
		"provider", req.Provider,
		"model", req.Model,
		"state", stream.State().String(),
		"chunks_sent", chunkCount,
		"first_chunk_latency_ms", firstChunkLatency.Milliseconds(),
		"total_latency_ms", time.Since(start).Milliseconds(),
	)
	h.cfg.Metrics.RecordRequest(EndpointStream, req.Provider, code, time.Since(start))
}
