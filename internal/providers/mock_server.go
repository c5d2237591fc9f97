// Package providers contains an httptest-based vendor simulator and request
// fixtures shared by adapter, executor and server tests.
package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockServer is a mock HTTP server for testing provider adapters.
// It simulates vendor responses including errors, slow replies and streams,
// and records every request it receives.
type MockServer struct {
	server    *httptest.Server
	responses map[string]MockResponse
	requests  []RecordedRequest
	chunks    int
	mu        sync.Mutex

	closing    chan struct{}
	clientGone chan struct{}
	goneOnce   sync.Once
	closeOnce  sync.Once
}

// MockResponse defines a mock response configuration.
type MockResponse struct {
	StatusCode int
	Body       interface{}
	Delay      time.Duration
	Headers    map[string]string

	// StreamChunks are written as "data: <chunk>\n\n" frames.
	StreamChunks []string

	// StreamEvents are written verbatim, for vendors with named events.
	StreamEvents []string

	// StreamDone appends "data: [DONE]\n\n" after the chunks.
	StreamDone bool

	// ChunkInterval separates frames (default 10ms).
	ChunkInterval time.Duration

	// HoldOpen keeps the stream open after the last frame until the client
	// disconnects or the server closes.
	HoldOpen bool
}

// RecordedRequest is a copy of an incoming request.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// NewMockServer creates a new mock server.
func NewMockServer() *MockServer {
	ms := &MockServer{
		responses:  make(map[string]MockResponse),
		closing:    make(chan struct{}),
		clientGone: make(chan struct{}),
	}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handler))
	return ms
}

// URL returns the mock server's base URL.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Client returns an HTTP client configured for the mock server.
func (ms *MockServer) Client() *http.Client {
	return ms.server.Client()
}

// Close closes the mock server, releasing any held-open streams first.
func (ms *MockServer) Close() {
	ms.closeOnce.Do(func() { close(ms.closing) })
	ms.server.Close()
}

// SetResponse sets a mock response for a specific path.
func (ms *MockServer) SetResponse(path string, response MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.responses[path] = response
}

// GetRequestCount returns the number of requests received.
func (ms *MockServer) GetRequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return len(ms.requests)
}

// Requests returns a copy of all recorded requests.
func (ms *MockServer) Requests() []RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]RecordedRequest, len(ms.requests))
	copy(out, ms.requests)
	return out
}

// LastRequest returns the most recent request. ok is false if none arrived.
func (ms *MockServer) LastRequest() (RecordedRequest, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if len(ms.requests) == 0 {
		return RecordedRequest{}, false
	}
	return ms.requests[len(ms.requests)-1], true
}

// ChunksWritten returns the number of stream frames written so far.
func (ms *MockServer) ChunksWritten() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.chunks
}

// ClientGone is closed once a streaming handler observes that the client
// went away.
func (ms *MockServer) ClientGone() <-chan struct{} {
	return ms.clientGone
}

// handler handles incoming HTTP requests.
func (ms *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	ms.mu.Lock()
	ms.requests = append(ms.requests, RecordedRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Body:     body,
	})
	response, ok := ms.responses[r.URL.Path]
	ms.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if response.Delay > 0 {
		select {
		case <-time.After(response.Delay):
		case <-r.Context().Done():
			ms.markClientGone()
			return
		case <-ms.closing:
			return
		}
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}

	if len(response.StreamChunks) > 0 || len(response.StreamEvents) > 0 || response.HoldOpen {
		ms.handleStream(w, r, response)
		return
	}

	statusCode := response.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	w.WriteHeader(statusCode)

	if response.Body != nil {
		switch v := response.Body.(type) {
		case string:
			_, _ = w.Write([]byte(v))
		case []byte:
			_, _ = w.Write(v)
		default:
			_ = json.NewEncoder(w).Encode(response.Body)
		}
	}
}

// handleStream writes Server-Sent Events frames with a pause between them.
func (ms *MockServer) handleStream(w http.ResponseWriter, r *http.Request, response MockResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	statusCode := response.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	w.WriteHeader(statusCode)
	flusher.Flush()

	interval := response.ChunkInterval
	if interval == 0 {
		interval = 10 * time.Millisecond
	}

	frames := make([]string, 0, len(response.StreamChunks)+len(response.StreamEvents)+1)
	for _, chunk := range response.StreamChunks {
		frames = append(frames, fmt.Sprintf("data: %s\n\n", chunk))
	}
	frames = append(frames, response.StreamEvents...)
	if response.StreamDone {
		frames = append(frames, "data: [DONE]\n\n")
	}

	for i, frame := range frames {
		if i > 0 {
			select {
			case <-time.After(interval):
			case <-r.Context().Done():
				ms.markClientGone()
				return
			case <-ms.closing:
				return
			}
		}

		if _, err := io.WriteString(w, frame); err != nil {
			ms.markClientGone()
			return
		}
		flusher.Flush()

		ms.mu.Lock()
		ms.chunks++
		ms.mu.Unlock()
	}

	if response.HoldOpen {
		select {
		case <-r.Context().Done():
			ms.markClientGone()
		case <-ms.closing:
		}
	}
}

func (ms *MockServer) markClientGone() {
	ms.goneOnce.Do(func() { close(ms.clientGone) })
}

// MockOpenAIResponse creates a mock OpenAI chat completion response.
func MockOpenAIResponse(content string, model string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     10,
			"completion_tokens": 20,
			"total_tokens":      30,
		},
	}
}

// MockOpenAIStreamChunk creates a mock OpenAI streaming chunk.
func MockOpenAIStreamChunk(delta string, finishReason string) string {
	choice := map[string]interface{}{
		"index": 0,
		"delta": map[string]interface{}{
			"content": delta,
		},
	}
	if finishReason != "" {
		choice["finish_reason"] = finishReason
	}

	chunk := map[string]interface{}{
		"id":      "chatcmpl-123",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{choice},
	}

	bytes, _ := json.Marshal(chunk)
	return string(bytes)
}

// MockAnthropicResponse creates a mock Anthropic messages response.
func MockAnthropicResponse(content string, model string) map[string]interface{} {
	return map[string]interface{}{
		"id":   "msg_123",
		"type": "message",
		"role": "assistant",
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": content,
			},
		},
		"model":       model,
		"stop_reason": "end_turn",
		"usage": map[string]interface{}{
			"input_tokens":  10,
			"output_tokens": 20,
		},
	}
}

// MockAnthropicStreamEvent creates a named SSE frame.
func MockAnthropicStreamEvent(eventType string, data interface{}) string {
	var eventData string

	if data != nil {
		bytes, _ := json.Marshal(data)
		eventData = string(bytes)
	}

	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, eventData)
}

// MockAnthropicStream returns a complete Anthropic event sequence that
// streams deltas in order.
func MockAnthropicStream(deltas ...string) []string {
	events := []string{
		MockAnthropicStreamEvent("message_start", map[string]interface{}{
			"type": "message_start",
			"message": map[string]interface{}{
				"id":    "msg_123",
				"type":  "message",
				"role":  "assistant",
				"model": "claude-3-5-haiku-20241022",
				"usage": map[string]interface{}{"input_tokens": 12, "output_tokens": 1},
			},
		}),
		MockAnthropicStreamEvent("ping", map[string]interface{}{"type": "ping"}),
	}
	for _, d := range deltas {
		events = append(events, MockAnthropicStreamEvent("content_block_delta", map[string]interface{}{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]interface{}{"type": "text_delta", "text": d},
		}))
	}
	events = append(events,
		MockAnthropicStreamEvent("message_delta", map[string]interface{}{
			"type":  "message_delta",
			"delta": map[string]interface{}{"stop_reason": "end_turn"},
			"usage": map[string]interface{}{"output_tokens": len(deltas)},
		}),
		MockAnthropicStreamEvent("message_stop", map[string]interface{}{"type": "message_stop"}),
	)
	return events
}

// MockGeminiResponse creates a mock generateContent response.
func MockGeminiResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]interface{}{{"text": content}},
				},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]interface{}{
			"promptTokenCount":     10,
			"candidatesTokenCount": 20,
			"totalTokenCount":      30,
		},
		"modelVersion": "gemini-1.5-flash",
	}
}

// MockGeminiStreamChunk creates one streamGenerateContent data payload.
func MockGeminiStreamChunk(text, finishReason string) string {
	candidate := map[string]interface{}{
		"content": map[string]interface{}{
			"role":  "model",
			"parts": []map[string]interface{}{{"text": text}},
		},
	}
	if finishReason != "" {
		candidate["finishReason"] = finishReason
	}
	bytes, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{candidate},
	})
	return string(bytes)
}

// MockErrorResponse creates a mock error response in OpenAI format.
func MockErrorResponse(statusCode int, message string) MockResponse {
	body := map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "invalid_request_error",
			"code":    nil,
		},
	}

	return MockResponse{
		StatusCode: statusCode,
		Body:       body,
	}
}

// MockAuthError creates a 401 authentication error response.
func MockAuthError() MockResponse {
	return MockErrorResponse(http.StatusUnauthorized, "Invalid API key")
}

// MockRateLimitError creates a 429 rate limit error response.
func MockRateLimitError(retryAfter int) MockResponse {
	response := MockErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded")
	response.Headers = map[string]string{
		"Retry-After": fmt.Sprintf("%d", retryAfter),
	}
	return response
}

// MockTimeoutError creates a slow response to simulate timeout.
func MockTimeoutError(delay time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       MockOpenAIResponse("timeout", "gpt-4o-mini"),
		Delay:      delay,
	}
}

// MockServerError creates a 500 internal server error response.
func MockServerError() MockResponse {
	return MockErrorResponse(http.StatusInternalServerError, "Internal server error")
}

// ExpectHeader checks if a request has a specific header value.
func ExpectHeader(r RecordedRequest, key, value string) error {
	actual := r.Header.Get(key)
	if !strings.Contains(actual, value) {
		return fmt.Errorf("header %q mismatch: expected %q, got %q", key, value, actual)
	}
	return nil
}
