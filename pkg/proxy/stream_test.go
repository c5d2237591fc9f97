package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	mock "mercator-hq/conduit/internal/providers"
	"mercator-hq/conduit/pkg/providers"
)

// drain reads s to the end and returns the relayed deltas and terminal chunk.
func drain(t *testing.T, s *Stream) ([]string, *providers.StreamChunk) {
	t.Helper()

	var deltas []string
	for i := 0; i < 100; i++ {
		chunk, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if chunk.Done {
			if _, err := s.Next(context.Background()); !errors.Is(err, io.EOF) {
				t.Errorf("Next() after terminal chunk = %v, want io.EOF", err)
			}
			return deltas, chunk
		}
		deltas = append(deltas, chunk.Delta)
	}
	t.Fatal("stream did not terminate")
	return nil, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ============================================================================
// Relaying
// ============================================================================

func TestStream_ThreeChunksThenClose(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()

	const interval = 150 * time.Millisecond
	ms.SetResponse(openAIPath, mock.MockResponse{
		StreamChunks: []string{
			mock.MockOpenAIStreamChunk("one", ""),
			mock.MockOpenAIStreamChunk("two", ""),
			mock.MockOpenAIStreamChunk("three", ""),
		},
		ChunkInterval: interval,
	})

	e := newTestExecutor(t, ms)

	start := time.Now()
	s, err := e.ExecuteStreamingRequest(context.Background(), mock.TestStreamingRequest("openai", "gpt-4o-mini", "sk-test"))
	mock.AssertNoError(t, err)
	defer s.Close()

	if s.State() != StateStreaming {
		t.Fatalf("state = %v, want streaming", s.State())
	}

	first, err := s.Next(context.Background())
	mock.AssertNoError(t, err)
	if first.Delta != "one" {
		t.Errorf("first delta = %q", first.Delta)
	}
	if elapsed := time.Since(start); elapsed >= interval {
		t.Errorf("first chunk took %v; the stream is being buffered", elapsed)
	}

	rest, terminal := drain(t, s)
	got := append([]string{first.Delta}, rest...)
	if !equalStrings(got, []string{"one", "two", "three"}) {
		t.Errorf("deltas = %v", got)
	}
	if terminal.Delta != "" {
		t.Errorf("terminal delta = %q", terminal.Delta)
	}
	if s.State() != StateCompleted {
		t.Errorf("state = %v, want completed", s.State())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stream took %v", elapsed)
	}
}

func TestStream_OpenAIDoneMarker(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()

	ms.SetResponse(openAIPath, mock.MockResponse{
		StreamChunks: []string{
			mock.MockOpenAIStreamChunk("Hello", ""),
			mock.MockOpenAIStreamChunk("", "stop"),
		},
		StreamDone:    true,
		ChunkInterval: time.Millisecond,
	})

	e := newTestExecutor(t, ms)
	s, err := e.ExecuteStreamingRequest(context.Background(), mock.TestStreamingRequest("openai", "gpt-4o-mini", "sk-test"))
	mock.AssertNoError(t, err)

	deltas, terminal := drain(t, s)
	if !equalStrings(deltas, []string{"Hello"}) {
		t.Errorf("deltas = %v", deltas)
	}
	if terminal.FinishReason != providers.FinishReasonStop {
		t.Errorf("finish reason = %q", terminal.FinishReason)
	}
}

func TestStream_Anthropic(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()

	ms.SetResponse("/v1/messages", mock.MockResponse{
		StreamEvents:  mock.MockAnthropicStream("Hel", "lo"),
		ChunkInterval: time.Millisecond,
	})

	e := newTestExecutor(t, ms)
	s, err := e.ExecuteStreamingRequest(context.Background(),
		mock.TestStreamingRequest("anthropic", "claude-3-5-haiku-20241022", mock.TestKey("anthropic")))
	mock.AssertNoError(t, err)

	deltas, terminal := drain(t, s)
	if !equalStrings(deltas, []string{"Hel", "lo"}) {
		t.Errorf("deltas = %v", deltas)
	}
	if terminal.FinishReason != providers.FinishReasonStop {
		t.Errorf("finish reason = %q", terminal.FinishReason)
	}

	usage := s.Usage()
	if usage == nil {
		t.Fatal("usage is nil")
	}
	if usage.PromptTokens != 12 || usage.CompletionTokens != 2 || usage.TotalTokens != 14 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestStream_GoogleEndsAtEOF(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()

	ms.SetResponse("/v1beta/models/gemini-1.5-flash:streamGenerateContent", mock.MockResponse{
		StreamChunks: []string{
			mock.MockGeminiStreamChunk("a", ""),
			mock.MockGeminiStreamChunk("b", "STOP"),
		},
		ChunkInterval: time.Millisecond,
	})

	e := newTestExecutor(t, ms, withEstimator(t))
	s, err := e.ExecuteStreamingRequest(context.Background(),
		mock.TestStreamingRequest("google", "gemini-1.5-flash", mock.TestKey("google")))
	mock.AssertNoError(t, err)

	deltas, terminal := drain(t, s)
	if !equalStrings(deltas, []string{"a", "b"}) {
		t.Errorf("deltas = %v", deltas)
	}
	if terminal.FinishReason != providers.FinishReasonStop {
		t.Errorf("finish reason = %q", terminal.FinishReason)
	}

	last, _ := ms.LastRequest()
	if last.RawQuery == "" {
		t.Error("expected alt=sse and key in the query")
	}

	usage := s.Usage()
	if usage == nil || !usage.Estimated || usage.CompletionTokens == 0 {
		t.Errorf("usage = %+v, want estimated counts", usage)
	}
}

// ============================================================================
// Failures
// ============================================================================

func TestStream_ConnectErrors(t *testing.T) {
	tests := []struct {
		name     string
		response mock.MockResponse
		timeout  time.Duration
		wantCode providers.Code
	}{
		{"auth", mock.MockAuthError(), 5 * time.Second, providers.CodeInvalidAPIKey},
		{"rate limit", mock.MockRateLimitError(3), 5 * time.Second, providers.CodeRateLimitExceeded},
		{"server error", mock.MockServerError(), 5 * time.Second, providers.CodeUpstreamError},
		{"header timeout", mock.MockTimeoutError(2 * time.Second), 50 * time.Millisecond, providers.CodeTransportError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := mock.NewMockServer()
			defer ms.Close()
			ms.SetResponse(openAIPath, tt.response)

			e := newTestExecutor(t, ms, withTimeout(tt.timeout))
			s, err := e.ExecuteStreamingRequest(context.Background(), mock.TestStreamingRequest("openai", "gpt-4o-mini", "sk-test"))
			mock.AssertCode(t, err, tt.wantCode)
			if s != nil {
				t.Error("stream returned alongside an error")
			}
			if ms.GetRequestCount() != 1 {
				t.Errorf("request count = %d, want 1", ms.GetRequestCount())
			}
		})
	}
}

func TestStream_InvalidKeyFormatMakesNoCall(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()

	e := newTestExecutor(t, ms)
	_, err := e.ExecuteStreamingRequest(context.Background(), mock.TestStreamingRequest("groq", "m", "secret123"))
	mock.AssertCode(t, err, providers.CodeInvalidAPIKey)

	if ms.GetRequestCount() != 0 {
		t.Errorf("request count = %d, want 0", ms.GetRequestCount())
	}
}

func TestStream_InBandError(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()

	ms.SetResponse(openAIPath, mock.MockResponse{
		StreamChunks: []string{
			mock.MockOpenAIStreamChunk("partial", ""),
			`{"error":{"message":"model overloaded"}}`,
		},
		ChunkInterval: time.Millisecond,
	})

	e := newTestExecutor(t, ms)
	s, err := e.ExecuteStreamingRequest(context.Background(), mock.TestStreamingRequest("openai", "gpt-4o-mini", "sk-test"))
	mock.AssertNoError(t, err)

	chunk, err := s.Next(context.Background())
	mock.AssertNoError(t, err)
	if chunk.Delta != "partial" {
		t.Errorf("delta = %q", chunk.Delta)
	}

	_, err = s.Next(context.Background())
	mock.AssertCode(t, err, providers.CodeUpstreamError)
	if s.State() != StateErrored {
		t.Errorf("state = %v, want errored", s.State())
	}

	// The error is sticky.
	_, again := s.Next(context.Background())
	if again != err {
		t.Errorf("second Next() = %v, want the same error", again)
	}
}

func TestStream_CancellationClosesUpstream(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()

	ms.SetResponse(openAIPath, mock.MockResponse{
		StreamChunks: []string{mock.MockOpenAIStreamChunk("first", "")},
		HoldOpen:     true,
	})

	e := newTestExecutor(t, ms)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := e.ExecuteStreamingRequest(ctx, mock.TestStreamingRequest("openai", "gpt-4o-mini", "sk-test"))
	mock.AssertNoError(t, err)

	chunk, err := s.Next(ctx)
	mock.AssertNoError(t, err)
	if chunk.Delta != "first" {
		t.Errorf("delta = %q", chunk.Delta)
	}

	time.AfterFunc(50*time.Millisecond, cancel)

	_, err = s.Next(ctx)
	perr := mock.AssertCode(t, err, providers.CodeTransportError)
	if perr.Message != "request cancelled" {
		t.Errorf("message = %q", perr.Message)
	}
	if s.State() != StateAborted {
		t.Errorf("state = %v, want aborted", s.State())
	}

	select {
	case <-ms.ClientGone():
	case <-time.After(2 * time.Second):
		t.Fatal("upstream connection was not closed after cancellation")
	}
}

func TestStream_IdleTimeout(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()

	ms.SetResponse(openAIPath, mock.MockResponse{
		StreamChunks: []string{mock.MockOpenAIStreamChunk("first", "")},
		HoldOpen:     true,
	})

	e := newTestExecutor(t, ms, withIdleTimeout(100*time.Millisecond))
	s, err := e.ExecuteStreamingRequest(context.Background(), mock.TestStreamingRequest("openai", "gpt-4o-mini", "sk-test"))
	mock.AssertNoError(t, err)

	if _, err := s.Next(context.Background()); err != nil {
		t.Fatalf("first Next() error = %v", err)
	}

	start := time.Now()
	_, err = s.Next(context.Background())
	perr := mock.AssertCode(t, err, providers.CodeTransportError)
	if perr.Message != "provider stream idle timeout" {
		t.Errorf("message = %q", perr.Message)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("idle timeout fired after %v", elapsed)
	}
	if s.State() != StateErrored {
		t.Errorf("state = %v, want errored", s.State())
	}

	select {
	case <-ms.ClientGone():
	case <-time.After(2 * time.Second):
		t.Fatal("upstream connection was not closed after idle timeout")
	}
}

func TestStream_CloseAborts(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()

	ms.SetResponse(openAIPath, mock.MockResponse{HoldOpen: true, StatusCode: http.StatusOK})

	e := newTestExecutor(t, ms)
	s, err := e.ExecuteStreamingRequest(context.Background(), mock.TestStreamingRequest("openai", "gpt-4o-mini", "sk-test"))
	mock.AssertNoError(t, err)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.State() != StateAborted {
		t.Errorf("state = %v, want aborted", s.State())
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if _, err := s.Next(context.Background()); err == nil {
		t.Error("Next() after Close() succeeded")
	}
}

func TestStreamState_String(t *testing.T) {
	tests := []struct {
		state    StreamState
		want     string
		terminal bool
	}{
		{StateIdle, "idle", false},
		{StateConnecting, "connecting", false},
		{StateStreaming, "streaming", false},
		{StateCompleted, "completed", true},
		{StateAborted, "aborted", true},
		{StateErrored, "errored", true},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if got := tt.state.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v", tt.want, got)
		}
	}
}
