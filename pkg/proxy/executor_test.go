package proxy

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mock "mercator-hq/conduit/internal/providers"
	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/providerfactory"
	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/telemetry/logging"
	"mercator-hq/conduit/pkg/tokens"
)

const openAIPath = "/v1/chat/completions"

type executorOption func(*ExecutorConfig)

func withTimeout(d time.Duration) executorOption {
	return func(c *ExecutorConfig) { c.Timeout = d }
}

func withIdleTimeout(d time.Duration) executorOption {
	return func(c *ExecutorConfig) { c.StreamIdleTimeout = d }
}

func withEstimator(t *testing.T) executorOption {
	return func(c *ExecutorConfig) {
		est, err := tokens.New(&config.TokensConfig{Estimator: "simple"})
		if err != nil {
			t.Fatalf("tokens.New: %v", err)
		}
		c.Estimator = est
	}
}

// newTestExecutor points every provider at ms.
func newTestExecutor(t *testing.T, ms *mock.MockServer, opts ...executorOption) *Executor {
	t.Helper()

	registry := mock.TestRegistry(t, ms.URL())
	adapters, err := providerfactory.NewAdapterSet(registry)
	if err != nil {
		t.Fatalf("NewAdapterSet: %v", err)
	}

	cfg := ExecutorConfig{
		Registry:  registry,
		Adapters:  adapters,
		Transport: providers.NewTransportWithClient(ms.Client()),
		Timeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	e, err := NewExecutor(cfg)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return e
}

// captureLogs routes the default slog logger through a redacting JSON
// logger that writes to the returned buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	logger, err := logging.New(logging.Config{Level: "debug", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}

	prev := slog.Default()
	slog.SetDefault(logger.Logger)
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

// ============================================================================
// Construction
// ============================================================================

func TestNewExecutor_RequiresDependencies(t *testing.T) {
	registry := providers.DefaultRegistry()
	adapters, err := providerfactory.NewAdapterSet(registry)
	if err != nil {
		t.Fatalf("NewAdapterSet: %v", err)
	}
	transport := providers.NewTransport(providers.DefaultTransportConfig())

	tests := []struct {
		name string
		cfg  ExecutorConfig
	}{
		{"no registry", ExecutorConfig{Adapters: adapters, Transport: transport}},
		{"no transport", ExecutorConfig{Registry: registry, Adapters: adapters}},
		{"missing adapter", ExecutorConfig{Registry: registry, Adapters: map[string]providers.Adapter{}, Transport: transport}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewExecutor(tt.cfg); err == nil {
				t.Error("NewExecutor() succeeded, want error")
			}
		})
	}
}

// ============================================================================
// Buffered requests
// ============================================================================

func TestExecuteAIRequest_OpenAIMinimalResponse(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()

	ms.SetResponse(openAIPath, mock.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"choices":[{"message":{"content":"hello"}}]}`,
	})

	e := newTestExecutor(t, ms)
	resp, err := e.ExecuteAIRequest(context.Background(), mock.TestRequest("openai", "gpt-x", "sk-test"))
	mock.AssertNoError(t, err)

	if resp.Content != "hello" {
		t.Errorf("content = %q, want hello", resp.Content)
	}
	if resp.Provider != "openai" {
		t.Errorf("provider = %q", resp.Provider)
	}
	if resp.Model != "gpt-x" {
		t.Errorf("model = %q, want requested model", resp.Model)
	}
	if resp.ID == "" {
		t.Error("response id is empty")
	}
	if _, err := time.Parse(time.RFC3339, resp.Metadata.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC 3339: %v", resp.Metadata.Timestamp, err)
	}
	if resp.Metadata.Duration < 0 {
		t.Errorf("duration = %d", resp.Metadata.Duration)
	}

	if ms.GetRequestCount() != 1 {
		t.Fatalf("request count = %d, want 1", ms.GetRequestCount())
	}
	last, _ := ms.LastRequest()
	if err := mock.ExpectHeader(last, "Authorization", "Bearer sk-test"); err != nil {
		t.Error(err)
	}
}

func TestExecuteAIRequest_Providers(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		path     string
		body     interface{}
	}{
		{"openai", "gpt-4o-mini", openAIPath, mock.MockOpenAIResponse("hi there", "gpt-4o-mini")},
		{"deepseek", "deepseek-chat", openAIPath, mock.MockOpenAIResponse("hi there", "deepseek-chat")},
		{"groq", "llama", openAIPath, mock.MockOpenAIResponse("hi there", "llama")},
		{"together", "meta-llama", openAIPath, mock.MockOpenAIResponse("hi there", "meta-llama")},
		{"anthropic", "claude-3-5-haiku-20241022", "/v1/messages", mock.MockAnthropicResponse("hi there", "claude-3-5-haiku-20241022")},
		{"google", "gemini-1.5-flash", "/v1beta/models/gemini-1.5-flash:generateContent", mock.MockGeminiResponse("hi there")},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			ms := mock.NewMockServer()
			defer ms.Close()
			ms.SetResponse(tt.path, mock.MockResponse{StatusCode: http.StatusOK, Body: tt.body})

			e := newTestExecutor(t, ms)
			resp, err := e.ExecuteAIRequest(context.Background(), mock.TestRequest(tt.provider, tt.model, mock.TestKey(tt.provider)))
			mock.AssertNoError(t, err)

			if resp.Content != "hi there" {
				t.Errorf("content = %q", resp.Content)
			}
			if resp.Usage == nil || resp.Usage.TotalTokens != 30 {
				t.Errorf("usage = %+v, want vendor totals", resp.Usage)
			}
			if ms.GetRequestCount() != 1 {
				t.Errorf("request count = %d, want 1", ms.GetRequestCount())
			}
		})
	}
}

func TestExecuteAIRequest_IgnoresStreamFlag(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.SetResponse("/v1beta/models/gemini-1.5-flash:generateContent", mock.MockResponse{
		Body: mock.MockGeminiResponse("buffered"),
	})

	e := newTestExecutor(t, ms)
	req := mock.TestStreamingRequest("google", "gemini-1.5-flash", mock.TestKey("google"))
	resp, err := e.ExecuteAIRequest(context.Background(), req)
	mock.AssertNoError(t, err)

	if resp.Content != "buffered" {
		t.Errorf("content = %q", resp.Content)
	}
	if !req.Stream {
		t.Error("caller's request was modified")
	}
}

func TestExecuteAIRequest_EstimatesMissingUsage(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.SetResponse(openAIPath, mock.MockResponse{
		Body: `{"choices":[{"message":{"content":"a reasonably long answer"},"finish_reason":"stop"}]}`,
	})

	e := newTestExecutor(t, ms, withEstimator(t))
	resp, err := e.ExecuteAIRequest(context.Background(), mock.TestRequest("openai", "gpt-4o-mini", "sk-test"))
	mock.AssertNoError(t, err)

	if resp.Usage == nil {
		t.Fatal("usage is nil")
	}
	if !resp.Usage.Estimated {
		t.Error("usage should be marked estimated")
	}
	if resp.Usage.PromptTokens == 0 || resp.Usage.CompletionTokens == 0 {
		t.Errorf("usage = %+v, want non-zero estimates", resp.Usage)
	}
	if resp.Usage.TotalTokens != resp.Usage.PromptTokens+resp.Usage.CompletionTokens {
		t.Errorf("total = %d, want sum", resp.Usage.TotalTokens)
	}
}

// ============================================================================
// Local rejections
// ============================================================================

func TestExecuteAIRequest_InvalidKeyFormatMakesNoCall(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.SetResponse(openAIPath, mock.MockResponse{Body: mock.MockOpenAIResponse("x", "m")})

	e := newTestExecutor(t, ms)

	tests := []struct {
		provider string
		key      string
	}{
		{"openai", "secret123"},
		{"anthropic", "sk-wrongprefix"},
		{"google", "AIzashort"},
		{"groq", "sk-notgroq"},
		{"openai", "sk"},
	}
	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.key, func(t *testing.T) {
			_, err := e.ExecuteAIRequest(context.Background(), mock.TestRequest(tt.provider, "m", tt.key))
			perr := mock.AssertCode(t, err, providers.CodeInvalidAPIKey)
			if perr.Message != MsgInvalidKeyFormat {
				t.Errorf("message = %q", perr.Message)
			}
		})
	}

	if ms.GetRequestCount() != 0 {
		t.Errorf("request count = %d, want 0", ms.GetRequestCount())
	}
}

func TestExecuteAIRequest_UnknownProviderMakesNoCall(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()

	e := newTestExecutor(t, ms)
	_, err := e.ExecuteAIRequest(context.Background(), mock.TestRequest("acme", "m", "sk-test"))
	mock.AssertCode(t, err, providers.CodeUnknownProvider)

	if ms.GetRequestCount() != 0 {
		t.Errorf("request count = %d, want 0", ms.GetRequestCount())
	}
}

// ============================================================================
// Upstream failures
// ============================================================================

func TestExecuteAIRequest_ErrorMapping(t *testing.T) {
	tests := []struct {
		name           string
		response       mock.MockResponse
		wantCode       providers.Code
		wantRetryAfter time.Duration
	}{
		{"401", mock.MockAuthError(), providers.CodeInvalidAPIKey, 0},
		{"403", mock.MockErrorResponse(http.StatusForbidden, "forbidden"), providers.CodeInvalidAPIKey, 0},
		{"429", mock.MockRateLimitError(7), providers.CodeRateLimitExceeded, 7 * time.Second},
		{"500", mock.MockServerError(), providers.CodeUpstreamError, 0},
		{"503 html", mock.MockResponse{StatusCode: http.StatusServiceUnavailable, Body: "<html>down</html>"}, providers.CodeUpstreamError, 0},
		{"malformed 200", mock.MockResponse{StatusCode: http.StatusOK, Body: "not json"}, providers.CodeUpstreamError, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := mock.NewMockServer()
			defer ms.Close()
			ms.SetResponse(openAIPath, tt.response)

			e := newTestExecutor(t, ms)
			_, err := e.ExecuteAIRequest(context.Background(), mock.TestRequest("openai", "gpt-4o-mini", "sk-test"))
			perr := mock.AssertCode(t, err, tt.wantCode)

			if perr.RetryAfter != tt.wantRetryAfter {
				t.Errorf("RetryAfter = %v, want %v", perr.RetryAfter, tt.wantRetryAfter)
			}
			if perr.Provider != "openai" {
				t.Errorf("provider = %q", perr.Provider)
			}
			if ms.GetRequestCount() != 1 {
				t.Errorf("request count = %d, want exactly 1 (no retries)", ms.GetRequestCount())
			}
		})
	}
}

func TestExecuteAIRequest_Timeout(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.SetResponse("/v1beta/models/gemini-1.5-flash:generateContent", mock.MockResponse{
		Body:  mock.MockGeminiResponse("late"),
		Delay: 2 * time.Second,
	})

	e := newTestExecutor(t, ms, withTimeout(50*time.Millisecond))

	key := mock.TestKey("google")
	start := time.Now()
	_, err := e.ExecuteAIRequest(context.Background(), mock.TestRequest("google", "gemini-1.5-flash", key))
	elapsed := time.Since(start)

	perr := mock.AssertCode(t, err, providers.CodeTransportError)
	if perr.Message != "provider request timed out" {
		t.Errorf("message = %q", perr.Message)
	}
	if elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}

	// The Gemini URL carries the key in its query string.
	for _, s := range []string{perr.Error(), perr.Message, perr.ProviderDetail} {
		if strings.Contains(s, key) || strings.Contains(s, ms.URL()) {
			t.Errorf("error leaks URL or key: %q", s)
		}
	}
}

func TestExecuteAIRequest_ScrubsCallerKey(t *testing.T) {
	logs := captureLogs(t)

	const key = "secret123secret123"

	ms := mock.NewMockServer()
	defer ms.Close()
	ms.SetResponse(openAIPath, mock.MockErrorResponse(http.StatusUnauthorized, "Incorrect API key provided: "+key))

	e := newTestExecutor(t, ms)
	req := mock.TestRequest("together", "meta-llama", key)

	LogRequestSafely(context.Background(), req.Provider, req.Model, len(req.Messages))
	_, err := e.ExecuteAIRequest(context.Background(), req)
	perr := mock.AssertCode(t, err, providers.CodeInvalidAPIKey)
	LogErrorSafely(context.Background(), perr)

	rec := httptest.NewRecorder()
	WriteError(rec, perr)

	for name, s := range map[string]string{
		"detail": perr.ProviderDetail,
		"error":  perr.Error(),
		"body":   rec.Body.String(),
		"logs":   logs.String(),
	} {
		if strings.Contains(s, "secret123") {
			t.Errorf("%s contains the caller's key: %s", name, s)
		}
	}
	if !strings.Contains(perr.ProviderDetail, "Incorrect API key provided") {
		t.Errorf("detail lost vendor message: %q", perr.ProviderDetail)
	}
}

func TestExecuteAIRequest_ContextCancelled(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.SetResponse(openAIPath, mock.MockTimeoutError(2*time.Second))

	e := newTestExecutor(t, ms)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := e.ExecuteAIRequest(ctx, mock.TestRequest("openai", "gpt-4o-mini", "sk-test"))
	perr := mock.AssertCode(t, err, providers.CodeTransportError)
	if perr.Message != "request cancelled" {
		t.Errorf("message = %q", perr.Message)
	}
}

func TestExecuteAIRequest_EstimateWithoutLoadedEncodings(t *testing.T) {
	ms := mock.NewMockServer()
	defer ms.Close()
	ms.SetResponse(openAIPath, mock.MockResponse{
		Body: `{"choices":[{"message":{"content":"a reasonably long answer"},"finish_reason":"stop"}]}`,
	})

	est, err := tokens.New(&config.TokensConfig{Estimator: "tiktoken"})
	if err != nil {
		t.Fatalf("tokens.New: %v", err)
	}
	e := newTestExecutor(t, ms, withTimeout(200*time.Millisecond), func(c *ExecutorConfig) {
		c.Estimator = est
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	type result struct {
		resp *providers.UnifiedResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := e.ExecuteAIRequest(ctx, mock.TestRequest("openai", "gpt-4o-mini", "sk-test"))
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		mock.AssertNoError(t, r.err)
		if r.resp.Usage == nil || !r.resp.Usage.Estimated {
			t.Errorf("usage = %+v, want an estimate", r.resp.Usage)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ExecuteAIRequest blocked while estimating usage")
	}

	if n := ms.GetRequestCount(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}
