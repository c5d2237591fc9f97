package providers

import (
	"errors"
	"testing"

	"mercator-hq/conduit/pkg/providers"
)

// TestRegistry returns a registry whose providers all point at baseURL.
func TestRegistry(t *testing.T, baseURL string) *providers.Registry {
	t.Helper()

	overrides := make(map[string]providers.Override)
	for _, id := range providers.DefaultRegistry().Providers() {
		overrides[id] = providers.Override{BaseURL: baseURL}
	}

	registry, err := providers.NewRegistry(overrides)
	if err != nil {
		t.Fatalf("failed to build test registry: %v", err)
	}
	return registry
}

// TestMessage creates a test message.
func TestMessage(role, content string) providers.Message {
	return providers.Message{
		Role:    providers.Role(role),
		Content: content,
	}
}

// TestRequest creates a buffered proxy request with a single user message.
func TestRequest(provider, model, apiKey string) *providers.ProxyRequest {
	return &providers.ProxyRequest{
		Provider: provider,
		Model:    model,
		APIKey:   apiKey,
		Messages: []providers.Message{TestMessage("user", "hi")},
	}
}

// TestStreamingRequest creates a streaming proxy request.
func TestStreamingRequest(provider, model, apiKey string) *providers.ProxyRequest {
	req := TestRequest(provider, model, apiKey)
	req.Stream = true
	return req
}

// TestKey returns a key that passes the format check for provider.
func TestKey(provider string) string {
	switch provider {
	case providers.Anthropic:
		return "sk-ant-test0123456789"
	case providers.Google:
		return "AIzaTest0123456789abcdef"
	case providers.Groq:
		return "gsk_test0123456789"
	case providers.Together:
		return "together0123456789abcdef"
	default:
		return "sk-test0123456789"
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertCode fails the test unless err is a *ProxyError with code.
func AssertCode(t *testing.T, err error, code providers.Code) *providers.ProxyError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}

	var perr *providers.ProxyError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *providers.ProxyError, got %T: %v", err, err)
	}
	if perr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, perr.Code, perr.Message)
	}
	if perr.StatusCode != code.HTTPStatus() {
		t.Errorf("status %d does not match code %s", perr.StatusCode, code)
	}
	return perr
}
