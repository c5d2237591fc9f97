package proxy

import (
	"testing"

	mock "mercator-hq/conduit/internal/providers"
	"mercator-hq/conduit/pkg/providers"
)

func TestValidator_Validate(t *testing.T) {
	v := NewValidator(providers.DefaultRegistry())

	tests := []struct {
		name     string
		body     string
		wantCode providers.Code
		wantMsg  string
	}{
		{"not json", `hello`, providers.CodeInvalidRequest, "request body must be a JSON object"},
		{"array body", `[1,2]`, providers.CodeInvalidRequest, "request body must be a JSON object"},
		{"null body", `null`, providers.CodeInvalidRequest, "request body must be a JSON object"},
		{"empty body", ``, providers.CodeInvalidRequest, "request body must be a JSON object"},
		{"missing provider", `{"model":"m"}`, providers.CodeInvalidRequest, "provider is required"},
		{"provider not string", `{"provider":5}`, providers.CodeInvalidRequest, "provider must be a string"},
		{"unknown provider", `{"provider":"acme","model":"m"}`, providers.CodeUnknownProvider, "unsupported provider: acme"},
		{"missing model", `{"provider":"openai"}`, providers.CodeInvalidRequest, "model is required"},
		{"empty model", `{"provider":"openai","model":""}`, providers.CodeInvalidRequest, "model is required"},
		{"missing messages", `{"provider":"openai","model":"m"}`, providers.CodeInvalidRequest, "messages is required"},
		{"messages not array", `{"provider":"openai","model":"m","messages":"hi"}`, providers.CodeInvalidRequest, "messages must be an array"},
		{"empty messages", `{"provider":"openai","model":"m","messages":[]}`, providers.CodeInvalidRequest, "messages must not be empty"},
		{"message not object", `{"provider":"openai","model":"m","messages":["hi"]}`, providers.CodeInvalidRequest, "messages[0] must be an object"},
		{"bad role", `{"provider":"openai","model":"m","messages":[{"role":"tool","content":"x"}]}`, providers.CodeInvalidRequest, "messages[0].role must be one of system, user, assistant"},
		{"content not string", `{"provider":"openai","model":"m","messages":[{"role":"user","content":1}]}`, providers.CodeInvalidRequest, "messages[0].content must be a string"},
		{"missing api key", `{"provider":"openai","model":"m","messages":[{"role":"user","content":"hi"}]}`, providers.CodeInvalidRequest, "apiKey is required"},
		{"zero max tokens", `{"provider":"openai","model":"m","messages":[{"role":"user","content":"hi"}],"apiKey":"k","maxTokens":0}`, providers.CodeInvalidRequest, "maxTokens must be a positive integer"},
		{"fractional max tokens", `{"provider":"openai","model":"m","messages":[{"role":"user","content":"hi"}],"apiKey":"k","maxTokens":1.5}`, providers.CodeInvalidRequest, "maxTokens must be a positive integer"},
		{"temperature too high", `{"provider":"openai","model":"m","messages":[{"role":"user","content":"hi"}],"apiKey":"k","temperature":2.5}`, providers.CodeInvalidRequest, "temperature must be between 0 and 2"},
		{"stream not bool", `{"provider":"openai","model":"m","messages":[{"role":"user","content":"hi"}],"apiKey":"k","stream":"yes"}`, providers.CodeInvalidRequest, "stream must be a boolean"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate([]byte(tt.body))
			perr := mock.AssertCode(t, err, tt.wantCode)
			if perr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", perr.Message, tt.wantMsg)
			}
		})
	}
}

func TestValidator_FirstViolationWins(t *testing.T) {
	v := NewValidator(providers.DefaultRegistry())

	// Both model and messages are invalid; model is checked first.
	_, err := v.Validate([]byte(`{"provider":"openai","messages":[]}`))
	perr := mock.AssertCode(t, err, providers.CodeInvalidRequest)
	if perr.Message != "model is required" {
		t.Errorf("message = %q, want model error first", perr.Message)
	}
}

func TestValidator_Defaults(t *testing.T) {
	v := NewValidator(providers.DefaultRegistry())

	req, err := v.Validate([]byte(`{
		"provider": "anthropic",
		"model": "claude-3-5-haiku-20241022",
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": "hi"}
		],
		"apiKey": "sk-ant-abc"
	}`))
	mock.AssertNoError(t, err)

	if req.Stream {
		t.Error("stream should default to false")
	}
	if req.MaxTokens != nil {
		t.Errorf("maxTokens = %v, want nil", *req.MaxTokens)
	}
	if req.Temperature != nil {
		t.Errorf("temperature = %v, want nil", *req.Temperature)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != providers.RoleSystem {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.APIKey != "sk-ant-abc" {
		t.Errorf("apiKey not decoded")
	}
}

func TestValidator_Options(t *testing.T) {
	v := NewValidator(providers.DefaultRegistry())

	req, err := v.Validate([]byte(`{"provider":"groq","model":"m","messages":[{"role":"user","content":""}],"apiKey":"gsk_1","maxTokens":64,"temperature":0,"stream":true}`))
	mock.AssertNoError(t, err)

	if req.MaxTokens == nil || *req.MaxTokens != 64 {
		t.Errorf("maxTokens = %v, want 64", req.MaxTokens)
	}
	if req.Temperature == nil || *req.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", req.Temperature)
	}
	if !req.Stream {
		t.Error("stream = false, want true")
	}
}

func TestValidator_ValidateKeyRequest(t *testing.T) {
	v := NewValidator(providers.DefaultRegistry())

	tests := []struct {
		name     string
		body     string
		wantCode providers.Code
	}{
		{"missing provider", `{"apiKey":"k"}`, providers.CodeInvalidRequest},
		{"unknown provider", `{"provider":"acme","apiKey":"k"}`, providers.CodeUnknownProvider},
		{"missing key", `{"provider":"openai"}`, providers.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := v.ValidateKeyRequest([]byte(tt.body))
			mock.AssertCode(t, err, tt.wantCode)
		})
	}

	provider, key, err := v.ValidateKeyRequest([]byte(`{"provider":"openai","apiKey":"sk-x"}`))
	mock.AssertNoError(t, err)
	if provider != "openai" || key != "sk-x" {
		t.Errorf("got (%q, %q)", provider, key)
	}
}
