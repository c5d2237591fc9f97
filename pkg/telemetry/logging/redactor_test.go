package logging

import (
	"errors"
	"strings"
	"testing"
)

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"api_key", true},
		{"API_KEY", true},
		{"apikey", true},
		{"authorization", true},
		{"x-api-key", true},
		{"admin_token", true},
		{"db_password", true},
		{"token", true},
		{"prompt_tokens", false},
		{"completion_tokens", false},
		{"provider", false},
		{"model", false},
	}
	for _, tt := range tests {
		if got := IsSensitiveKey(tt.key); got != tt.want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestRedactor_RedactString(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name    string
		in      string
		leak    string
		changed bool
	}{
		{"openai key", "bad key sk-proj-abc123XYZ", "sk-proj-abc123XYZ", true},
		{"anthropic key", "using sk-ant-api03-zzz", "sk-ant-api03-zzz", true},
		{"bearer", "Authorization: Bearer abc.def", "abc.def", true},
		{"plain text", "task-runner finished", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RedactString(tt.in)
			if tt.changed && got == tt.in {
				t.Errorf("RedactString(%q) left input unchanged", tt.in)
			}
			if !tt.changed && got != tt.in {
				t.Errorf("RedactString(%q) = %q, want unchanged", tt.in, got)
			}
			if tt.leak != "" && strings.Contains(got, tt.leak) {
				t.Errorf("RedactString(%q) = %q still contains secret", tt.in, got)
			}
		})
	}
}

func TestLogger_Redaction(t *testing.T) {
	logger, buf := newTestLogger(t, "info")

	logger.Info("upstream call",
		"api_key", "secret123",
		"detail", "Incorrect API key provided: sk-live-abcdef",
		"error", errors.New("auth failed for sk-live-abcdef"),
		"prompt_tokens", 42,
	)

	out := buf.String()
	if strings.Contains(out, "secret123") {
		t.Errorf("api_key value leaked: %s", out)
	}
	if strings.Contains(out, "sk-live-abcdef") {
		t.Errorf("key-shaped value leaked: %s", out)
	}

	entry := decodeLine(t, buf)
	if entry["api_key"] != Redacted {
		t.Errorf("api_key = %v, want %q", entry["api_key"], Redacted)
	}
	if entry["prompt_tokens"] != float64(42) {
		t.Errorf("prompt_tokens = %v, want 42", entry["prompt_tokens"])
	}
}
