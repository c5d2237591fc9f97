package logging

import (
	"log/slog"
	"strings"

	"mercator-hq/conduit/pkg/providers"
)

// Redacted replaces the value of sensitive attributes.
const Redacted = "[REDACTED]"

// sensitiveKeys name attributes whose values are never logged. A key
// matches when it equals an entry or ends with "_" plus an entry, so
// "admin_token" matches and "prompt_tokens" does not.
var sensitiveKeys = []string{
	"api_key", "apikey",
	"authorization", "auth",
	"token", "secret",
	"password", "x-api-key",
}

// Redactor scrubs secrets from log attributes.
type Redactor struct{}

// NewRedactor creates a Redactor.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, Redacted)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if scrubbed := r.RedactString(s); scrubbed != s {
			return slog.String(a.Key, scrubbed)
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}

// RedactString masks anything shaped like a vendor key.
func (r *Redactor) RedactString(s string) string {
	return providers.ScrubSecret(s, "")
}

// IsSensitiveKey reports whether an attribute key names a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if lower == s || strings.HasSuffix(lower, "_"+s) {
			return true
		}
	}
	return false
}
