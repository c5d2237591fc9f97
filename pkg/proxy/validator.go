package proxy

import (
	"bytes"
	"encoding/json"
	"math"

	"mercator-hq/conduit/pkg/providers"
)

// Temperature bounds accepted by every supported vendor.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// Validator turns raw request bodies into ProxyRequests.
type Validator struct {
	registry *providers.Registry
}

// NewValidator creates a Validator backed by registry.
func NewValidator(registry *providers.Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate parses raw and checks it field by field. The first violated
// constraint is returned as a *providers.ProxyError; nothing else is
// inspected after it. Validate performs no I/O.
func (v *Validator) Validate(raw []byte) (*providers.ProxyRequest, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	req := &providers.ProxyRequest{}

	provider, err := requiredString(fields, "provider")
	if err != nil {
		return nil, err
	}
	if !v.registry.IsSupportedProvider(provider) {
		return nil, providers.NewUnknownProvider(provider)
	}
	req.Provider = provider

	if req.Model, err = requiredString(fields, "model"); err != nil {
		return nil, err
	}

	if req.Messages, err = decodeMessages(fields["messages"]); err != nil {
		return nil, err
	}

	if req.APIKey, err = requiredString(fields, "apiKey"); err != nil {
		return nil, err
	}

	if err := decodeOptions(fields, req); err != nil {
		return nil, err
	}

	return req, nil
}

// ValidateKeyRequest checks the body of a key validation call and returns
// the provider id and key.
func (v *Validator) ValidateKeyRequest(raw []byte) (string, string, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return "", "", err
	}

	provider, err := requiredString(fields, "provider")
	if err != nil {
		return "", "", err
	}
	if !v.registry.IsSupportedProvider(provider) {
		return "", "", providers.NewUnknownProvider(provider)
	}

	apiKey, err := requiredString(fields, "apiKey")
	if err != nil {
		return "", "", err
	}
	return provider, apiKey, nil
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, providers.NewInvalidRequest("request body must be a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, providers.NewInvalidRequest("request body must be a JSON object")
	}
	return fields, nil
}

// present reports whether field exists and is not JSON null.
func present(fields map[string]json.RawMessage, name string) bool {
	raw, ok := fields[name]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func requiredString(fields map[string]json.RawMessage, name string) (string, error) {
	if !present(fields, name) {
		return "", providers.NewInvalidRequest("%s is required", name)
	}

	var s string
	if err := json.Unmarshal(fields[name], &s); err != nil {
		return "", providers.NewInvalidRequest("%s must be a string", name)
	}
	if s == "" {
		return "", providers.NewInvalidRequest("%s is required", name)
	}
	return s, nil
}

func decodeMessages(raw json.RawMessage) ([]providers.Message, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, providers.NewInvalidRequest("messages is required")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, providers.NewInvalidRequest("messages must be an array")
	}
	if len(items) == 0 {
		return nil, providers.NewInvalidRequest("messages must not be empty")
	}

	messages := make([]providers.Message, 0, len(items))
	for i, item := range items {
		var fields map[string]json.RawMessage
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &fields) != nil {
			return nil, providers.NewInvalidRequest("messages[%d] must be an object", i)
		}

		var role string
		if !present(fields, "role") || json.Unmarshal(fields["role"], &role) != nil || !providers.Role(role).Valid() {
			return nil, providers.NewInvalidRequest("messages[%d].role must be one of system, user, assistant", i)
		}

		var content string
		if !present(fields, "content") || json.Unmarshal(fields["content"], &content) != nil {
			return nil, providers.NewInvalidRequest("messages[%d].content must be a string", i)
		}

		messages = append(messages, providers.Message{Role: providers.Role(role), Content: content})
	}
	return messages, nil
}

func decodeOptions(fields map[string]json.RawMessage, req *providers.ProxyRequest) error {
	if present(fields, "maxTokens") {
		var n float64
		if err := json.Unmarshal(fields["maxTokens"], &n); err != nil || n != math.Trunc(n) || n < 1 || n > math.MaxInt32 {
			return providers.NewInvalidRequest("maxTokens must be a positive integer")
		}
		maxTokens := int(n)
		req.MaxTokens = &maxTokens
	}

	if present(fields, "temperature") {
		var t float64
		if err := json.Unmarshal(fields["temperature"], &t); err != nil {
			return providers.NewInvalidRequest("temperature must be a number")
		}
		if t < MinTemperature || t > MaxTemperature {
			return providers.NewInvalidRequest("temperature must be between %g and %g", MinTemperature, MaxTemperature)
		}
		req.Temperature = &t
	}

	if present(fields, "stream") {
		if err := json.Unmarshal(fields["stream"], &req.Stream); err != nil {
			return providers.NewInvalidRequest("stream must be a boolean")
		}
	}
	return nil
}
