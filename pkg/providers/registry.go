package providers

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

// AuthFormat describes how a vendor expects the caller's key.
type AuthFormat string

const (
	// AuthBearer sends "Authorization: Bearer <key>".
	AuthBearer AuthFormat = "bearer"
	// AuthRaw sends the key verbatim in AuthHeaderName.
	AuthRaw AuthFormat = "raw"
	// AuthQuery appends the key to the URL query string.
	AuthQuery AuthFormat = "query"
)

// WireFormat selects the adapter family for a provider.
type WireFormat string

const (
	WireOpenAI    WireFormat = "openai"
	WireAnthropic WireFormat = "anthropic"
	WireGoogle    WireFormat = "google"
)

// Provider ids.
const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Google    = "google"
	DeepSeek  = "deepseek"
	Groq      = "groq"
	Together  = "together"
)

const (
	minKeyLength = 4
	maxKeyLength = 512
)

// ProviderConfig is the static metadata for one vendor.
type ProviderConfig struct {
	ID               string
	BaseURL          string
	AuthHeaderName   string
	AuthHeaderFormat AuthFormat
	DefaultModel     string
	KeyFormatPattern *regexp.Regexp
	Wire             WireFormat

	// Headers are sent on every request to this vendor.
	Headers map[string]string

	// Timeout overrides the executor's upstream timeout when non-zero.
	Timeout time.Duration
}

// AuthHeader returns the header name and value carrying apiKey, or two empty
// strings when the key travels in the query string.
func (c ProviderConfig) AuthHeader(apiKey string) (string, string) {
	switch c.AuthHeaderFormat {
	case AuthBearer:
		return c.AuthHeaderName, "Bearer " + apiKey
	case AuthRaw:
		return c.AuthHeaderName, apiKey
	default:
		return "", ""
	}
}

// Endpoint joins the base URL and path.
func (c ProviderConfig) Endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// Override adjusts a built-in provider entry at startup.
type Override struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

func builtinConfigs() []ProviderConfig {
	return []ProviderConfig{
		{
			ID:               OpenAI,
			BaseURL:          "https://api.openai.com",
			AuthHeaderName:   "Authorization",
			AuthHeaderFormat: AuthBearer,
			DefaultModel:     "gpt-4o-mini",
			KeyFormatPattern: regexp.MustCompile(`^sk-[A-Za-z0-9_\-]+$`),
			Wire:             WireOpenAI,
		},
		{
			ID:               Anthropic,
			BaseURL:          "https://api.anthropic.com",
			AuthHeaderName:   "x-api-key",
			AuthHeaderFormat: AuthRaw,
			DefaultModel:     "claude-3-5-haiku-20241022",
			KeyFormatPattern: regexp.MustCompile(`^sk-ant-[A-Za-z0-9_\-]+$`),
			Wire:             WireAnthropic,
			Headers:          map[string]string{"anthropic-version": "2023-06-01"},
		},
		{
			ID:               Google,
			BaseURL:          "https://generativelanguage.googleapis.com",
			AuthHeaderFormat: AuthQuery,
			DefaultModel:     "gemini-1.5-flash",
			KeyFormatPattern: regexp.MustCompile(`^AIza[0-9A-Za-z_\-]{10,}$`),
			Wire:             WireGoogle,
		},
		{
			ID:               DeepSeek,
			BaseURL:          "https://api.deepseek.com",
			AuthHeaderName:   "Authorization",
			AuthHeaderFormat: AuthBearer,
			DefaultModel:     "deepseek-chat",
			KeyFormatPattern: regexp.MustCompile(`^sk-[A-Za-z0-9]+$`),
			Wire:             WireOpenAI,
		},
		{
			ID:               Groq,
			BaseURL:          "https://api.groq.com/openai",
			AuthHeaderName:   "Authorization",
			AuthHeaderFormat: AuthBearer,
			DefaultModel:     "llama-3.3-70b-versatile",
			KeyFormatPattern: regexp.MustCompile(`^gsk_[A-Za-z0-9]+$`),
			Wire:             WireOpenAI,
		},
		{
			ID:               Together,
			BaseURL:          "https://api.together.xyz",
			AuthHeaderName:   "Authorization",
			AuthHeaderFormat: AuthBearer,
			DefaultModel:     "meta-llama/Llama-3.3-70B-Instruct-Turbo",
			KeyFormatPattern: regexp.MustCompile(`^[A-Za-z0-9_\-]{16,}$`),
			Wire:             WireOpenAI,
		},
	}
}

// Registry is the read-only table of supported providers. It is safe for
// concurrent use because nothing mutates it after NewRegistry returns.
type Registry struct {
	configs map[string]ProviderConfig
}

// NewRegistry builds the registry from the built-in table and applies
// overrides keyed by provider id. An override for an unknown id or with an
// unparseable base URL is a *ConfigError.
func NewRegistry(overrides map[string]Override) (*Registry, error) {
	r := &Registry{configs: make(map[string]ProviderConfig)}
	for _, cfg := range builtinConfigs() {
		r.configs[cfg.ID] = cfg
	}

	for id, o := range overrides {
		cfg, ok := r.configs[id]
		if !ok {
			return nil, &ConfigError{Provider: id, Field: "id", Message: "unknown provider"}
		}
		if o.BaseURL != "" {
			u, err := url.Parse(o.BaseURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, &ConfigError{Provider: id, Field: "base_url", Message: fmt.Sprintf("invalid URL %q", o.BaseURL)}
			}
			cfg.BaseURL = o.BaseURL
		}
		if o.DefaultModel != "" {
			cfg.DefaultModel = o.DefaultModel
		}
		if o.Timeout < 0 {
			return nil, &ConfigError{Provider: id, Field: "timeout", Message: "must not be negative"}
		}
		cfg.Timeout = o.Timeout
		r.configs[id] = cfg
	}

	return r, nil
}

// DefaultRegistry returns the built-in table without overrides.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(nil)
	return r
}

// GetConfig returns the configuration for id.
func (r *Registry) GetConfig(id string) (ProviderConfig, error) {
	cfg, ok := r.configs[id]
	if !ok {
		return ProviderConfig{}, NewUnknownProvider(id)
	}
	return cfg, nil
}

// IsSupportedProvider reports whether id is registered.
func (r *Registry) IsSupportedProvider(id string) bool {
	_, ok := r.configs[id]
	return ok
}

// ValidateAPIKeyFormat checks key against the vendor's format without any
// I/O. It only catches obviously malformed keys; a well-formed key may still
// be rejected by the vendor.
func (r *Registry) ValidateAPIKeyFormat(id, key string) bool {
	cfg, ok := r.configs[id]
	if !ok {
		return false
	}
	if len(key) < minKeyLength || len(key) > maxKeyLength {
		return false
	}
	return cfg.KeyFormatPattern.MatchString(key)
}

// GetDefaultModel returns the default model for id, or "" if id is unknown.
func (r *Registry) GetDefaultModel(id string) string {
	return r.configs[id].DefaultModel
}

// Providers returns the registered ids in sorted order.
func (r *Registry) Providers() []string {
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
