// Package providerfactory selects the adapter implementation for each
// registered provider.
package providerfactory

import (
	"fmt"
	"log/slog"

	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/providers/anthropic"
	"mercator-hq/conduit/pkg/providers/google"
	"mercator-hq/conduit/pkg/providers/openai"
)

// NewAdapter creates the adapter matching cfg.Wire.
//
// Supported wire formats:
//   - "openai": OpenAI chat completions (openai, deepseek, groq, together)
//   - "anthropic": Anthropic Messages API
//   - "google": Gemini generateContent
func NewAdapter(cfg providers.ProviderConfig) (providers.Adapter, error) {
	switch cfg.Wire {
	case providers.WireOpenAI:
		return openai.NewAdapter(cfg), nil
	case providers.WireAnthropic:
		return anthropic.NewAdapter(cfg), nil
	case providers.WireGoogle:
		return google.NewAdapter(cfg), nil
	default:
		return nil, &providers.ConfigError{
			Provider: cfg.ID,
			Field:    "wire",
			Message:  fmt.Sprintf("unsupported wire format: %q (supported: openai, anthropic, google)", cfg.Wire),
		}
	}
}

// NewAdapterSet creates one adapter per provider in registry, keyed by
// provider id. The set is built once at startup and only read afterwards.
func NewAdapterSet(registry *providers.Registry) (map[string]providers.Adapter, error) {
	set := make(map[string]providers.Adapter)
	for _, id := range registry.Providers() {
		cfg, err := registry.GetConfig(id)
		if err != nil {
			return nil, err
		}

		adapter, err := NewAdapter(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create adapter for %q: %w", id, err)
		}
		set[id] = adapter

		slog.Debug("adapter registered",
			"provider", id,
			"wire", cfg.Wire,
		)
	}
	return set, nil
}
