package tokens

import (
	"strings"
	"unicode/utf8"

	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/providers"
)

// SimpleEstimator implements character-based token estimation using
// model-specific characters-per-token ratios. It is fast and needs no
// external data.
type SimpleEstimator struct {
	models map[string]float64
}

// NewSimpleEstimator creates a character-based estimator. The ratio table
// is copied, so later changes to cfg do not affect it.
func NewSimpleEstimator(cfg *config.TokensConfig) *SimpleEstimator {
	models := make(map[string]float64)
	if cfg != nil {
		for k, v := range cfg.Models {
			models[k] = v
		}
	}
	return &SimpleEstimator{models: models}
}

// EstimateText estimates tokens for a single text string.
func (e *SimpleEstimator) EstimateText(text string, model string) int {
	if text == "" {
		return 0
	}

	chars := utf8.RuneCountInString(text)
	tokens := float64(chars) / e.charsPerToken(model)
	if tokens < 1.0 {
		return 1
	}
	return int(tokens + 0.5)
}

// EstimateMessages estimates prompt tokens for messages.
func (e *SimpleEstimator) EstimateMessages(messages []providers.Message, model string) int {
	return countMessages(messages, model, e.EstimateText)
}

// charsPerToken returns the ratio for model: exact match, then the longest
// matching prefix, then "default", then 4.
func (e *SimpleEstimator) charsPerToken(model string) float64 {
	if ratio, ok := e.models[model]; ok {
		return ratio
	}

	best, bestLen := 0.0, 0
	for prefix, ratio := range e.models {
		if prefix != "default" && strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = ratio, len(prefix)
		}
	}
	if bestLen > 0 {
		return best
	}

	if ratio, ok := e.models["default"]; ok {
		return ratio
	}
	return config.DefaultTokensCharsPerToken
}
