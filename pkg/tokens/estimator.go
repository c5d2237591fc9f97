package tokens

import (
	"fmt"

	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/providers"
)

// Estimator estimates token counts for text and messages.
type Estimator interface {
	// EstimateText estimates tokens for a single text string.
	EstimateText(text string, model string) int

	// EstimateMessages estimates prompt tokens for a conversation,
	// including per-message formatting overhead.
	EstimateMessages(messages []providers.Message, model string) int
}

// Per-message and per-conversation formatting overhead, following the
// chat markup used by OpenAI-style models.
const (
	messageOverhead      = 3
	conversationOverhead = 3
)

// New returns the estimator selected by cfg.Estimator.
func New(cfg *config.TokensConfig) (Estimator, error) {
	switch cfg.Estimator {
	case "simple":
		return NewSimpleEstimator(cfg), nil
	case "tiktoken", "":
		return NewTiktokenEstimator(NewSimpleEstimator(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown token estimator %q", cfg.Estimator)
	}
}

// FillUsage returns usage with any missing counts estimated from the prompt
// and the generated content. A complete usage is returned unchanged.
func FillUsage(est Estimator, usage *providers.Usage, messages []providers.Message, content, model string) *providers.Usage {
	if usage != nil && usage.PromptTokens > 0 && usage.CompletionTokens > 0 {
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
		return usage
	}

	out := &providers.Usage{}
	if usage != nil {
		*out = *usage
	}

	if out.PromptTokens == 0 {
		out.PromptTokens = est.EstimateMessages(messages, model)
		out.Estimated = true
	}
	if out.CompletionTokens == 0 && content != "" {
		out.CompletionTokens = est.EstimateText(content, model)
		out.Estimated = true
	}
	out.TotalTokens = out.PromptTokens + out.CompletionTokens
	return out
}

// countMessages applies the shared message overhead around a text counter.
func countMessages(messages []providers.Message, model string, count func(string, string) int) int {
	if len(messages) == 0 {
		return 0
	}

	total := 0
	for _, msg := range messages {
		total += messageOverhead
		total += count(string(msg.Role), model)
		total += count(msg.Content, model)
	}
	return total + conversationOverhead
}
