package openai

import (
	"bytes"
	"encoding/json"

	"mercator-hq/conduit/pkg/providers"
)

var doneMarker = []byte("[DONE]")

// ParseStreamChunk converts one "data:" event. Role-only and empty deltas
// yield nil so that nothing is relayed for them.
func (a *Adapter) ParseStreamChunk(ev *providers.SSEEvent) (*providers.StreamChunk, error) {
	data := bytes.TrimSpace(ev.Data)
	if len(data) == 0 {
		return nil, nil
	}
	if bytes.Equal(data, doneMarker) {
		return &providers.StreamChunk{Done: true}, nil
	}

	var chunk StreamResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, providers.NewUpstreamError(a.config.ID, "malformed stream chunk from provider", err)
	}
	if chunk.Error != nil {
		return nil, providers.NewUpstreamError(a.config.ID, "provider reported a stream error", nil).
			WithDetail(providers.Detail(chunk.Error.Message))
	}

	var out providers.StreamChunk
	if chunk.Usage != nil {
		out.Usage = transformUsage(chunk.Usage)
	}
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		out.Delta = choice.Delta.Content
		out.FinishReason = normalizeFinishReason(choice.FinishReason)
	}

	if out.Delta == "" && out.FinishReason == "" && out.Usage == nil {
		return nil, nil
	}
	return &out, nil
}
