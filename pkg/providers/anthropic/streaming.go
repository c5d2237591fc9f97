package anthropic

import (
	"encoding/json"

	"mercator-hq/conduit/pkg/providers"
)

// ParseStreamChunk converts one named SSE event. ping, content_block_start
// and content_block_stop carry nothing and yield nil.
func (a *Adapter) ParseStreamChunk(ev *providers.SSEEvent) (*providers.StreamChunk, error) {
	if len(ev.Data) == 0 {
		return nil, nil
	}

	var event StreamEvent
	if err := json.Unmarshal(ev.Data, &event); err != nil {
		return nil, providers.NewUpstreamError(a.config.ID, "malformed stream event from provider", err)
	}

	// The SSE event name and the payload type agree; prefer the payload.
	kind := event.Type
	if kind == "" {
		kind = ev.Event
	}

	switch kind {
	case "message_start":
		if event.Message != nil && event.Message.Usage != nil {
			return &providers.StreamChunk{Usage: &providers.Usage{
				PromptTokens: event.Message.Usage.InputTokens,
			}}, nil
		}
		return nil, nil

	case "content_block_delta":
		if event.Delta != nil && event.Delta.Text != "" {
			return &providers.StreamChunk{Delta: event.Delta.Text}, nil
		}
		return nil, nil

	case "message_delta":
		chunk := &providers.StreamChunk{}
		if event.Delta != nil {
			chunk.FinishReason = normalizeStopReason(event.Delta.StopReason)
		}
		if event.Usage != nil {
			chunk.Usage = &providers.Usage{CompletionTokens: event.Usage.OutputTokens}
		}
		return chunk, nil

	case "message_stop":
		return &providers.StreamChunk{Done: true}, nil

	case "error":
		if event.Error == nil {
			return nil, providers.NewUpstreamError(a.config.ID, "provider reported a stream error", nil)
		}
		return nil, a.errorFromBody(0, nil, event.Error)

	default:
		return nil, nil
	}
}
