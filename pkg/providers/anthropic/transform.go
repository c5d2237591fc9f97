package anthropic

import (
	"strings"

	"mercator-hq/conduit/pkg/providers"
)

// DefaultMaxTokens is sent when the caller does not set maxTokens.
const DefaultMaxTokens = 4096

// Request is an Anthropic messages request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message is a message in Anthropic format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContentBlock is one block of response content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Response is an Anthropic messages response.
type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      *Usage         `json:"usage,omitempty"`
	Error      *ErrorBody     `json:"error,omitempty"`
}

// Usage is token usage in Anthropic format.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ErrorBody describes a vendor error; it appears in non-2xx bodies and in
// "error" stream events.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorEnvelope is the body of a non-2xx response.
type ErrorEnvelope struct {
	Type  string     `json:"type"`
	Error *ErrorBody `json:"error"`
}

// StreamEvent is the data payload of any streaming event.
type StreamEvent struct {
	Type    string       `json:"type"`
	Message *Response    `json:"message,omitempty"`
	Delta   *StreamDelta `json:"delta,omitempty"`
	Usage   *Usage       `json:"usage,omitempty"`
	Error   *ErrorBody   `json:"error,omitempty"`
}

// StreamDelta covers both content_block_delta and message_delta payloads.
type StreamDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// transformRequest converts a proxy request to Anthropic format.
func transformRequest(req *providers.ProxyRequest) (*Request, error) {
	out := &Request{
		Model:       req.Model,
		Messages:    make([]Message, 0, len(req.Messages)),
		MaxTokens:   DefaultMaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}

	var system []string
	for _, msg := range req.Messages {
		if msg.Role == providers.RoleSystem {
			system = append(system, msg.Content)
			continue
		}

		n := len(out.Messages)
		if n > 0 && out.Messages[n-1].Role == string(msg.Role) {
			out.Messages[n-1].Content += "\n\n" + msg.Content
			continue
		}
		out.Messages = append(out.Messages, Message{Role: string(msg.Role), Content: msg.Content})
	}
	out.System = strings.Join(system, "\n\n")

	if len(out.Messages) == 0 {
		return nil, providers.NewInvalidRequest("at least one user message is required")
	}
	if out.Messages[0].Role != string(providers.RoleUser) {
		return nil, providers.NewInvalidRequest("first non-system message must be from user")
	}

	return out, nil
}

// transformResponse converts an Anthropic response.
func transformResponse(resp *Response) *providers.UnifiedResponse {
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	result := &providers.UnifiedResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      content.String(),
		FinishReason: normalizeStopReason(resp.StopReason),
	}
	if resp.Usage != nil {
		result.Usage = &providers.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	return result
}

// normalizeStopReason maps Anthropic stop reasons to normalized values.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return providers.FinishReasonStop
	case "max_tokens":
		return providers.FinishReasonLength
	case "tool_use":
		return providers.FinishReasonToolCalls
	default:
		return reason
	}
}
