package google

import (
	"strings"

	"mercator-hq/conduit/pkg/providers"
)

// Request is a generateContent request.
type Request struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is a turn made of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one piece of content.
type Part struct {
	Text string `json:"text,omitempty"`
}

// GenerationConfig carries sampling options.
type GenerationConfig struct {
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

// Response is a GenerateContentResponse, used for both buffered bodies and
// stream events.
type Response struct {
	Candidates     []Candidate     `json:"candidates"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
	ResponseID     string          `json:"responseId,omitempty"`
	Error          *ErrorBody      `json:"error,omitempty"`
}

// Candidate is one generated answer.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// UsageMetadata reports token counts.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// PromptFeedback explains a blocked prompt.
type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// ErrorEnvelope is the body of a non-2xx response.
type ErrorEnvelope struct {
	Error *ErrorBody `json:"error"`
}

// ErrorBody is a google.rpc.Status.
type ErrorBody struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Status  string        `json:"status"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail is one entry of google.rpc.Status details.
type ErrorDetail struct {
	Type   string `json:"@type"`
	Reason string `json:"reason,omitempty"`
}

// transformRequest converts a proxy request to Gemini format. Assistant
// turns use the "model" role.
func transformRequest(req *providers.ProxyRequest) *Request {
	out := &Request{Contents: make([]Content, 0, len(req.Messages))}

	var system []Part
	for _, msg := range req.Messages {
		switch msg.Role {
		case providers.RoleSystem:
			system = append(system, Part{Text: msg.Content})
		case providers.RoleAssistant:
			out.Contents = append(out.Contents, Content{Role: "model", Parts: []Part{{Text: msg.Content}}})
		default:
			out.Contents = append(out.Contents, Content{Role: "user", Parts: []Part{{Text: msg.Content}}})
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &Content{Parts: system}
	}
	if req.MaxTokens != nil || req.Temperature != nil {
		out.GenerationConfig = &GenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		}
	}
	return out
}

// candidateText joins the text parts of the first candidate.
func candidateText(resp *Response) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func transformUsage(u *UsageMetadata) *providers.Usage {
	total := u.TotalTokenCount
	if total == 0 {
		total = u.PromptTokenCount + u.CandidatesTokenCount
	}
	return &providers.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      total,
	}
}

// normalizeFinishReason maps Gemini finish reasons to normalized values.
func normalizeFinishReason(reason string) string {
	switch strings.ToUpper(reason) {
	case "":
		return ""
	case "STOP":
		return providers.FinishReasonStop
	case "MAX_TOKENS":
		return providers.FinishReasonLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return providers.FinishReasonContentFilter
	default:
		return strings.ToLower(reason)
	}
}
