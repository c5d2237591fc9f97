package providers

import "time"

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the accepted roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Normalized finish reasons.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
	FinishReasonToolCalls     = "tool_calls"
)

// Message is a single chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ProxyRequest is the provider-agnostic completion request accepted by the
// proxy. APIKey belongs to the caller and is forwarded to the vendor only.
type ProxyRequest struct {
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	APIKey      string    `json:"-"`
	MaxTokens   *int      `json:"maxTokens,omitempty"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int  `json:"promptTokens"`
	CompletionTokens int  `json:"completionTokens"`
	TotalTokens      int  `json:"totalTokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// Metadata is attached by the executor, never by an adapter.
type Metadata struct {
	// Duration is the wall time of the upstream call in milliseconds.
	Duration int64 `json:"duration"`

	// Timestamp is the completion time, RFC 3339 in UTC.
	Timestamp string `json:"timestamp"`
}

// NewMetadata builds Metadata for a call that started at start.
func NewMetadata(start, end time.Time) Metadata {
	return Metadata{
		Duration:  end.Sub(start).Milliseconds(),
		Timestamp: end.UTC().Format(time.RFC3339),
	}
}

// UnifiedResponse is the buffered completion result returned to callers
// regardless of which vendor served the request.
type UnifiedResponse struct {
	ID           string   `json:"id,omitempty"`
	Content      string   `json:"content"`
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	FinishReason string   `json:"finishReason,omitempty"`
	Usage        *Usage   `json:"usage,omitempty"`
	Metadata     Metadata `json:"metadata"`
}

// StreamChunk is one normalized streaming event.
type StreamChunk struct {
	Delta        string `json:"delta"`
	Done         bool   `json:"done"`
	FinishReason string `json:"finishReason,omitempty"`

	// Usage is set when the vendor reports token counts mid-stream. It is
	// folded into the final accounting and not relayed to the client.
	Usage *Usage `json:"-"`
}

// UpstreamRequest is the vendor-specific HTTP request produced by an adapter.
// URL may embed the caller's key and must not be logged.
type UpstreamRequest struct {
	Method string
	URL    string
	Header map[string]string
	Body   []byte
}
