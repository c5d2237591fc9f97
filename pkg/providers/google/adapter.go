package google

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"mercator-hq/conduit/pkg/providers"
)

// Adapter translates to and from the Gemini API.
type Adapter struct {
	config providers.ProviderConfig
}

// NewAdapter creates an adapter bound to cfg.
func NewAdapter(cfg providers.ProviderConfig) *Adapter {
	return &Adapter{config: cfg}
}

// BuildRequest builds a generateContent or streamGenerateContent request.
func (a *Adapter) BuildRequest(req *providers.ProxyRequest) (*providers.UpstreamRequest, error) {
	body, err := json.Marshal(transformRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	method := "generateContent"
	query := url.Values{}
	if req.Stream {
		method = "streamGenerateContent"
		query.Set("alt", "sse")
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range a.config.Headers {
		headers[k] = v
	}
	if name, value := a.config.AuthHeader(req.APIKey); name != "" {
		headers[name] = value
	} else {
		query.Set("key", req.APIKey)
	}

	path := fmt.Sprintf("/v1beta/models/%s:%s", url.PathEscape(req.Model), method)
	return &providers.UpstreamRequest{
		Method: http.MethodPost,
		URL:    a.config.Endpoint(path) + "?" + query.Encode(),
		Header: headers,
		Body:   body,
	}, nil
}

// ParseResponse converts a buffered generateContent body.
func (a *Adapter) ParseResponse(body []byte) (*providers.UnifiedResponse, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, providers.NewUpstreamError(a.config.ID, "malformed response from provider", err)
	}
	if resp.Error != nil {
		return nil, a.errorFromBody(0, nil, resp.Error)
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, providers.NewUpstreamError(a.config.ID, "prompt blocked by provider", nil).
				WithDetail(resp.PromptFeedback.BlockReason)
		}
		return nil, providers.NewUpstreamError(a.config.ID, "provider returned no candidates", nil)
	}

	result := &providers.UnifiedResponse{
		ID:           resp.ResponseID,
		Model:        resp.ModelVersion,
		Content:      candidateText(&resp),
		FinishReason: normalizeFinishReason(resp.Candidates[0].FinishReason),
	}
	if resp.UsageMetadata != nil {
		result.Usage = transformUsage(resp.UsageMetadata)
	}
	return result, nil
}

// ParseStreamChunk converts one SSE data line.
func (a *Adapter) ParseStreamChunk(ev *providers.SSEEvent) (*providers.StreamChunk, error) {
	if len(ev.Data) == 0 {
		return nil, nil
	}

	var resp Response
	if err := json.Unmarshal(ev.Data, &resp); err != nil {
		return nil, providers.NewUpstreamError(a.config.ID, "malformed stream chunk from provider", err)
	}
	if resp.Error != nil {
		return nil, a.errorFromBody(0, nil, resp.Error)
	}

	chunk := &providers.StreamChunk{Delta: candidateText(&resp)}
	if len(resp.Candidates) > 0 {
		chunk.FinishReason = normalizeFinishReason(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		chunk.Usage = transformUsage(resp.UsageMetadata)
	}

	if chunk.Delta == "" && chunk.FinishReason == "" && chunk.Usage == nil {
		return nil, nil
	}
	return chunk, nil
}

// ParseError maps a non-2xx response. Gemini answers an invalid key with
// 400 INVALID_ARGUMENT and an API_KEY_INVALID reason, which is treated as a
// credential failure.
func (a *Adapter) ParseError(status int, header http.Header, body []byte) *providers.ProxyError {
	var env ErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		return a.errorFromBody(status, header, env.Error)
	}
	return providers.StatusError(a.config.ID, status, header, string(body))
}

func (a *Adapter) errorFromBody(status int, header http.Header, body *ErrorBody) *providers.ProxyError {
	detail := providers.Detail(body.Message)

	for _, d := range body.Details {
		if d.Reason == "API_KEY_INVALID" {
			return providers.NewInvalidAPIKey(a.config.ID, "API key rejected by provider").WithDetail(detail)
		}
	}

	switch body.Status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return providers.NewInvalidAPIKey(a.config.ID, "API key rejected by provider").WithDetail(detail)
	case "RESOURCE_EXHAUSTED":
		return providers.NewRateLimited(a.config.ID, "provider rate limit exceeded", providers.ParseRetryAfter(header)).WithDetail(detail)
	}

	if status == 0 {
		status = body.Code
	}
	if status == 0 {
		return providers.NewUpstreamError(a.config.ID, "provider reported an error", nil).WithDetail(detail)
	}
	return providers.StatusError(a.config.ID, status, header, body.Message)
}
