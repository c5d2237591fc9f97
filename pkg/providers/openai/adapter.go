package openai

import (
	"encoding/json"
	"fmt"
	"net/http"

	"mercator-hq/conduit/pkg/providers"
)

const chatCompletionsPath = "/v1/chat/completions"

// Adapter translates to and from the OpenAI chat completions format.
type Adapter struct {
	config providers.ProviderConfig
}

// NewAdapter creates an adapter bound to cfg.
func NewAdapter(cfg providers.ProviderConfig) *Adapter {
	return &Adapter{config: cfg}
}

// BuildRequest builds the chat completions request with bearer auth.
func (a *Adapter) BuildRequest(req *providers.ProxyRequest) (*providers.UpstreamRequest, error) {
	body, err := json.Marshal(transformRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range a.config.Headers {
		headers[k] = v
	}
	if name, value := a.config.AuthHeader(req.APIKey); name != "" {
		headers[name] = value
	}
	if req.Stream {
		headers["Accept"] = "text/event-stream"
	}

	return &providers.UpstreamRequest{
		Method: http.MethodPost,
		URL:    a.config.Endpoint(chatCompletionsPath),
		Header: headers,
		Body:   body,
	}, nil
}

// ParseResponse converts a buffered chat completions body.
func (a *Adapter) ParseResponse(body []byte) (*providers.UnifiedResponse, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, providers.NewUpstreamError(a.config.ID, "malformed response from provider", err)
	}
	if resp.Error != nil {
		return nil, providers.NewUpstreamError(a.config.ID, "provider reported an error", nil).
			WithDetail(providers.Detail(resp.Error.Message))
	}
	if len(resp.Choices) == 0 {
		return nil, providers.NewUpstreamError(a.config.ID, "provider returned no choices", nil)
	}
	return transformResponse(&resp), nil
}

// ParseError maps a non-2xx response. Besides the shared status mapping, an
// "invalid_api_key" code is treated as a credential failure whatever the
// status, since some compatible vendors answer it with 400.
func (a *Adapter) ParseError(status int, header http.Header, body []byte) *providers.ProxyError {
	var env ErrorEnvelope
	detail := string(body)
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		detail = env.Error.Message
		if code, ok := env.Error.Code.(string); ok && code == "invalid_api_key" {
			return providers.NewInvalidAPIKey(a.config.ID, "API key rejected by provider").
				WithDetail(providers.Detail(detail))
		}
	}
	return providers.StatusError(a.config.ID, status, header, detail)
}
