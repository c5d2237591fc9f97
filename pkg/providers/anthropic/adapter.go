package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"

	"mercator-hq/conduit/pkg/providers"
)

const messagesPath = "/v1/messages"

// Adapter translates to and from the Anthropic Messages API.
type Adapter struct {
	config providers.ProviderConfig
}

// NewAdapter creates an adapter bound to cfg.
func NewAdapter(cfg providers.ProviderConfig) *Adapter {
	return &Adapter{config: cfg}
}

// BuildRequest builds a messages request with x-api-key auth.
func (a *Adapter) BuildRequest(req *providers.ProxyRequest) (*providers.UpstreamRequest, error) {
	areq, err := transformRequest(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(areq)
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
		URL:    a.config.Endpoint(messagesPath),
		Header: headers,
		Body:   body,
	}, nil
}

// ParseResponse converts a buffered messages body.
func (a *Adapter) ParseResponse(body []byte) (*providers.UnifiedResponse, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, providers.NewUpstreamError(a.config.ID, "malformed response from provider", err)
	}
	if resp.Type == "error" || resp.Error != nil {
		return nil, a.errorFromBody(0, nil, resp.Error)
	}
	return transformResponse(&resp), nil
}

// ParseError maps a non-2xx response using the error type when present.
func (a *Adapter) ParseError(status int, header http.Header, body []byte) *providers.ProxyError {
	var env ErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		return a.errorFromBody(status, header, env.Error)
	}
	return providers.StatusError(a.config.ID, status, header, string(body))
}

// errorFromBody maps Anthropic error types. overloaded_error (HTTP 529) and
// api_error are generic upstream failures.
func (a *Adapter) errorFromBody(status int, header http.Header, body *ErrorBody) *providers.ProxyError {
	if body == nil {
		return providers.NewUpstreamError(a.config.ID, "provider reported an error", nil)
	}

	detail := providers.Detail(body.Message)
	switch body.Type {
	case "authentication_error", "permission_error":
		return providers.NewInvalidAPIKey(a.config.ID, "API key rejected by provider").WithDetail(detail)
	case "rate_limit_error":
		return providers.NewRateLimited(a.config.ID, "provider rate limit exceeded", providers.ParseRetryAfter(header)).WithDetail(detail)
	}

	if status == 0 {
		return providers.NewUpstreamError(a.config.ID, "provider reported an error", nil).WithDetail(detail)
	}
	return providers.StatusError(a.config.ID, status, header, body.Message)
}
