package keycheck

import (
	"context"
	"log/slog"

	"mercator-hq/conduit/pkg/providers"
)

// Messages returned to callers in Result.Error.
const (
	MsgInvalidFormat = "Invalid API key format"
	MsgRejected      = "API key rejected by provider"
	MsgUnverifiable  = "could not verify API key"
)

// Result is the /validate response body.
type Result struct {
	Valid     bool   `json:"valid"`
	Provider  string `json:"provider"`
	Throttled bool   `json:"throttled,omitempty"`
	Error     string `json:"error,omitempty"`

	// Cached reports that the verdict came from the cache.
	Cached bool `json:"-"`
}

// Executor performs a single non-streaming upstream call.
type Executor interface {
	ExecuteAIRequest(ctx context.Context, req *providers.ProxyRequest) (*providers.UnifiedResponse, error)
}

// Checker validates keys against the registry and, when needed, the vendor.
type Checker struct {
	registry *providers.Registry
	exec     Executor
	cache    *Cache
	logger   *slog.Logger
}

// NewChecker creates a checker. cache may be nil to disable caching.
func NewChecker(registry *providers.Registry, exec Executor, cache *Cache) *Checker {
	return &Checker{
		registry: registry,
		exec:     exec,
		cache:    cache,
		logger:   slog.Default().With("component", "keycheck"),
	}
}

// Check validates apiKey for provider. Malformed input (missing fields or an
// unknown provider) is returned as a *providers.ProxyError; every other
// outcome is a Result.
func (c *Checker) Check(ctx context.Context, provider, apiKey string) (Result, error) {
	if provider == "" {
		return Result{}, providers.NewInvalidRequest("provider is required")
	}
	if !c.registry.IsSupportedProvider(provider) {
		return Result{}, providers.NewUnknownProvider(provider)
	}
	if apiKey == "" {
		return Result{}, providers.NewInvalidRequest("apiKey is required")
	}

	if !c.registry.ValidateAPIKeyFormat(provider, apiKey) {
		return Result{Valid: false, Provider: provider, Error: MsgInvalidFormat}, nil
	}

	if c.cache != nil {
		if r, ok := c.cache.Get(provider, apiKey); ok {
			r.Cached = true
			return r, nil
		}
	}

	maxTokens := 1
	_, err := c.exec.ExecuteAIRequest(ctx, &providers.ProxyRequest{
		Provider:  provider,
		Model:     c.registry.GetDefaultModel(provider),
		Messages:  []providers.Message{{Role: providers.RoleUser, Content: "Hi"}},
		APIKey:    apiKey,
		MaxTokens: &maxTokens,
	})

	result, cacheable := classify(provider, err)
	if !result.Valid && !result.Throttled && !cacheable {
		c.logger.Warn("key verification inconclusive",
			"provider", provider,
			"error", providers.AsProxyError(err).Code,
		)
	}

	if cacheable && c.cache != nil {
		c.cache.Set(provider, apiKey, result)
	}
	return result, nil
}

// classify maps the probe outcome to a verdict and whether it may be cached.
func classify(provider string, err error) (Result, bool) {
	if err == nil {
		return Result{Valid: true, Provider: provider}, true
	}

	perr := providers.AsProxyError(err)
	switch perr.Code {
	case providers.CodeInvalidAPIKey:
		return Result{Valid: false, Provider: provider, Error: MsgRejected}, true
	case providers.CodeRateLimitExceeded:
		return Result{Valid: true, Provider: provider, Throttled: true}, false
	default:
		return Result{Valid: false, Provider: provider, Error: MsgUnverifiable + ": " + perr.Message}, false
	}
}
