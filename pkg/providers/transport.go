package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// maxResponseBytes bounds a buffered vendor response body.
const maxResponseBytes = 16 << 20

// TransportConfig tunes the shared connection pool.
type TransportConfig struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultTransportConfig returns pool settings suitable for a proxy that
// talks to a handful of vendor hosts.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
}

// Transport performs single-shot HTTP calls to vendors over a pooled client.
// There is no retry loop: one call to Do is one outbound request.
type Transport struct {
	client *http.Client
}

// NewTransport creates a Transport with connection pooling. The client has
// no overall timeout; callers bound each call through its context so that
// long-lived streams are not cut mid-response.
func NewTransport(cfg TransportConfig) *Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}

	return &Transport{client: &http.Client{Transport: transport}}
}

// NewTransportWithClient wraps an existing client, typically an httptest
// server's client in tests.
func NewTransportWithClient(client *http.Client) *Transport {
	return &Transport{client: client}
}

// Do sends ureq and returns the raw response. Any failure before a response
// is received is a TRANSPORT_ERROR whose message never contains the request
// URL, since some vendors carry the key in the query string.
func (t *Transport) Do(ctx context.Context, provider string, ureq *UpstreamRequest) (*http.Response, error) {
	var body io.Reader
	if ureq.Body != nil {
		body = bytes.NewReader(ureq.Body)
	}

	req, err := http.NewRequestWithContext(ctx, ureq.Method, ureq.URL, body)
	if err != nil {
		return nil, NewTransportError(provider, "failed to create provider request", unwrapURLError(err))
	}

	for key, value := range ureq.Header {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && ureq.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.DebugContext(ctx, "sending request to provider",
		"provider", provider,
		"method", ureq.Method,
		"body_bytes", len(ureq.Body),
	)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, provider, err)
	}
	return resp, nil
}

// ReadBody drains and closes resp.Body, bounded by maxResponseBytes.
func ReadBody(provider string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewTransportError(provider, "failed to read provider response", unwrapURLError(err))
	}
	return data, nil
}

// CloseIdleConnections releases pooled connections.
func (t *Transport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

func classifyTransportError(ctx context.Context, provider string, err error) *ProxyError {
	cause := unwrapURLError(err)

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return NewTransportError(provider, "provider request timed out", cause)
	case errors.Is(ctx.Err(), context.Canceled):
		return NewTransportError(provider, "request cancelled", cause)
	}

	var netErr net.Error
	if errors.As(cause, &netErr) && netErr.Timeout() {
		return NewTransportError(provider, "provider request timed out", cause)
	}

	return NewTransportError(provider, fmt.Sprintf("provider %s unreachable", provider), cause)
}

// unwrapURLError strips *url.Error, whose message embeds the full URL.
func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
