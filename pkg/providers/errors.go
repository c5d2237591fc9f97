package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Code classifies a ProxyError. Callers branch on the code or, equivalently,
// on the HTTP status it maps to.
type Code string

const (
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeUnknownProvider   Code = "UNKNOWN_PROVIDER"
	CodeInvalidAPIKey     Code = "INVALID_API_KEY"
	CodeForbidden         Code = "FORBIDDEN"
	CodeMethodNotAllowed  Code = "METHOD_NOT_ALLOWED"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeUpstreamError     Code = "UPSTREAM_ERROR"
	CodeTransportError    Code = "TRANSPORT_ERROR"
	CodeUnknownError      Code = "UNKNOWN_ERROR"
)

// HTTPStatus returns the status code documented for c.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidRequest, CodeUnknownProvider:
		return http.StatusBadRequest
	case CodeInvalidAPIKey:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeUpstreamError:
		return http.StatusBadGateway
	case CodeTransportError:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ProxyError is the single error type that crosses the proxy boundary.
// Message is always safe to show to the caller. ProviderDetail carries the
// vendor's own message after secrets have been scrubbed from it.
type ProxyError struct {
	Code           Code
	Message        string
	StatusCode     int
	ProviderDetail string

	// Provider is the vendor id the error relates to, if any.
	Provider string

	// RetryAfter is a hint for RATE_LIMIT_EXCEEDED; zero when unknown.
	RetryAfter time.Duration

	// Cause is kept for logs and errors.Is; it is never serialized.
	Cause error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: provider %q: %s", e.Code, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// NewError creates a ProxyError whose status follows code.
func NewError(code Code, message string) *ProxyError {
	return &ProxyError{
		Code:       code,
		Message:    message,
		StatusCode: code.HTTPStatus(),
	}
}

// NewInvalidRequest reports a malformed or incomplete request.
func NewInvalidRequest(format string, args ...any) *ProxyError {
	return NewError(CodeInvalidRequest, fmt.Sprintf(format, args...))
}

// NewUnknownProvider reports a provider id missing from the registry.
func NewUnknownProvider(id string) *ProxyError {
	e := NewError(CodeUnknownProvider, fmt.Sprintf("unsupported provider: %s", id))
	e.Provider = id
	return e
}

// NewInvalidAPIKey reports credentials rejected locally or by the vendor.
func NewInvalidAPIKey(provider, message string) *ProxyError {
	e := NewError(CodeInvalidAPIKey, message)
	e.Provider = provider
	return e
}

// NewRateLimited reports an exhausted quota. retryAfter may be zero.
func NewRateLimited(provider, message string, retryAfter time.Duration) *ProxyError {
	e := NewError(CodeRateLimitExceeded, message)
	e.Provider = provider
	e.RetryAfter = retryAfter
	return e
}

// NewUpstreamError reports a vendor failure that is neither auth nor rate limit.
func NewUpstreamError(provider, message string, cause error) *ProxyError {
	e := NewError(CodeUpstreamError, message)
	e.Provider = provider
	e.Cause = cause
	return e
}

// NewTransportError reports a network failure or timeout talking to a vendor.
func NewTransportError(provider, message string, cause error) *ProxyError {
	e := NewError(CodeTransportError, message)
	e.Provider = provider
	e.Cause = cause
	return e
}

// WithDetail attaches a scrubbed vendor message.
func (e *ProxyError) WithDetail(detail string) *ProxyError {
	e.ProviderDetail = detail
	return e
}

// AsProxyError classifies err into the taxonomy. A *ProxyError anywhere in
// the chain is returned as is; deadline and cancellation errors become
// TRANSPORT_ERROR; everything else becomes UNKNOWN_ERROR with a generic
// message.
func AsProxyError(err error) *ProxyError {
	if err == nil {
		return nil
	}

	var perr *ProxyError
	if errors.As(err, &perr) {
		return perr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransportError("", "provider request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewTransportError("", "request cancelled", err)
	}

	e := NewError(CodeUnknownError, "An internal error occurred")
	e.Cause = err
	return e
}

// IsCode reports whether err classifies as code.
func IsCode(err error, code Code) bool {
	var perr *ProxyError
	return errors.As(err, &perr) && perr.Code == code
}

// ConfigError represents a problem with a provider configuration override.
type ConfigError struct {
	Provider string
	Field    string
	Message  string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q config error in field %q: %s", e.Provider, e.Field, e.Message)
}

// StatusError applies the mapping shared by every vendor: 401 and 403 are
// credential failures, 429 is a vendor rate limit, and every other non-2xx
// status is a generic upstream failure. detail is the vendor's own message.
func StatusError(provider string, status int, header http.Header, detail string) *ProxyError {
	var e *ProxyError
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		e = NewInvalidAPIKey(provider, "API key rejected by provider")
	case http.StatusTooManyRequests:
		e = NewRateLimited(provider, "provider rate limit exceeded", ParseRetryAfter(header))
	default:
		e = NewUpstreamError(provider, fmt.Sprintf("provider returned status %d", status), nil)
	}
	return e.WithDetail(Detail(detail))
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. It returns zero when the header is absent or unparseable.
func ParseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
