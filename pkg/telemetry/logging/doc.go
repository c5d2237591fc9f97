// Package logging configures log/slog for the proxy.
//
// # Overview
//
// New builds a JSON or text handler whose ReplaceAttr runs every attribute
// through a Redactor, and wraps it in a handler that adds request-scoped
// fields (request_id, caller, provider) from the context. The result is
// installed with slog.SetDefault, so package-level slog calls are redacted
// too.
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger.Logger)
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "request received", "api_key", key) // api_key=[REDACTED]
//
// # Redaction
//
// Attributes with sensitive keys (api_key, authorization, token, secret,
// password) are replaced entirely. Any other string value is scrubbed of
// vendor key shapes: sk-..., sk-ant-..., gsk_..., AIza..., bearer tokens
// and key= query parameters.
//
// # Levels
//
// The level lives in a slog.LevelVar, so SetLevel changes it at runtime
// without rebuilding the handler. The config watcher uses this for hot
// reload.
package logging
