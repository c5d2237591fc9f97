package config

import "time"

// Config is the root configuration structure for Conduit.
type Config struct {
	// Server contains HTTP listener configuration.
	Server ServerConfig `yaml:"server"`

	// Providers overrides built-in provider entries, keyed by provider id.
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Upstream contains settings for outbound calls to vendors.
	Upstream UpstreamConfig `yaml:"upstream"`

	// RateLimit configures the per-caller sliding window limiter.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Usage configures usage accounting and the optional daily quota.
	Usage UsageConfig `yaml:"usage"`

	// Security contains caller-level access controls.
	Security SecurityConfig `yaml:"security"`

	// ValidateCache configures caching of /validate verdicts.
	ValidateCache ValidateCacheConfig `yaml:"validate_cache"`

	// Tokens configures token estimation for responses without usage.
	Tokens TokensConfig `yaml:"tokens"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading the whole request including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a buffered response. Streaming responses
	// clear the write deadline.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits request body size.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// TLS terminates HTTPS on the listener itself.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures HTTPS on the listener. The certificate and key are
// reloaded when either file changes.
type TLSConfig struct {
	// Enabled serves HTTPS instead of plain HTTP.
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM certificate chain, leaf first.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`
}

// ProviderConfig overrides a built-in provider entry.
type ProviderConfig struct {
	// BaseURL replaces the vendor base URL, e.g. for a self-hosted gateway.
	BaseURL string `yaml:"base_url"`

	// DefaultModel replaces the model used by /validate probes.
	DefaultModel string `yaml:"default_model"`

	// Timeout replaces upstream.timeout for this provider.
	Timeout time.Duration `yaml:"timeout"`
}

// UpstreamConfig contains settings for outbound vendor calls.
type UpstreamConfig struct {
	// Timeout bounds a buffered call from send to full body.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// StreamIdleTimeout cuts a stream that has been silent this long.
	// Default: 60s
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout"`

	// ConnectTimeout bounds TCP connect.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ResponseHeaderTimeout bounds the wait for response headers.
	// Default: 60s
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`

	// MaxIdleConns is the pool size across all vendors.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost is the pool size per vendor host.
	// Default: 20
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout closes pooled connections after this long.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// RateLimitConfig configures the abuse limiter.
type RateLimitConfig struct {
	// Enabled turns the limiter on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Requests is the number of requests allowed per window per caller.
	// Default: 60
	Requests int `yaml:"requests"`

	// Window is the sliding window length.
	// Default: 1m
	Window time.Duration `yaml:"window"`

	// TrustForwardedFor uses the first X-Forwarded-For hop as the caller
	// address. Only enable behind a trusted reverse proxy.
	// Default: false
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`

	// IdleKeyTTL is how long an idle caller's window is kept.
	// Default: 10m
	IdleKeyTTL time.Duration `yaml:"idle_key_ttl"`
}

// UsageConfig configures usage accounting.
type UsageConfig struct {
	// Enabled turns usage recording on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the store: "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Driver is the database/sql driver for the sqlite backend:
	// "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the database file for the sqlite backend.
	// Default: "data/usage.db"
	Path string `yaml:"path"`

	// DailyRequestQuota caps requests per caller per UTC day. Zero disables it.
	// Default: 0
	DailyRequestQuota int `yaml:"daily_request_quota"`

	// RetentionDays is how many days of usage rows are kept.
	// Default: 30
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is the cron expression for maintenance.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// SecurityConfig contains caller-level access controls.
type SecurityConfig struct {
	// AdminTokens are bearer tokens that grant the admin role.
	AdminTokens []string `yaml:"admin_tokens"`

	// BlockedNetworks are CIDRs whose callers get 403.
	BlockedNetworks []string `yaml:"blocked_networks"`
}

// ValidateCacheConfig configures the /validate verdict cache.
type ValidateCacheConfig struct {
	// Enabled turns the cache on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// TTL is how long a verdict is served from cache.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries bounds the number of cached verdicts.
	// Default: 10000
	MaxEntries int64 `yaml:"max_entries"`
}

// TokensConfig contains token estimation configuration.
type TokensConfig struct {
	// Estimator is the token estimator type (simple, tiktoken).
	// Default: "tiktoken"
	Estimator string `yaml:"estimator"`

	// Models contains model-specific characters-per-token ratios used by
	// the simple estimator and as the tiktoken fallback.
	Models map[string]float64 `yaml:"models"`

	// LoadTimeout bounds loading tiktoken encodings at startup. Requests
	// served before the encodings load use the character estimate.
	// Default: 10s
	LoadTimeout time.Duration `yaml:"load_timeout"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "conduit"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "proxy"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets defines histogram buckets in seconds.
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`

	// TokenCountBuckets defines histogram buckets for token counts.
	TokenCountBuckets []float64 `yaml:"token_count_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio", "parent_based"
	// Default: "parent_based"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "conduit"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`
}
