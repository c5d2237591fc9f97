package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = 1048576 // 1MB
	DefaultTLSMinVersion   = "1.2"

	// Upstream defaults
	DefaultUpstreamTimeout       = 60 * time.Second
	DefaultStreamIdleTimeout     = 60 * time.Second
	DefaultConnectTimeout        = 10 * time.Second
	DefaultResponseHeaderTimeout = 60 * time.Second
	DefaultMaxIdleConns          = 100
	DefaultMaxIdleConnsPerHost   = 20
	DefaultIdleConnTimeout       = 90 * time.Second

	// Rate limit defaults
	DefaultRateLimitEnabled    = true
	DefaultRateLimitRequests   = 60
	DefaultRateLimitWindow     = time.Minute
	DefaultRateLimitIdleKeyTTL = 10 * time.Minute

	// Usage defaults
	DefaultUsageEnabled       = true
	DefaultUsageBackend       = "memory"
	DefaultUsageDriver        = "sqlite"
	DefaultUsagePath          = "data/usage.db"
	DefaultUsageRetentionDays = 30
	DefaultUsagePruneSchedule = "0 3 * * *"

	// Validate cache defaults
	DefaultValidateCacheEnabled    = true
	DefaultValidateCacheTTL        = 5 * time.Minute
	DefaultValidateCacheMaxEntries = 10000

	// Tokens defaults
	DefaultTokensEstimator     = "tiktoken"
	DefaultTokensCharsPerToken = 4.0
	DefaultTokensLoadTimeout   = 10 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "conduit"
	DefaultMetricsSubsystem   = "proxy"
	DefaultTracingEnabled     = false
	DefaultTracingSampler     = "parent_based"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingServiceName = "conduit"
	DefaultTracingInsecure    = true
)

// Default returns a Config with every field set to its default. YAML is
// decoded on top of it so that boolean settings whose default is true stay
// true unless the file says otherwise.
func Default() *Config {
	cfg := &Config{
		RateLimit: RateLimitConfig{
			Enabled: DefaultRateLimitEnabled,
		},
		Usage: UsageConfig{
			Enabled: DefaultUsageEnabled,
		},
		ValidateCache: ValidateCacheConfig{
			Enabled: DefaultValidateCacheEnabled,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Tracing: TracingConfig{
				Enabled:  DefaultTracingEnabled,
				Insecure: DefaultTracingInsecure,
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}

	// Upstream defaults
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if cfg.Upstream.StreamIdleTimeout == 0 {
		cfg.Upstream.StreamIdleTimeout = DefaultStreamIdleTimeout
	}
	if cfg.Upstream.ConnectTimeout == 0 {
		cfg.Upstream.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Upstream.ResponseHeaderTimeout == 0 {
		cfg.Upstream.ResponseHeaderTimeout = DefaultResponseHeaderTimeout
	}
	if cfg.Upstream.MaxIdleConns == 0 {
		cfg.Upstream.MaxIdleConns = DefaultMaxIdleConns
	}
	if cfg.Upstream.MaxIdleConnsPerHost == 0 {
		cfg.Upstream.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if cfg.Upstream.IdleConnTimeout == 0 {
		cfg.Upstream.IdleConnTimeout = DefaultIdleConnTimeout
	}

	// Rate limit defaults
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = DefaultRateLimitRequests
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = DefaultRateLimitWindow
	}
	if cfg.RateLimit.IdleKeyTTL == 0 {
		cfg.RateLimit.IdleKeyTTL = DefaultRateLimitIdleKeyTTL
	}

	// Usage defaults
	if cfg.Usage.Backend == "" {
		cfg.Usage.Backend = DefaultUsageBackend
	}
	if cfg.Usage.Driver == "" {
		cfg.Usage.Driver = DefaultUsageDriver
	}
	if cfg.Usage.Path == "" {
		cfg.Usage.Path = DefaultUsagePath
	}
	if cfg.Usage.RetentionDays == 0 {
		cfg.Usage.RetentionDays = DefaultUsageRetentionDays
	}
	if cfg.Usage.PruneSchedule == "" {
		cfg.Usage.PruneSchedule = DefaultUsagePruneSchedule
	}

	// Validate cache defaults
	if cfg.ValidateCache.TTL == 0 {
		cfg.ValidateCache.TTL = DefaultValidateCacheTTL
	}
	if cfg.ValidateCache.MaxEntries == 0 {
		cfg.ValidateCache.MaxEntries = DefaultValidateCacheMaxEntries
	}

	applyTokensDefaults(cfg)
	applyTelemetryDefaults(cfg)
}

func applyTokensDefaults(cfg *Config) {
	if cfg.Tokens.Estimator == "" {
		cfg.Tokens.Estimator = DefaultTokensEstimator
	}
	if cfg.Tokens.LoadTimeout == 0 {
		cfg.Tokens.LoadTimeout = DefaultTokensLoadTimeout
	}
	if cfg.Tokens.Models == nil {
		cfg.Tokens.Models = map[string]float64{
			"default": DefaultTokensCharsPerToken,
			"gpt-4":   4.0,
			"claude":  3.5,
			"gemini":  4.0,
			"llama":   3.8,
		}
	}
}

func applyTelemetryDefaults(cfg *Config) {
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}
	}
	if len(cfg.Telemetry.Metrics.TokenCountBuckets) == 0 {
		cfg.Telemetry.Metrics.TokenCountBuckets = []float64{10, 100, 500, 1000, 5000, 10000, 50000}
	}

	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
}
