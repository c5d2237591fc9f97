package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/conduit/pkg/providers"
)

// envPrefix is the prefix of every environment override.
const envPrefix = "CONDUIT_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}

		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CONDUIT_SECTION_FIELD and always take precedence over the file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envInt("SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)
	envInt64("SERVER_MAX_BODY_BYTES", &cfg.Server.MaxBodyBytes)
	envBool("SERVER_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	envString("SERVER_TLS_CERT_FILE", &cfg.Server.TLS.CertFile)
	envString("SERVER_TLS_KEY_FILE", &cfg.Server.TLS.KeyFile)
	envString("SERVER_TLS_MIN_VERSION", &cfg.Server.TLS.MinVersion)

	// Provider overrides, one set per built-in provider
	for _, id := range providers.DefaultRegistry().Providers() {
		applyProviderEnvOverrides(cfg, id)
	}

	// Upstream overrides
	envDuration("UPSTREAM_TIMEOUT", &cfg.Upstream.Timeout)
	envDuration("UPSTREAM_STREAM_IDLE_TIMEOUT", &cfg.Upstream.StreamIdleTimeout)
	envDuration("UPSTREAM_CONNECT_TIMEOUT", &cfg.Upstream.ConnectTimeout)
	envDuration("UPSTREAM_RESPONSE_HEADER_TIMEOUT", &cfg.Upstream.ResponseHeaderTimeout)

	// Rate limit overrides
	envBool("RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	envInt("RATE_LIMIT_REQUESTS", &cfg.RateLimit.Requests)
	envDuration("RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)
	envBool("RATE_LIMIT_TRUST_FORWARDED_FOR", &cfg.RateLimit.TrustForwardedFor)

	// Usage overrides
	envBool("USAGE_ENABLED", &cfg.Usage.Enabled)
	envString("USAGE_BACKEND", &cfg.Usage.Backend)
	envString("USAGE_DRIVER", &cfg.Usage.Driver)
	envString("USAGE_PATH", &cfg.Usage.Path)
	envInt("USAGE_DAILY_REQUEST_QUOTA", &cfg.Usage.DailyRequestQuota)
	envInt("USAGE_RETENTION_DAYS", &cfg.Usage.RetentionDays)

	// Security overrides
	if val := os.Getenv(envPrefix + "SECURITY_ADMIN_TOKENS"); val != "" {
		cfg.Security.AdminTokens = splitList(val)
	}
	if val := os.Getenv(envPrefix + "SECURITY_BLOCKED_NETWORKS"); val != "" {
		cfg.Security.BlockedNetworks = splitList(val)
	}

	// Validate cache overrides
	envBool("VALIDATE_CACHE_ENABLED", &cfg.ValidateCache.Enabled)
	envDuration("VALIDATE_CACHE_TTL", &cfg.ValidateCache.TTL)

	// Tokens overrides
	envString("TOKENS_ESTIMATOR", &cfg.Tokens.Estimator)
	envDuration("TOKENS_LOAD_TIMEOUT", &cfg.Tokens.LoadTimeout)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
}

// applyProviderEnvOverrides applies CONDUIT_PROVIDERS_<ID>_* overrides.
func applyProviderEnvOverrides(cfg *Config, id string) {
	prefix := "PROVIDERS_" + strings.ToUpper(id) + "_"

	p := cfg.Providers[id]
	before := p

	envString(prefix+"BASE_URL", &p.BaseURL)
	envString(prefix+"DEFAULT_MODEL", &p.DefaultModel)
	envDuration(prefix+"TIMEOUT", &p.Timeout)

	if p != before {
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]ProviderConfig)
		}
		cfg.Providers[id] = p
	}
}

func envString(key string, dst *string) {
	if val := os.Getenv(envPrefix + key); val != "" {
		*dst = val
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(envPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(envPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envInt64(key string, dst *int64) {
	if val := os.Getenv(envPrefix + key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(envPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

// splitList splits a comma separated value, dropping empty items.
func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ProviderOverrides converts the providers section into registry overrides.
func (c *Config) ProviderOverrides() map[string]providers.Override {
	if len(c.Providers) == 0 {
		return nil
	}
	out := make(map[string]providers.Override, len(c.Providers))
	for id, p := range c.Providers {
		out[id] = providers.Override{
			BaseURL:      p.BaseURL,
			DefaultModel: p.DefaultModel,
			Timeout:      p.Timeout,
		}
	}
	return out
}
