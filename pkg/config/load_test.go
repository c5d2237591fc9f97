package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conduit.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9090"
  read_timeout: "45s"

providers:
  openai:
    base_url: "http://localhost:9000"
    default_model: "gpt-test"

rate_limit:
  requests: 10
  window: "30s"
  trust_forwarded_for: true

usage:
  backend: "sqlite"
  path: "/tmp/usage.db"
  daily_request_quota: 1000

security:
  blocked_networks: ["10.0.0.0/8"]

telemetry:
  logging:
    level: "debug"
    format: "text"
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9090", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("expected read timeout 45s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Providers["openai"].BaseURL != "http://localhost:9000" {
		t.Errorf("expected openai base_url override, got %+v", cfg.Providers["openai"])
	}
	if cfg.RateLimit.Requests != 10 || cfg.RateLimit.Window != 30*time.Second || !cfg.RateLimit.TrustForwardedFor {
		t.Errorf("unexpected rate limit config: %+v", cfg.RateLimit)
	}
	if !cfg.RateLimit.Enabled {
		t.Error("rate_limit.enabled should keep its default of true")
	}
	if cfg.Usage.Backend != "sqlite" || cfg.Usage.Driver != DefaultUsageDriver {
		t.Errorf("unexpected usage config: %+v", cfg.Usage)
	}
	if cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics should be disabled by the file")
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level %q, got %q", "debug", cfg.Telemetry.Logging.Level)
	}
	if cfg.Upstream.Timeout != DefaultUpstreamTimeout {
		t.Errorf("expected default upstream timeout, got %v", cfg.Upstream.Timeout)
	}
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\") failed: %v", err)
	}
	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("expected default listen address, got %q", cfg.Server.ListenAddress)
	}
	if cfg.RateLimit.Requests != DefaultRateLimitRequests || cfg.RateLimit.Window != DefaultRateLimitWindow {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("empty file should load defaults: %v", err)
	}
	if !cfg.ValidateCache.Enabled {
		t.Error("validate cache should default to enabled")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "invalid yaml",
			content: "server: [unclosed",
			want:    "failed to parse",
		},
		{
			name:    "unknown field",
			content: "server:\n  listen_adress: \"x\"\n",
			want:    "failed to parse",
		},
		{
			name:    "unknown provider",
			content: "providers:\n  mistral:\n    base_url: \"http://x\"\n",
			want:    "providers.mistral",
		},
		{
			name:    "bad window",
			content: "rate_limit:\n  window: \"-1s\"\n",
			want:    "rate_limit.window",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist in chain, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "rate_limit:\n  requests: 10\n")

	t.Setenv("CONDUIT_SERVER_LISTEN_ADDRESS", "127.0.0.1:7070")
	t.Setenv("CONDUIT_RATE_LIMIT_REQUESTS", "5")
	t.Setenv("CONDUIT_RATE_LIMIT_WINDOW", "10s")
	t.Setenv("CONDUIT_PROVIDERS_ANTHROPIC_BASE_URL", "http://127.0.0.1:9999")
	t.Setenv("CONDUIT_SECURITY_BLOCKED_NETWORKS", "192.0.2.0/24, 198.51.100.0/24")
	t.Setenv("CONDUIT_TELEMETRY_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Server.ListenAddress != "127.0.0.1:7070" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.RateLimit.Requests != 5 || cfg.RateLimit.Window != 10*time.Second {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Providers["anthropic"].BaseURL != "http://127.0.0.1:9999" {
		t.Errorf("anthropic override = %+v", cfg.Providers["anthropic"])
	}
	if len(cfg.Security.BlockedNetworks) != 2 || cfg.Security.BlockedNetworks[1] != "198.51.100.0/24" {
		t.Errorf("blocked networks = %v", cfg.Security.BlockedNetworks)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("logging level = %q", cfg.Telemetry.Logging.Level)
	}
	if _, ok := cfg.Providers["openai"]; ok {
		t.Error("providers without overrides should not be added")
	}
}

func TestLoadConfigWithEnvOverrides_InvalidAfterOverride(t *testing.T) {
	t.Setenv("CONDUIT_USAGE_BACKEND", "postgres")

	_, err := LoadConfigWithEnvOverrides("")
	if err == nil || !strings.Contains(err.Error(), "usage.backend") {
		t.Fatalf("expected usage.backend validation error, got %v", err)
	}
}

func TestConfig_ProviderOverrides(t *testing.T) {
	cfg := Default()
	if cfg.ProviderOverrides() != nil {
		t.Error("expected nil overrides for default config")
	}

	cfg.Providers = map[string]ProviderConfig{
		"google": {BaseURL: "http://localhost:1", Timeout: time.Second},
	}
	o := cfg.ProviderOverrides()
	if o["google"].BaseURL != "http://localhost:1" || o["google"].Timeout != time.Second {
		t.Errorf("overrides = %+v", o)
	}
}
