package config

import "testing"

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Errorf("MaxBodyBytes = %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Upstream.StreamIdleTimeout != DefaultStreamIdleTimeout {
		t.Errorf("StreamIdleTimeout = %v", cfg.Upstream.StreamIdleTimeout)
	}
	if cfg.Usage.PruneSchedule != DefaultUsagePruneSchedule {
		t.Errorf("PruneSchedule = %q", cfg.Usage.PruneSchedule)
	}
	if cfg.Tokens.LoadTimeout != DefaultTokensLoadTimeout {
		t.Errorf("Tokens.LoadTimeout = %v", cfg.Tokens.LoadTimeout)
	}
	if cfg.Tokens.Models["default"] != DefaultTokensCharsPerToken {
		t.Errorf("Tokens.Models = %v", cfg.Tokens.Models)
	}
	if cfg.Telemetry.Metrics.Namespace != DefaultMetricsNamespace {
		t.Errorf("Metrics.Namespace = %q", cfg.Telemetry.Metrics.Namespace)
	}

	// Zero-valued booleans are left alone; Default() owns them.
	if cfg.RateLimit.Enabled {
		t.Error("ApplyDefaults should not flip booleans")
	}
}

func TestApplyDefaults_PreservesValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.ListenAddress = "0.0.0.0:1"
	cfg.RateLimit.Requests = 3
	cfg.Tokens.Models = map[string]float64{"x": 2}

	ApplyDefaults(cfg)
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != "0.0.0.0:1" || cfg.RateLimit.Requests != 3 {
		t.Errorf("values overwritten: %+v %+v", cfg.Server, cfg.RateLimit)
	}
	if len(cfg.Tokens.Models) != 1 {
		t.Errorf("models overwritten: %v", cfg.Tokens.Models)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if !cfg.RateLimit.Enabled || !cfg.Usage.Enabled || !cfg.ValidateCache.Enabled || !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected default-on features to be enabled")
	}
	if cfg.Telemetry.Tracing.Enabled {
		t.Error("tracing should default to disabled")
	}
	if cfg.Usage.DailyRequestQuota != 0 {
		t.Error("daily quota should default to off")
	}
}
