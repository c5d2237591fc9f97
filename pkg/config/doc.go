// Package config provides configuration management for Conduit.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. Every tunable the proxy
// has (quota, window, timeouts, body limits) lives here with a development
// default.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfigWithEnvOverrides("conduit.yaml")
//
// An empty path loads the defaults, still subject to environment overrides.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CONDUIT_SECTION_FIELD.
// For example:
//
//   - CONDUIT_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - CONDUIT_RATE_LIMIT_REQUESTS overrides rate_limit.requests
//   - CONDUIT_PROVIDERS_OPENAI_BASE_URL overrides providers.openai.base_url
//   - CONDUIT_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// Watcher observes the configuration file and, after a debounce interval,
// reloads it and hands the new Config to subscribers. Only settings that
// are safe to change at runtime are consumed this way (rate limit quota and
// window, log level); everything else requires a restart.
//
// # Example Configuration
//
//	server:
//	  listen_address: "127.0.0.1:8080"
//
//	rate_limit:
//	  requests: 60
//	  window: "1m"
//
//	providers:
//	  openai:
//	    base_url: "http://localhost:9000"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
