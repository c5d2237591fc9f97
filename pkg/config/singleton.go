package config

import (
	"fmt"
	"sync"
)

var (
	// globalConfig holds the singleton configuration instance.
	globalConfig *Config

	// configMutex protects access to globalConfig.
	configMutex sync.RWMutex

	// initOnce ensures configuration is initialized only once.
	initOnce sync.Once

	// overrides run after file and environment on every load and reload.
	overrides []Override
)

// Override adjusts a loaded configuration. Command-line flags are applied
// this way so that they survive hot reloads.
type Override func(*Config)

// SetOverrides registers fns to run, in order, on every configuration that
// Initialize or ReloadConfig loads. It replaces earlier registrations.
func SetOverrides(fns ...Override) {
	configMutex.Lock()
	defer configMutex.Unlock()
	overrides = fns
}

// load reads path with environment and registered overrides applied.
func load(path string) (*Config, error) {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, err
	}

	configMutex.RLock()
	fns := overrides
	configMutex.RUnlock()
	if len(fns) == 0 {
		return cfg, nil
	}

	for _, fn := range fns {
		fn(cfg)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after overrides: %w", err)
	}
	return cfg, nil
}

// Initialize loads configuration from the specified path with environment
// variable and registered overrides and stores it as the global singleton
// configuration. Subsequent calls are ignored.
func Initialize(path string) error {
	var initErr error

	initOnce.Do(func() {
		cfg, err := load(path)
		if err != nil {
			initErr = err
			return
		}

		configMutex.Lock()
		globalConfig = cfg
		configMutex.Unlock()
	})

	return initErr
}

// GetConfig returns the global configuration instance, or nil if Initialize
// has not been called successfully.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// ReloadConfig reloads the configuration from the specified path. The new
// configuration replaces the global instance only if loading and validation
// succeed.
func ReloadConfig(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}

	configMutex.Lock()
	globalConfig = cfg
	configMutex.Unlock()

	return cfg, nil
}
