package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittomx/pkg/adapter/mx"
	"github.com/marmos91/dittomx/pkg/adapter/ws"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyAuthDefaults(&cfg.Auth)
	applyRegistryDefaults(&cfg.Registry)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applyAuthDefaults sets authentication defaults.
func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.Type == "" {
		if len(cfg.Users) > 0 {
			cfg.Type = "static"
		} else {
			cfg.Type = "none"
		}
	}
	for i := range cfg.Users {
		if cfg.Users[i].Roles == nil {
			cfg.Users[i].Roles = []string{}
		}
	}
}

// applyRegistryDefaults sets registry defaults.
func applyRegistryDefaults(cfg *RegistryConfig) {
	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if cfg.Store.Badger == nil {
		cfg.Store.Badger = make(map[string]any)
	}
	if _, ok := cfg.Store.Badger["path"]; !ok {
		cfg.Store.Badger["path"] = "/tmp/dittomx-attributes"
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// Enable the MX adapter by default if no adapters are configured.
	// This ensures that a freshly loaded config (with no config file) has
	// at least one adapter enabled and passes validation.
	// Users can explicitly set enabled: false in their config to disable it.
	if !cfg.MX.Enabled && !cfg.WebSocket.Enabled && cfg.MX.Port == 0 {
		cfg.MX.Enabled = true
	}

	applyMXDefaults(&cfg.MX)
	applyWebSocketDefaults(&cfg.WebSocket)
}

// applyMXDefaults sets TCP adapter defaults.
func applyMXDefaults(cfg *mx.MXConfig) {
	// MaxConnections defaults to 0 (unlimited)
	// IdleTimeout defaults to 0: clients idle while waiting for notifications

	if cfg.Port == 0 {
		cfg.Port = mx.DefaultPort
	}

	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}

	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = 16 << 20
	}
}

// applyWebSocketDefaults sets WebSocket adapter defaults.
func applyWebSocketDefaults(cfg *ws.WSConfig) {
	if cfg.Port == 0 {
		cfg.Port = ws.DefaultPort
	}

	if cfg.Path == "" {
		cfg.Path = "/mx"
	}

	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = 16 << 20
	}

	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{}
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
//
// The sample includes a writable "app" properties object so a fresh server
// has something to manage.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Registry: RegistryConfig{
			Properties: []PropertiesConfig{
				{
					Name: "app",
					Attributes: []PropertyConfig{
						{Name: "LogLevel", Default: "info", Writable: true, Description: "Application log level"},
						{Name: "MaintenanceMode", Default: false, Writable: true, Description: "Reject new work while true"},
						{Name: "Region", Default: "local", Description: "Deployment region"},
					},
				},
			},
		},
		Adapters: AdaptersConfig{
			MX: mx.MXConfig{
				Enabled: true, // TCP adapter enabled by default
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
