package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittomx/pkg/adapter/mx"
	"github.com/marmos91/dittomx/pkg/adapter/ws"
	"github.com/spf13/viper"
)

// Config represents the complete DittoMX configuration.
//
// This structure captures all configurable aspects of the DittoMX server:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics endpoint)
//   - Authentication of Logon requests
//   - Registry contents and attribute persistence
//   - Protocol adapter configurations
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOMX_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Auth selects how Logon credentials are checked
	Auth AuthConfig `mapstructure:"auth"`

	// Registry configures the managed objects exposed to clients
	Registry RegistryConfig `mapstructure:"registry"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig configures the metrics HTTP server.
type MetricsConfig struct {
	// Enabled starts the /metrics endpoint and Prometheus collectors
	Enabled bool `mapstructure:"enabled"`

	// Port is the HTTP port of the metrics server
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// AuthConfig selects the authenticator.
type AuthConfig struct {
	// Type is the authenticator implementation
	// Valid values: static (bcrypt users below), none (every Logon succeeds)
	Type string `mapstructure:"type" validate:"required,oneof=static none"`

	// Users are the accounts of the static authenticator
	Users []UserConfig `mapstructure:"users" validate:"dive"`
}

// UserConfig is one static account.
type UserConfig struct {
	// Username is the Logon user name
	Username string `mapstructure:"username" validate:"required"`

	// PasswordHash is a bcrypt hash (see "dittomx hash-password")
	PasswordHash string `mapstructure:"password_hash" validate:"required"`

	// Roles are attached to the identity of the connection
	Roles []string `mapstructure:"roles"`
}

// RegistryConfig configures the registry.
type RegistryConfig struct {
	// Store persists writable property values
	Store StoreConfig `mapstructure:"store"`

	// Properties defines dittomx:type=Properties,name=<name> objects
	Properties []PropertiesConfig `mapstructure:"properties" validate:"dive"`
}

// StoreConfig specifies the attribute store.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type StoreConfig struct {
	// Type specifies which attribute store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// PropertiesConfig defines one properties object.
type PropertiesConfig struct {
	// Name is the value of the name key of the object name
	Name string `mapstructure:"name" validate:"required"`

	// Attributes are the properties of the object
	Attributes []PropertyConfig `mapstructure:"attributes" validate:"required,min=1,dive"`
}

// PropertyConfig defines one property.
type PropertyConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Default     any    `mapstructure:"default"`
	Writable    bool   `mapstructure:"writable"`
	Description string `mapstructure:"description"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// MX is the TCP adapter.
	// Uses the mx.MXConfig type directly to avoid duplication.
	MX mx.MXConfig `mapstructure:"mx"`

	// WebSocket serves the same protocol over WebSocket.
	WebSocket ws.WSConfig `mapstructure:"websocket"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOMX_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DITTOMX_ prefix and underscores
	// Example: DITTOMX_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOMX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittomx/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittomx")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittomx")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
