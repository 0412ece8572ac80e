package e2e

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/marmos91/dittomx/pkg/config"
)

// StoreType is the attribute store behind the properties objects
type StoreType string

const (
	StoreMemory StoreType = "memory"
	StoreBadger StoreType = "badger"
)

// TransportType selects which adapter the test clients connect through
type TransportType string

const (
	TransportTCP       TransportType = "tcp"
	TransportWebSocket TransportType = "websocket"
)

// TestConfig holds the configuration for a test run
type TestConfig struct {
	Store     StoreType
	Transport TransportType
}

// String returns a string representation of the configuration
func (tc *TestConfig) String() string {
	return fmt.Sprintf("%s/%s", tc.Store, tc.Transport)
}

// AllConfigs returns every store and transport combination
func AllConfigs() []*TestConfig {
	var configs []*TestConfig
	for _, store := range []StoreType{StoreMemory, StoreBadger} {
		for _, transport := range []TransportType{TransportTCP, TransportWebSocket} {
			configs = append(configs, &TestConfig{Store: store, Transport: transport})
		}
	}
	return configs
}

// ServerConfig builds the server configuration for this run. Both adapters
// are always enabled on ephemeral ports; dataDir holds the badger database.
func (tc *TestConfig) ServerConfig(dataDir, passwordHash string) *config.Config {
	cfg := &config.Config{
		Logging: config.LoggingConfig{Level: "ERROR"},
		Auth: config.AuthConfig{
			Type:  "static",
			Users: []config.UserConfig{{Username: testUser, PasswordHash: passwordHash, Roles: []string{"admin"}}},
		},
		Registry: config.RegistryConfig{
			Store: config.StoreConfig{Type: string(tc.Store)},
			Properties: []config.PropertiesConfig{
				{
					Name: "app",
					Attributes: []config.PropertyConfig{
						{Name: "LogLevel", Default: "info", Writable: true},
						{Name: "MaxWorkers", Default: 8, Writable: true},
						{Name: "Region", Default: "local"},
					},
				},
			},
		},
	}

	if tc.Store == StoreBadger {
		cfg.Registry.Store.Badger = map[string]any{"path": filepath.Join(dataDir, "attributes")}
	}

	cfg.Adapters.MX.Enabled = true
	cfg.Adapters.MX.ListenAddress = "127.0.0.1:0"
	cfg.Adapters.MX.MetricsLogInterval = -1
	cfg.Adapters.MX.ShutdownTimeout = 2 * time.Second
	cfg.Adapters.WebSocket.Enabled = true
	cfg.Adapters.WebSocket.ListenAddress = "127.0.0.1:0"
	cfg.Adapters.WebSocket.ShutdownTimeout = 2 * time.Second
	cfg.Server.ShutdownTimeout = 5 * time.Second

	config.ApplyDefaults(cfg)
	return cfg
}
