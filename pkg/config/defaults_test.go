package config

import (
	"testing"
	"time"

	"github.com/marmos91/dittomx/pkg/adapter/mx"
	"github.com/marmos91/dittomx/pkg/adapter/ws"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_NormalizesLogLevel(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Server.Metrics.Port)
	}
	if cfg.Server.Metrics.Enabled {
		t.Error("Expected metrics to stay disabled by default")
	}
}

func TestApplyDefaults_Auth(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Auth.Type != "none" {
		t.Errorf("Expected auth type 'none' without users, got %q", cfg.Auth.Type)
	}

	cfg = &Config{Auth: AuthConfig{Users: []UserConfig{{Username: "admin", PasswordHash: "x"}}}}
	ApplyDefaults(cfg)
	if cfg.Auth.Type != "static" {
		t.Errorf("Expected auth type 'static' with users, got %q", cfg.Auth.Type)
	}
	if cfg.Auth.Users[0].Roles == nil {
		t.Error("Expected roles to be initialized")
	}
}

func TestApplyDefaults_Registry(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Registry.Store.Type != "memory" {
		t.Errorf("Expected default store type 'memory', got %q", cfg.Registry.Store.Type)
	}
	if cfg.Registry.Store.Badger["path"] != "/tmp/dittomx-attributes" {
		t.Errorf("Expected default badger path, got %v", cfg.Registry.Store.Badger["path"])
	}

	cfg = &Config{Registry: RegistryConfig{Store: StoreConfig{
		Type:   "badger",
		Badger: map[string]any{"path": "/data/attrs"},
	}}}
	ApplyDefaults(cfg)
	if cfg.Registry.Store.Badger["path"] != "/data/attrs" {
		t.Errorf("Expected explicit badger path preserved, got %v", cfg.Registry.Store.Badger["path"])
	}
}

func TestApplyDefaults_MX(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	mxCfg := cfg.Adapters.MX
	if !mxCfg.Enabled {
		t.Error("Expected MX adapter enabled when no adapter is configured")
	}
	if mxCfg.Port != mx.DefaultPort {
		t.Errorf("Expected default port %d, got %d", mx.DefaultPort, mxCfg.Port)
	}
	if mxCfg.IdleTimeout != 0 {
		t.Errorf("Expected idle timeout to stay disabled, got %v", mxCfg.IdleTimeout)
	}
	if mxCfg.WriteTimeout != 30*time.Second {
		t.Errorf("Expected default write timeout 30s, got %v", mxCfg.WriteTimeout)
	}
	if mxCfg.MetricsLogInterval != 5*time.Minute {
		t.Errorf("Expected default metrics log interval 5m, got %v", mxCfg.MetricsLogInterval)
	}
	if mxCfg.MaxFrameSize != 16<<20 {
		t.Errorf("Expected default max frame size 16MiB, got %d", mxCfg.MaxFrameSize)
	}
}

func TestApplyDefaults_MXExplicitlyDisabled(t *testing.T) {
	// An explicit port marks the section as configured
	cfg := &Config{Adapters: AdaptersConfig{MX: mx.MXConfig{Enabled: false, Port: 7091}}}
	ApplyDefaults(cfg)
	if cfg.Adapters.MX.Enabled {
		t.Error("Expected configured MX adapter to stay disabled")
	}

	cfg = &Config{Adapters: AdaptersConfig{WebSocket: ws.WSConfig{Enabled: true}}}
	ApplyDefaults(cfg)
	if cfg.Adapters.MX.Enabled {
		t.Error("Expected MX adapter to stay disabled when WebSocket is enabled")
	}
}

func TestApplyDefaults_WebSocket(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	wsCfg := cfg.Adapters.WebSocket
	if wsCfg.Port != ws.DefaultPort {
		t.Errorf("Expected default port %d, got %d", ws.DefaultPort, wsCfg.Port)
	}
	if wsCfg.Path != "/mx" {
		t.Errorf("Expected default path '/mx', got %q", wsCfg.Path)
	}
	if wsCfg.AllowedOrigins == nil {
		t.Error("Expected allowed origins to be initialized")
	}
	if wsCfg.MaxFrameSize != 16<<20 {
		t.Errorf("Expected default max frame size 16MiB, got %d", wsCfg.MaxFrameSize)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "WARN", Format: "json", Output: "/var/log/dittomx.log"},
		Server:  ServerConfig{ShutdownTimeout: 5 * time.Second},
		Adapters: AdaptersConfig{
			MX: mx.MXConfig{Enabled: true, Port: 9000, WriteTimeout: time.Second, MaxFrameSize: 1024},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Format != "json" || cfg.Logging.Output != "/var/log/dittomx.log" {
		t.Errorf("Logging values overwritten: %+v", cfg.Logging)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown_timeout 5s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Adapters.MX.Port != 9000 || cfg.Adapters.MX.WriteTimeout != time.Second || cfg.Adapters.MX.MaxFrameSize != 1024 {
		t.Errorf("MX values overwritten: %+v", cfg.Adapters.MX)
	}
}
