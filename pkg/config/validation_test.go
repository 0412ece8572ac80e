package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := GetDefaultConfig()
	return cfg
}

func TestValidate_DefaultConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Default config should be valid, got: %v", err)
	}
}

func TestValidate_Logging(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "TRACE"
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for invalid log level")
	}

	cfg = validConfig()
	cfg.Logging.Format = "xml"
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for invalid log format")
	}

	cfg = validConfig()
	cfg.Logging.Level = "debug"
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected lowercase level to be accepted, got: %v", err)
	}
}

func TestValidate_ShutdownTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ShutdownTimeout = 0
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for zero shutdown timeout")
	}

	cfg = validConfig()
	cfg.Server.ShutdownTimeout = -time.Second
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for negative shutdown timeout")
	}
}

func TestValidate_Adapters(t *testing.T) {
	cfg := validConfig()
	cfg.Adapters.MX.Enabled = false
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "at least one adapter") {
		t.Errorf("Expected 'at least one adapter' error, got: %v", err)
	}

	cfg = validConfig()
	cfg.Adapters.WebSocket.Enabled = true
	cfg.Adapters.WebSocket.Port = cfg.Adapters.MX.Port
	err = Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "cannot share port") {
		t.Errorf("Expected port conflict error, got: %v", err)
	}

	cfg = validConfig()
	cfg.Adapters.MX.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for out of range port")
	}
}

func TestValidate_Auth(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Type = "ldap"
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for unknown auth type")
	}

	cfg = validConfig()
	cfg.Auth.Type = "static"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "requires at least one user") {
		t.Errorf("Expected missing users error, got: %v", err)
	}

	cfg = validConfig()
	cfg.Auth.Type = "static"
	cfg.Auth.Users = []UserConfig{
		{Username: "admin", PasswordHash: "h1"},
		{Username: "admin", PasswordHash: "h2"},
	}
	err = Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "duplicate username") {
		t.Errorf("Expected duplicate username error, got: %v", err)
	}

	cfg = validConfig()
	cfg.Auth.Type = "static"
	cfg.Auth.Users = []UserConfig{{Username: "admin"}}
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for user without password hash")
	}
}

func TestValidate_Properties(t *testing.T) {
	cfg := validConfig()
	cfg.Registry.Properties = append(cfg.Registry.Properties, cfg.Registry.Properties[0])
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "duplicate name") {
		t.Errorf("Expected duplicate properties error, got: %v", err)
	}

	cfg = validConfig()
	cfg.Registry.Properties[0].Name = "a,b"
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for a name that breaks the object name")
	}

	cfg = validConfig()
	cfg.Registry.Properties[0].Attributes = nil
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for properties object without attributes")
	}
}

func TestValidate_Store(t *testing.T) {
	cfg := validConfig()
	cfg.Registry.Store.Type = "postgres"
	if err := Validate(cfg); err == nil {
		t.Error("Expected error for unknown store type")
	}

	cfg = validConfig()
	cfg.Registry.Store.Type = "badger"
	cfg.Registry.Store.Badger = map[string]any{"path": ""}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected badger path error, got: %v", err)
	}

	cfg = validConfig()
	cfg.Registry.Store.Type = "badger"
	cfg.Registry.Store.Badger = map[string]any{"in_memory": true}
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected in-memory badger without path to be valid, got: %v", err)
	}
}
