package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittomx/pkg/registry"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.MX.Enabled && !cfg.Adapters.WebSocket.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if cfg.Adapters.MX.Enabled && cfg.Adapters.WebSocket.Enabled &&
		cfg.Adapters.MX.Port == cfg.Adapters.WebSocket.Port {
		return fmt.Errorf("adapters: mx and websocket cannot share port %d", cfg.Adapters.MX.Port)
	}

	if cfg.Auth.Type == "static" && len(cfg.Auth.Users) == 0 {
		return fmt.Errorf("auth: static authentication requires at least one user")
	}

	usernames := make(map[string]bool)
	for i, u := range cfg.Auth.Users {
		if usernames[u.Username] {
			return fmt.Errorf("auth.users[%d]: duplicate username %q", i, u.Username)
		}
		usernames[u.Username] = true
	}

	objects := make(map[string]bool)
	for i, p := range cfg.Registry.Properties {
		if objects[p.Name] {
			return fmt.Errorf("registry.properties[%d]: duplicate name %q", i, p.Name)
		}
		objects[p.Name] = true

		if _, err := registry.PropertiesObjectName(p.Name); err != nil {
			return fmt.Errorf("registry.properties[%d]: %w", i, err)
		}
	}

	if cfg.Registry.Store.Type == "badger" {
		inMemory, _ := cfg.Registry.Store.Badger["in_memory"].(bool)
		path, _ := cfg.Registry.Store.Badger["path"].(string)
		if !inMemory && path == "" {
			return fmt.Errorf("registry.store.badger: path is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
