package config

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittomx/internal/logger"
	"github.com/marmos91/dittomx/pkg/registry"
)

// RegistryResult holds the registry built from configuration and the
// resources owned by it.
type RegistryResult struct {
	// Registry holds every managed object
	Registry *registry.MemoryRegistry

	// Server is the dittomx:type=Server object; adapters report connections to it
	Server *registry.ServerObject

	// Store persists writable properties
	Store registry.AttributeStore
}

// Close releases the attribute store.
func (r *RegistryResult) Close() error {
	if r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// InitializeRegistry creates a fully configured registry from the provided
// configuration.
//
// This function orchestrates the complete initialization process:
//  1. Creates the attribute store from cfg.Registry.Store
//  2. Registers the built-in Runtime and Server objects
//  3. Registers one properties object per cfg.Registry.Properties entry
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: Complete configuration loaded from config file
//   - version: Server version reported by the Server object
//
// Returns:
//   - *RegistryResult: Registry ready for use by the DittoServer
//   - error: If store creation fails or an object definition is invalid
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	result, err := config.InitializeRegistry(ctx, cfg, version)
//	if err != nil {
//	    log.Fatalf("Failed to initialize registry: %v", err)
//	}
//	defer result.Close()
func InitializeRegistry(ctx context.Context, cfg *Config, version string) (*RegistryResult, error) {
	logger.Debug("Initializing registry from configuration")

	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}

	store, err := CreateAttributeStore(ctx, &cfg.Registry.Store)
	if err != nil {
		return nil, err
	}
	logger.Debug("Attribute store created (type: %s)", cfg.Registry.Store.Type)

	result := &RegistryResult{
		Registry: registry.NewMemoryRegistry(),
		Server:   registry.NewServerObject(version),
		Store:    store,
	}

	if err := registerObjects(result, cfg); err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Debug("Registered %d object(s)", result.Registry.ObjectCount(ctx))
	return result, nil
}

func registerObjects(result *RegistryResult, cfg *Config) error {
	reg := result.Registry

	if err := reg.Register(registry.RuntimeObjectName, registry.NewRuntimeObject(time.Now())); err != nil {
		return fmt.Errorf("failed to register runtime object: %w", err)
	}
	if err := reg.Register(registry.ServerObjectName, result.Server); err != nil {
		return fmt.Errorf("failed to register server object: %w", err)
	}

	for _, props := range cfg.Registry.Properties {
		name, err := registry.PropertiesObjectName(props.Name)
		if err != nil {
			return fmt.Errorf("properties %q: %w", props.Name, err)
		}

		defs := make([]registry.PropertyDef, len(props.Attributes))
		for i, attr := range props.Attributes {
			defs[i] = registry.PropertyDef{
				Name:        attr.Name,
				Default:     attr.Default,
				Writable:    attr.Writable,
				Description: attr.Description,
			}
		}

		obj, err := registry.NewPropertiesObject(name, defs, result.Store)
		if err != nil {
			return fmt.Errorf("properties %q: %w", props.Name, err)
		}
		if err := reg.Register(name, obj); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}

		logger.Debug("Properties object %s registered (%d attribute(s))", name, len(defs))
	}

	return nil
}
