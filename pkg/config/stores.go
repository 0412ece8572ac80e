package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittomx/pkg/registry"
	"github.com/marmos91/dittomx/pkg/registry/badger"
	"github.com/mitchellh/mapstructure"
)

// badgerYAMLConfig represents BadgerDB configuration loaded from config files.
type badgerYAMLConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// CreateAttributeStore creates the attribute store selected by cfg.Type.
func CreateAttributeStore(ctx context.Context, cfg *StoreConfig) (registry.AttributeStore, error) {
	switch cfg.Type {
	case "memory", "":
		return registry.NewMemoryAttributeStore(), nil
	case "badger":
		return createBadgerAttributeStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown attribute store type: %q", cfg.Type)
	}
}

// createBadgerAttributeStore creates a BadgerDB-backed attribute store.
func createBadgerAttributeStore(ctx context.Context, options map[string]any) (registry.AttributeStore, error) {
	var badgerCfg badgerYAMLConfig
	if err := mapstructure.Decode(options, &badgerCfg); err != nil {
		return nil, fmt.Errorf("invalid badger config: %w", err)
	}

	if badgerCfg.Path == "" && !badgerCfg.InMemory {
		return nil, fmt.Errorf("badger attribute store: path is required")
	}

	store, err := badger.NewAttributeStore(ctx, badger.Config{
		Path:     badgerCfg.Path,
		InMemory: badgerCfg.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger attribute store: %w", err)
	}
	return store, nil
}
