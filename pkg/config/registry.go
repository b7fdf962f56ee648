package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/registry"
	"github.com/marmos91/dittofm/pkg/storage"
)

// InitializeRegistry creates a sealed Registry from the provided configuration.
//
// This function orchestrates the complete initialization process:
//  1. Creates and registers every storage in cfg.Storages
//  2. Adds every public link in cfg.PublicLinks
//  3. Seals the registry
//
// Storages are registered in alphabetical key order, except that
// cfg.DefaultStorage (if set) is registered first so that it becomes the
// default. On failure, storages already opened are closed.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	reg, err := config.InitializeRegistry(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("initialize registry: %w", err)
//	}
//	defer reg.Close()
func InitializeRegistry(ctx context.Context, cfg *Config) (_ *registry.Registry, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if len(cfg.Storages) == 0 {
		return nil, fmt.Errorf("no storages configured")
	}

	logger.Debug("Initializing registry from configuration")
	reg := registry.NewRegistry()
	defer func() {
		if err != nil {
			if closeErr := reg.Close(); closeErr != nil {
				err = errors.Join(err, closeErr)
			}
		}
	}()

	for _, key := range storageOrder(cfg) {
		sc := cfg.Storages[key]
		adapter, err := CreateStorage(ctx, key, sc)
		if err != nil {
			return nil, fmt.Errorf("storage %q: %w", key, err)
		}
		if err := reg.RegisterStorage(key, adapter); err != nil {
			_ = adapter.Close()
			return nil, err
		}
		logger.Info("Registered %s storage %q", sc.Type, key)
	}

	for i, lc := range cfg.PublicLinks {
		p, err := storage.Clean(lc.Path)
		if err != nil {
			return nil, fmt.Errorf("public_links[%d]: %w", i, err)
		}
		if err := reg.AddLink(&registry.PublicLink{
			Name:    lc.Name,
			Storage: lc.Storage,
			Path:    p,
			URL:     lc.URL,
		}); err != nil {
			return nil, fmt.Errorf("public_links[%d]: %w", i, err)
		}
		logger.Info("Public link %q -> %s", lc.Name, registry.FormatURI(lc.Storage, p))
	}

	reg.Seal()
	logger.Debug("Registry sealed: %d storage(s), %d public link(s), default %q",
		reg.CountStorages(), len(reg.ListLinks()), reg.DefaultStorage())

	return reg, nil
}

// storageOrder returns the registration order of the configured storages.
func storageOrder(cfg *Config) []string {
	keys := sortedKeys(cfg.Storages)
	if cfg.DefaultStorage == "" {
		return keys
	}

	order := make([]string, 0, len(keys))
	order = append(order, cfg.DefaultStorage)
	for _, k := range keys {
		if k != cfg.DefaultStorage {
			order = append(order, k)
		}
	}
	return order
}
