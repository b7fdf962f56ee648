package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittofm/pkg/registry"
	"github.com/marmos91/dittofm/pkg/storage"
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
	if len(cfg.Storages) == 0 {
		return fmt.Errorf("storages: at least one storage must be configured")
	}

	for _, key := range sortedKeys(cfg.Storages) {
		if err := registry.ValidateKey(key); err != nil {
			return fmt.Errorf("storages.%s: %w", key, err)
		}
	}

	if cfg.DefaultStorage != "" {
		if _, ok := cfg.Storages[cfg.DefaultStorage]; !ok {
			return fmt.Errorf("default_storage: storage %q is not configured", cfg.DefaultStorage)
		}
	}

	names := make(map[string]bool)
	for i, link := range cfg.PublicLinks {
		if err := registry.ValidateKey(link.Name); err != nil {
			return fmt.Errorf("public_links[%d]: %w", i, err)
		}
		if names[link.Name] {
			return fmt.Errorf("public_links[%d]: duplicate link name %q", i, link.Name)
		}
		names[link.Name] = true

		if _, ok := cfg.Storages[link.Storage]; !ok {
			return fmt.Errorf("public_links[%d]: storage %q is not configured", i, link.Storage)
		}
		if _, err := storage.Clean(link.Path); err != nil {
			return fmt.Errorf("public_links[%d]: path %q: %w", i, link.Path, err)
		}
	}

	if cfg.Metrics.Enabled && cfg.Server.Port != 0 && cfg.Metrics.Port == cfg.Server.Port {
		return fmt.Errorf("metrics.port: %d is already used by the API server", cfg.Metrics.Port)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
