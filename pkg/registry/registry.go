package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/marmos91/dittofm/pkg/storage"
)

// keyPattern restricts storage keys so that "key://path" parses unambiguously.
var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Registry manages all named resources: storage adapters and public links.
// It provides thread-safe registration and lookup of all server resources.
//
// The registry is populated once at startup and then sealed. After Seal,
// registration fails and lookups only take a read lock.
//
// Example usage:
//
//	reg := NewRegistry()
//	reg.RegisterStorage("local", localAdapter)
//	reg.RegisterStorage("media", s3Adapter)
//	reg.AddLink(&PublicLink{Name: "shared", Storage: "local", Path: "public"})
//	reg.Seal()
//
//	key, adapter, p, _ := reg.ResolveURI("media://photos/cat.jpg")
type Registry struct {
	mu       sync.RWMutex
	storages map[string]storage.Adapter
	order    []string // registration order; order[0] is the default storage
	links    map[string]*PublicLink
	sealed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		storages: make(map[string]storage.Adapter),
		links:    make(map[string]*PublicLink),
	}
}

// ValidateKey checks that key is usable as a storage key.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid storage key %q: must match %s", key, keyPattern.String())
	}
	return nil
}

// RegisterStorage adds a named storage adapter to the registry.
// Returns an error if the key is invalid, already registered, or the registry
// is sealed.
func (r *Registry) RegisterStorage(key string, adapter storage.Adapter) error {
	if adapter == nil {
		return fmt.Errorf("cannot register nil storage adapter")
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("cannot register storage %q: registry is sealed", key)
	}
	if _, exists := r.storages[key]; exists {
		return fmt.Errorf("storage %q already registered", key)
	}

	r.storages[key] = adapter
	r.order = append(r.order, key)
	return nil
}

// Seal freezes the registry. Further registrations fail.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// GetStorage retrieves a storage adapter by key.
//
// An empty key selects the default storage, which is the first one
// registered. Returns an error wrapping storage.ErrUnknownStorage if the key
// is not registered.
func (r *Registry) GetStorage(key string) (string, storage.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if key == "" {
		if len(r.order) == 0 {
			return "", nil, fmt.Errorf("no storage configured: %w", storage.ErrUnknownStorage)
		}
		key = r.order[0]
	}

	adapter, exists := r.storages[key]
	if !exists {
		return "", nil, fmt.Errorf("storage %q: %w", key, storage.ErrUnknownStorage)
	}
	return key, adapter, nil
}

// DefaultStorage returns the key of the default storage, or "" if none.
func (r *Registry) DefaultStorage() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}

// ListStorages returns all registered storage keys in registration order.
// The returned slice is a copy and safe to modify.
func (r *Registry) ListStorages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// CountStorages returns the number of registered storages.
func (r *Registry) CountStorages() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.storages)
}

// Close closes every registered adapter and returns the joined errors.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, key := range r.order {
		if err := r.storages[key].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
