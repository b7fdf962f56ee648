package registry

import (
	"fmt"
	"strings"

	"github.com/marmos91/dittofm/pkg/storage"
)

// uriSeparator splits a storage key from its path in the "key://path" form.
const uriSeparator = "://"

// Resolve maps a storage key and a raw client path to an adapter and a
// contained path.
//
// Parameters:
//   - key: Storage key, or "" for the default storage
//   - raw: Client supplied path relative to the storage root
//
// Returns:
//   - string: The effective storage key
//   - storage.Adapter: The adapter registered under that key
//   - storage.Path: The cleaned path
//   - error: ErrUnknownStorage, ErrPathTraversal or ErrBadRequest
func (r *Registry) Resolve(key, raw string) (string, storage.Adapter, storage.Path, error) {
	key, adapter, err := r.GetStorage(key)
	if err != nil {
		return "", nil, storage.Path{}, err
	}

	p, err := storage.Clean(raw)
	if err != nil {
		return "", nil, storage.Path{}, err
	}

	return key, adapter, p, nil
}

// ResolveURI resolves a path in "key://path" form.
//
// A value without the separator is resolved against the default storage.
func (r *Registry) ResolveURI(uri string) (string, storage.Adapter, storage.Path, error) {
	key, raw := SplitURI(uri)
	return r.Resolve(key, raw)
}

// SplitURI splits "key://path" into its key and path. Values without a
// separator, or whose prefix is not a valid key, are returned as a path with
// an empty key.
func SplitURI(uri string) (key, raw string) {
	idx := strings.Index(uri, uriSeparator)
	if idx <= 0 {
		return "", uri
	}
	if ValidateKey(uri[:idx]) != nil {
		return "", uri
	}
	return uri[:idx], uri[idx+len(uriSeparator):]
}

// FormatURI renders p on storage key in "key://path" form.
func FormatURI(key string, p storage.Path) string {
	return fmt.Sprintf("%s%s%s", key, uriSeparator, p.String())
}
