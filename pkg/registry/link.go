package registry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/marmos91/dittofm/pkg/storage"
)

// PublicLink exposes a sub-tree of a storage for unauthenticated download:
//   - Name: URL segment under /public/
//   - Storage: key of the storage holding the tree
//   - Path: root of the exposed tree within that storage
//   - URL: optional external base URL (a CDN or reverse proxy) used instead
//     of the built-in /public/<name> route when listing
//
// Multiple links may reference the same storage.
type PublicLink struct {
	Name    string
	Storage string
	Path    storage.Path
	URL     string
}

// AddLink registers a public link.
//
// Returns an error if:
//   - The name is not a valid key
//   - A link with the same name already exists
//   - The referenced storage is not registered
//   - The registry is sealed
func (r *Registry) AddLink(link *PublicLink) error {
	if link == nil {
		return fmt.Errorf("cannot add nil public link")
	}
	if err := ValidateKey(link.Name); err != nil {
		return fmt.Errorf("public link: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("cannot add public link %q: registry is sealed", link.Name)
	}
	if _, exists := r.links[link.Name]; exists {
		return fmt.Errorf("public link %q already exists", link.Name)
	}
	if _, exists := r.storages[link.Storage]; !exists {
		return fmt.Errorf("public link %q: storage %q not found", link.Name, link.Storage)
	}

	stored := *link
	stored.URL = strings.TrimRight(link.URL, "/")
	r.links[link.Name] = &stored
	return nil
}

// GetLink retrieves a public link by name.
func (r *Registry) GetLink(name string) (*PublicLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	link, exists := r.links[name]
	if !exists {
		return nil, fmt.Errorf("public link %q: %w", name, storage.ErrNotFound)
	}
	return link, nil
}

// ResolveLink maps "<name>/<rest>" under the public route to an adapter and
// a path contained in the link's tree.
func (r *Registry) ResolveLink(name, rest string) (storage.Adapter, storage.Path, error) {
	link, err := r.GetLink(name)
	if err != nil {
		return nil, storage.Path{}, err
	}

	_, adapter, err := r.GetStorage(link.Storage)
	if err != nil {
		return nil, storage.Path{}, err
	}

	p, err := link.Path.Join(rest)
	if err != nil {
		return nil, storage.Path{}, err
	}
	return adapter, p, nil
}

// PublicURL returns the public URL of p on storage key, or "" when p is not
// inside any public link. The first matching link, in name order, wins.
func (r *Registry) PublicURL(key string, p storage.Path) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *PublicLink
	for _, link := range r.links {
		if link.Storage != key || !p.Within(link.Path) {
			continue
		}
		if best == nil || link.Name < best.Name {
			best = link
		}
	}
	if best == nil {
		return ""
	}

	rel, _ := p.Rel(best.Path)
	base := best.URL
	if base == "" {
		base = "/public/" + best.Name
	}
	if rel == "" {
		return base
	}
	return base + "/" + escapeSegments(rel)
}

// ListLinks returns all registered public link names.
// The returned slice is a copy and safe to modify.
func (r *Registry) ListLinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.links))
	for name := range r.links {
		names = append(names, name)
	}
	return names
}

func escapeSegments(rel string) string {
	segments := strings.Split(rel, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
