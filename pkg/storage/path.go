package storage

import (
	"fmt"
	"path"
	"strings"
)

// Path is a validated, slash-separated path relative to a storage root.
//
// The zero value is the root itself. A Path can only be produced by Clean,
// Join or Parent, so every Path in the program has already been normalized
// and checked for containment. Adapters map it onto their own namespace
// (a directory on disk, an object key prefix, a badger key).
type Path struct {
	rel string
}

// Root is the storage root.
var Root = Path{}

// Clean validates a client-supplied path and returns its storage-scoped form.
//
// The raw input is normalized before it is ever joined to a backend root:
// backslashes become separators, "." segments and repeated separators are
// collapsed, and leading separators are stripped. A ".." segment that would
// climb above the root fails with ErrPathTraversal instead of being clamped.
//
// Clean performs no I/O.
func Clean(raw string) (Path, error) {
	return Root.Join(raw)
}

// MustClean is like Clean but panics on error. It is intended for constants
// and tests.
func MustClean(raw string) Path {
	p, err := Clean(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Join appends untrusted segments to p.
//
// The result must stay within p: "a/../b" is fine, "../b" is not. This is the
// gate used for upload file names and archive entry names.
func (p Path) Join(elem ...string) (Path, error) {
	joined := strings.Join(elem, "/")
	if strings.IndexByte(joined, 0) >= 0 {
		return Path{}, fmt.Errorf("path %q contains NUL byte: %w", joined, ErrBadRequest)
	}
	joined = strings.ReplaceAll(joined, `\`, "/")

	depth := 0
	for _, seg := range strings.Split(joined, "/") {
		switch seg {
		case "", ".":
		case "..":
			if depth == 0 {
				return Path{}, fmt.Errorf("path %q escapes %q: %w", joined, p.String(), ErrPathTraversal)
			}
			depth--
		default:
			depth++
		}
	}

	cleaned := strings.TrimPrefix(path.Clean("/"+joined), "/")
	if cleaned == "" {
		return p, nil
	}
	if p.rel == "" {
		return Path{rel: cleaned}, nil
	}
	return Path{rel: p.rel + "/" + cleaned}, nil
}

// String returns the root-relative form without a leading separator.
// The root is the empty string.
func (p Path) String() string {
	return p.rel
}

// IsRoot reports whether p is the storage root.
func (p Path) IsRoot() bool {
	return p.rel == ""
}

// Base returns the last element of p, or "" for the root.
func (p Path) Base() string {
	if p.rel == "" {
		return ""
	}
	return path.Base(p.rel)
}

// Ext returns the extension of the last element without the dot.
func (p Path) Ext() string {
	return strings.TrimPrefix(path.Ext(p.Base()), ".")
}

// Parent returns the directory containing p. The parent of the root is the root.
func (p Path) Parent() Path {
	i := strings.LastIndexByte(p.rel, '/')
	if i < 0 {
		return Root
	}
	return Path{rel: p.rel[:i]}
}

// Child returns p joined with a single trusted name, as returned by List.
func (p Path) Child(name string) Path {
	if p.rel == "" {
		return Path{rel: name}
	}
	return Path{rel: p.rel + "/" + name}
}

// Within reports whether p equals base or lies below it.
func (p Path) Within(base Path) bool {
	if base.rel == "" || p.rel == base.rel {
		return true
	}
	return strings.HasPrefix(p.rel, base.rel+"/")
}

// Rel returns p relative to base, and false if p is not within base.
func (p Path) Rel(base Path) (string, bool) {
	if !p.Within(base) {
		return "", false
	}
	if base.rel == "" {
		return p.rel, true
	}
	return strings.TrimPrefix(strings.TrimPrefix(p.rel, base.rel), "/"), true
}

// Segments splits p into its elements. The root has none.
func (p Path) Segments() []string {
	if p.rel == "" {
		return nil
	}
	return strings.Split(p.rel, "/")
}
