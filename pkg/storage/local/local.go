// Package local implements a storage adapter backed by a local directory.
//
// This file contains the adapter type, its constructor, and the path mapping
// that keeps every operation inside the configured root.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittofm/pkg/storage"
)

// tempPrefix and tempSuffix mark in-flight writes. Entries matching both are
// never reported by List.
const (
	tempPrefix = ".dittofm-"
	tempSuffix = ".tmp"
)

// Config holds the local adapter options decoded from configuration.
type Config struct {
	// Path is the root directory. It is created if missing.
	Path string `mapstructure:"path" validate:"required"`
}

// LocalAdapter implements storage.Adapter on top of the local filesystem.
//
// Paths are mapped below a root directory whose symlinks are resolved once
// at construction. Each operation resolves the deepest existing ancestor of
// its target and rejects it if a symlink inside the root points outside.
//
// Writes go to a hidden temporary file in the destination directory which
// is renamed (or hard-linked, for no-overwrite writes) into place only after
// the stream has been fully consumed and synced.
//
// Thread Safety:
// The adapter holds no mutable state and is safe for concurrent use.
// Concurrent writers to the same path race at the filesystem level and the
// last rename wins.
type LocalAdapter struct {
	root    string
	metrics storage.Metrics
}

// New creates a local adapter rooted at root.
//
// Parameters:
//   - ctx: Context for cancellation
//   - root: Root directory, created with permissions 0755 if missing
//   - metrics: Optional operation metrics (nil disables them)
//
// Returns:
//   - *LocalAdapter: Initialized adapter
//   - error: If the root cannot be created or resolved
func New(ctx context.Context, root string, metrics storage.Metrics) (*LocalAdapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to stat storage root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", resolved)
	}

	return &LocalAdapter{root: resolved, metrics: storage.MetricsOrNoop(metrics)}, nil
}

// Root returns the resolved root directory.
func (a *LocalAdapter) Root() string {
	return a.root
}

// observe records the outcome of operation op. Use with a named error return:
//
//	defer a.observe("list", time.Now(), &err)
func (a *LocalAdapter) observe(op string, start time.Time, err *error) {
	a.metrics.ObserveOperation(op, time.Since(start), *err)
}

// Close is a no-op for the local adapter.
func (a *LocalAdapter) Close() error {
	return nil
}

// abs maps p onto the filesystem and verifies that symlinks along the
// existing part of the path do not lead outside the root.
func (a *LocalAdapter) abs(p storage.Path) (string, error) {
	full := filepath.Join(a.root, filepath.FromSlash(p.String()))

	existing := full
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		if existing == a.root {
			return full, nil
		}
		existing = filepath.Dir(existing)
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		// A dangling symlink cannot be followed; treat the target as absent
		// and let the operation itself report it.
		if os.IsNotExist(err) {
			return full, nil
		}
		return "", storage.MapOSError("resolve", p, err)
	}

	if !a.contains(resolved) {
		return "", fmt.Errorf("resolve %q: symlink leaves storage root: %w", p.String(), storage.ErrPathTraversal)
	}

	return full, nil
}

func (a *LocalAdapter) contains(path string) bool {
	rel, err := filepath.Rel(a.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// tempName returns a unique hidden name for an in-flight write or copy.
func tempName() string {
	return tempPrefix + uuid.NewString() + tempSuffix
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, tempSuffix)
}

func toEntry(p storage.Path, info os.FileInfo) storage.Entry {
	return storage.NewEntry(p, info.IsDir(), info.Size(), info.ModTime())
}

var _ storage.Adapter = (*LocalAdapter)(nil)
