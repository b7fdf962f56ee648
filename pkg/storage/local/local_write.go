package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/dittofm/pkg/storage"
)

// Write streams r into the file at p.
//
// The content is written to a hidden temporary file next to the target and
// only becomes visible under p once it has been fully consumed and synced.
// Any failure (read error, cancellation, size limit enforced by the caller's
// reader) removes the temporary file and leaves p untouched.
//
// Parameters:
//   - ctx: Context checked between chunks
//   - p: Destination file
//   - r: Content stream, consumed fully on success
//   - overwrite: If false and p exists, fails with ErrConflict without reading r
//
// Returns:
//   - int64: Bytes written
//   - error: ErrConflict, ErrIsADirectory, ErrNotADirectory, or the stream error
func (a *LocalAdapter) Write(ctx context.Context, p storage.Path, r io.Reader, overwrite bool) (_ int64, err error) {
	defer a.observe("write", time.Now(), &err)

	// ========================================================================
	// Step 1: Check context and preconditions before touching the stream
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if p.IsRoot() {
		return 0, fmt.Errorf("write %q: %w", p.String(), storage.ErrIsADirectory)
	}

	full, err := a.abs(p)
	if err != nil {
		return 0, err
	}

	if info, err := os.Stat(full); err == nil {
		if info.IsDir() {
			return 0, fmt.Errorf("write %q: %w", p.String(), storage.ErrIsADirectory)
		}
		if !overwrite {
			return 0, fmt.Errorf("write %q: %w", p.String(), storage.ErrConflict)
		}
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, storage.MapOSError("write", p, err)
	}

	// ========================================================================
	// Step 2: Stream into a temporary file in the destination directory
	// ========================================================================

	tmp := filepath.Join(dir, tempName())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, storage.MapOSError("write", p, err)
	}

	buf := make([]byte, storage.CopyBufferSize)
	n, copyErr := io.CopyBuffer(f, storage.ContextReader(ctx, r), buf)
	if copyErr == nil {
		copyErr = f.Sync()
	}
	if closeErr := f.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmp)
		return n, fmt.Errorf("write %q: %w", p.String(), copyErr)
	}

	// ========================================================================
	// Step 3: Publish under the final name
	// ========================================================================

	if err := publish(tmp, full, overwrite); err != nil {
		_ = os.Remove(tmp)
		return n, storage.MapOSError("write", p, err)
	}

	a.metrics.RecordBytes("write", n)
	return n, nil
}

// publish moves a completed temporary file to its final name.
//
// Without overwrite, a hard link gives an atomic no-clobber publish: it fails
// with EEXIST if another writer claimed the name in the meantime. Filesystems
// without hard link support fall back to check-then-rename.
func publish(tmp, full string, overwrite bool) error {
	if overwrite {
		return os.Rename(tmp, full)
	}

	err := os.Link(tmp, full)
	if err == nil {
		return os.Remove(tmp)
	}
	if errors.Is(err, os.ErrExist) {
		return err
	}

	if _, statErr := os.Lstat(full); statErr == nil {
		return os.ErrExist
	}
	return os.Rename(tmp, full)
}

// Mkdir creates the directory at p and any missing parents.
//
// Succeeds if the directory already exists; fails with ErrConflict if a file
// occupies p.
func (a *LocalAdapter) Mkdir(ctx context.Context, p storage.Path) (err error) {
	defer a.observe("mkdir", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := a.abs(p)
	if err != nil {
		return err
	}

	if info, err := os.Stat(full); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("mkdir %q: %w", p.String(), storage.ErrConflict)
	}

	if err := os.MkdirAll(full, 0755); err != nil {
		return storage.MapOSError("mkdir", p, err)
	}
	return nil
}

// Delete removes the entry at p.
//
// A non-recursive delete of a directory with children fails with
// ErrDirectoryNotEmpty. Deleting a symlink removes the link, not its target.
func (a *LocalAdapter) Delete(ctx context.Context, p storage.Path, recursive bool) (err error) {
	defer a.observe("delete", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}
	if p.IsRoot() {
		return fmt.Errorf("delete: cannot delete the storage root: %w", storage.ErrBadRequest)
	}

	full, err := a.abs(p)
	if err != nil {
		return err
	}

	info, err := os.Lstat(full)
	if err != nil {
		return storage.MapOSError("delete", p, err)
	}

	if !info.IsDir() {
		return storage.MapOSError("delete", p, os.Remove(full))
	}

	if !recursive {
		empty, err := isEmptyDir(full)
		if err != nil {
			return storage.MapOSError("delete", p, err)
		}
		if !empty {
			return fmt.Errorf("delete %q: %w", p.String(), storage.ErrDirectoryNotEmpty)
		}
		return storage.MapOSError("delete", p, os.Remove(full))
	}

	return storage.MapOSError("delete", p, os.RemoveAll(full))
}

func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	names, err := f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(names) == 0, nil
}
