package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/dittofm/pkg/storage"
)

// Rename renames an entry within its parent directory.
func (a *LocalAdapter) Rename(ctx context.Context, from, to storage.Path) error {
	if err := storage.CheckRename(from, to); err != nil {
		return err
	}
	return a.move(ctx, "rename", from, to)
}

// Move relocates an entry. The destination parent must exist.
func (a *LocalAdapter) Move(ctx context.Context, from, to storage.Path) error {
	if err := storage.CheckMoveTarget(from, to); err != nil {
		return err
	}
	return a.move(ctx, "move", from, to)
}

func (a *LocalAdapter) move(ctx context.Context, op string, from, to storage.Path) (err error) {
	defer a.observe(op, time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}

	src, dst, err := a.prepareTarget(op, from, to)
	if err != nil {
		return err
	}

	if err := os.Rename(src, dst); err != nil {
		return storage.MapOSError(op, to, err)
	}
	return nil
}

// prepareTarget checks that from exists, that to is free and that the
// destination parent is a directory. It returns both absolute paths.
func (a *LocalAdapter) prepareTarget(op string, from, to storage.Path) (string, string, error) {
	src, err := a.abs(from)
	if err != nil {
		return "", "", err
	}
	dst, err := a.abs(to)
	if err != nil {
		return "", "", err
	}

	if _, err := os.Lstat(src); err != nil {
		return "", "", storage.MapOSError(op, from, err)
	}
	if _, err := os.Lstat(dst); err == nil {
		return "", "", fmt.Errorf("%s %q: %w", op, to.String(), storage.ErrConflict)
	}

	parent, err := os.Stat(filepath.Dir(dst))
	if err != nil {
		return "", "", storage.MapOSError(op, to.Parent(), err)
	}
	if !parent.IsDir() {
		return "", "", fmt.Errorf("%s %q: %w", op, to.Parent().String(), storage.ErrNotADirectory)
	}

	return src, dst, nil
}

// Copy duplicates the entry at from to to, recursing into directories.
//
// Directory trees are copied into a hidden staging directory next to the
// destination and renamed into place once complete, so a failed copy never
// leaves a partial tree under to.
func (a *LocalAdapter) Copy(ctx context.Context, from, to storage.Path) (err error) {
	defer a.observe("copy", time.Now(), &err)

	// ========================================================================
	// Step 1: Validate source and destination
	// ========================================================================

	if err := storage.CheckMoveTarget(from, to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	src, dst, err := a.prepareTarget("copy", from, to)
	if err != nil {
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		return storage.MapOSError("copy", from, err)
	}

	// ========================================================================
	// Step 2: Files go through the regular atomic write path
	// ========================================================================

	if !info.IsDir() {
		r, err := a.Open(ctx, from)
		if err != nil {
			return err
		}
		defer func() { _ = r.Close() }()

		_, err = a.Write(ctx, to, r, false)
		return err
	}

	// ========================================================================
	// Step 3: Directories are staged and renamed into place
	// ========================================================================

	staging := filepath.Join(filepath.Dir(dst), tempName())
	if err := a.copyTree(ctx, src, staging); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("copy %q: %w", from.String(), storage.MapOSError("copy", to, err))
	}

	if err := publish(staging, dst, false); err != nil {
		_ = os.RemoveAll(staging)
		return storage.MapOSError("copy", to, err)
	}
	return nil
}

func (a *LocalAdapter) copyTree(ctx context.Context, src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(target, 0755)
		case info.Mode()&os.ModeSymlink != 0:
			// Links are not followed; a copy must not pull in content from
			// outside the root.
			return nil
		case !info.Mode().IsRegular():
			return nil
		}

		return copyFile(ctx, path, target)
	})
}

func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	buf := make([]byte, storage.CopyBufferSize)
	if _, err := io.CopyBuffer(out, storage.ContextReader(ctx, in), buf); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
