package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marmos91/dittofm/pkg/storage"
)

// List returns the direct children of the directory at p.
//
// Symlinks are followed so that a link to a file is reported as a file. A
// link that points outside the root, or that is dangling, is skipped rather
// than failing the whole listing.
func (a *LocalAdapter) List(ctx context.Context, p storage.Path) (entries []storage.Entry, err error) {
	defer a.observe("list", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.abs(p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, storage.MapOSError("list", p, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("list %q: %w", p.String(), storage.ErrNotADirectory)
	}

	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, storage.MapOSError("list", p, err)
	}

	entries = make([]storage.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if isTemp(de.Name()) {
			continue
		}

		child := p.Child(de.Name())
		childInfo, err := de.Info()
		if err != nil {
			continue
		}

		if childInfo.Mode()&os.ModeSymlink != 0 {
			if _, err := a.abs(child); err != nil {
				continue
			}
			childInfo, err = os.Stat(full + string(os.PathSeparator) + de.Name())
			if err != nil {
				continue
			}
		}

		entries = append(entries, toEntry(child, childInfo))
	}

	return entries, nil
}

// Stat returns the entry at p.
func (a *LocalAdapter) Stat(ctx context.Context, p storage.Path) (storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return storage.Entry{}, err
	}

	full, err := a.abs(p)
	if err != nil {
		return storage.Entry{}, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return storage.Entry{}, storage.MapOSError("stat", p, err)
	}

	return toEntry(p, info), nil
}

// Exists reports whether anything exists at p.
func (a *LocalAdapter) Exists(ctx context.Context, p storage.Path) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	full, err := a.abs(p)
	if err != nil {
		return false, err
	}

	if _, err := os.Lstat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, storage.MapOSError("exists", p, err)
	}
	return true, nil
}

// Open returns a reader over the file at p.
//
// The returned reader also implements storage.Sizer, which lets the archive
// engine read zip central directories without spooling.
func (a *LocalAdapter) Open(ctx context.Context, p storage.Path) (_ io.ReadCloser, err error) {
	defer a.observe("open", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.abs(p)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, storage.MapOSError("open", p, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, storage.MapOSError("open", p, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %q: %w", p.String(), storage.ErrIsADirectory)
	}

	return &file{File: f, size: info.Size(), metrics: a.metrics}, nil
}

// file is an open file that knows its size.
type file struct {
	*os.File
	size    int64
	metrics storage.Metrics
}

func (f *file) Read(p []byte) (int, error) {
	n, err := f.File.Read(p)
	f.metrics.RecordBytes("read", int64(n))
	return n, err
}

func (f *file) WriteTo(w io.Writer) (int64, error) {
	n, err := f.File.WriteTo(w)
	f.metrics.RecordBytes("read", n)
	return n, err
}

func (f *file) Size() int64 {
	return f.size
}

var _ storage.Sizer = (*file)(nil)
