// Package storage defines the storage adapter abstraction used by DittoFM.
//
// A storage adapter exposes filesystem-like primitives (list, stat, streaming
// read and write, mkdir, delete, rename, move, copy) over a single backend
// root. Every path handed to an adapter is a Path, which has already been
// normalized and contained by Clean or Join.
//
// Implementations:
//   - pkg/storage/local: a directory on the local filesystem
//   - pkg/storage/s3: an S3 or S3-compatible bucket (optionally under a prefix)
//   - pkg/storage/badger: an embedded BadgerDB database
//
// Adapters never operate across backends. Cross-backend move and copy are
// composed by the command router out of Open, Write and Mkdir.
package storage

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"
	"time"
)

// Entry describes a single file or directory.
//
// Entries are produced fresh on every List or Stat call and carry no identity
// beyond their path.
type Entry struct {
	// Path is the entry location relative to the storage root
	Path Path

	// Name is the last path element
	Name string

	// IsDir is true for directories
	IsDir bool

	// Size is the content length in bytes, always 0 for directories
	Size int64

	// LastModified is the modification time reported by the backend
	LastModified time.Time

	// MimeType is derived from the file extension; empty for directories
	MimeType string
}

// Extension returns the entry extension without the dot.
func (e Entry) Extension() string {
	if e.IsDir {
		return ""
	}
	return e.Path.Ext()
}

// Adapter is the capability set every storage backend implements.
//
// Error semantics (all errors wrap the sentinels from errors.go):
//   - List: ErrNotFound if absent, ErrNotADirectory if p is a file
//   - Stat: ErrNotFound
//   - Open: ErrNotFound, ErrIsADirectory
//   - Write: ErrConflict if overwrite is false and p exists (nothing is read
//     from r in that case), ErrIsADirectory if p is a directory. A failed
//     write never leaves partial content visible under p.
//   - Mkdir: ErrConflict if a file occupies p; succeeds if the directory exists
//   - Delete: ErrNotFound, ErrDirectoryNotEmpty for non-recursive deletes
//   - Rename, Move, Copy: ErrNotFound if from is absent, ErrConflict if to
//     exists. Rename is restricted to the same parent directory.
//
// Implementations must be safe for concurrent use. No implementation holds a
// lock across backend I/O.
type Adapter interface {
	// List returns the direct children of the directory at p.
	List(ctx context.Context, p Path) ([]Entry, error)

	// Stat returns the entry at p.
	Stat(ctx context.Context, p Path) (Entry, error)

	// Exists reports whether anything exists at p.
	Exists(ctx context.Context, p Path) (bool, error)

	// Open returns a single-pass reader over the file at p.
	Open(ctx context.Context, p Path) (io.ReadCloser, error)

	// Write consumes r fully and stores it at p, returning the bytes written.
	// Missing parent directories are created.
	Write(ctx context.Context, p Path, r io.Reader, overwrite bool) (int64, error)

	// Mkdir creates the directory at p, including missing parents.
	Mkdir(ctx context.Context, p Path) error

	// Delete removes the entry at p.
	Delete(ctx context.Context, p Path, recursive bool) error

	// Rename renames an entry within its parent directory.
	Rename(ctx context.Context, from, to Path) error

	// Move relocates an entry, possibly into another directory.
	Move(ctx context.Context, from, to Path) error

	// Copy duplicates an entry, recursing into directories.
	Copy(ctx context.Context, from, to Path) error

	// Close releases backend resources.
	Close() error
}

// Sizer is implemented by readers returned from Open that know their length
// and support random access (local files, for instance). The archive engine
// uses it to avoid spooling archives to a temporary file.
type Sizer interface {
	io.ReaderAt
	Size() int64
}

// DefaultMimeType is used when no better type can be derived.
const DefaultMimeType = "application/octet-stream"

// MimeTypeByName derives a best-effort MIME type from a file name.
func MimeTypeByName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return DefaultMimeType
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return DefaultMimeType
}

// NewEntry builds an Entry for p with the MIME type filled in.
func NewEntry(p Path, isDir bool, size int64, modified time.Time) Entry {
	e := Entry{
		Path:         p,
		Name:         p.Base(),
		IsDir:        isDir,
		LastModified: modified,
	}
	if !isDir {
		e.Size = size
		e.MimeType = MimeTypeByName(e.Name)
	}
	return e
}

// CheckMoveTarget validates the structural preconditions shared by all
// adapters for Rename, Move and Copy.
func CheckMoveTarget(from, to Path) error {
	if from.IsRoot() || to.IsRoot() {
		return errorf(ErrBadRequest, "cannot move or copy the storage root")
	}
	if to.Within(from) {
		return errorf(ErrBadRequest, "cannot move or copy %q into itself", from.String())
	}
	return nil
}

// CheckRename validates that a rename stays within the same directory.
func CheckRename(from, to Path) error {
	if err := CheckMoveTarget(from, to); err != nil {
		return err
	}
	if from.Parent() != to.Parent() {
		return errorf(ErrBadRequest, "rename of %q must stay in the same directory", from.String())
	}
	return nil
}
