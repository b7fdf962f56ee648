package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
)

// ============================================================================
// Standard Storage Errors
// ============================================================================

// These errors provide a consistent way to indicate common failure conditions
// across all storage adapters and the layers built on top of them. The command
// router maps each of them to a stable wire code and an HTTP status.
//
// Implementations should wrap these errors with additional context:
//
//	if !exists {
//	    return fmt.Errorf("stat %s: %w", p, storage.ErrNotFound)
//	}

var (
	// ErrBadRequest indicates a malformed or incomplete request.
	//
	// Protocol Mapping:
	//   - HTTP: 400 Bad Request
	ErrBadRequest = errors.New("bad request")

	// ErrUnknownStorage indicates the storage key is not registered.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrUnknownStorage = errors.New("unknown storage")

	// ErrUnsupportedCommand indicates the command name is not part of the protocol.
	//
	// Protocol Mapping:
	//   - HTTP: 400 Bad Request
	ErrUnsupportedCommand = errors.New("unsupported command")

	// ErrPathTraversal indicates a path would resolve outside its root.
	//
	// This error is returned when:
	//   - A raw path climbs above the storage root with ".." segments
	//   - A joined name escapes its base directory (zip-slip)
	//   - A symlink inside the root points outside of it
	//
	// Protocol Mapping:
	//   - HTTP: 403 Forbidden
	ErrPathTraversal = errors.New("path traversal")

	// ErrNotFound indicates the path does not exist.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrNotFound = errors.New("not found")

	// ErrNotADirectory indicates a directory operation was applied to a file.
	//
	// Protocol Mapping:
	//   - HTTP: 409 Conflict
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsADirectory indicates a file operation was applied to a directory.
	//
	// Protocol Mapping:
	//   - HTTP: 409 Conflict
	ErrIsADirectory = errors.New("is a directory")

	// ErrConflict indicates the destination already exists.
	//
	// Note: Write with overwrite=true never returns this error for files. Mkdir
	// returns it only when a file occupies the path.
	//
	// Protocol Mapping:
	//   - HTTP: 409 Conflict
	ErrConflict = errors.New("already exists")

	// ErrDirectoryNotEmpty indicates a non-recursive delete of a populated directory.
	//
	// Protocol Mapping:
	//   - HTTP: 409 Conflict
	ErrDirectoryNotEmpty = errors.New("directory not empty")

	// ErrSizeLimitExceeded indicates a configured byte or entry ceiling was crossed.
	//
	// This error is returned when:
	//   - An uploaded file grows beyond the per-file limit
	//   - Archive extraction crosses the byte or entry ceiling
	//
	// Protocol Mapping:
	//   - HTTP: 413 Request Entity Too Large
	ErrSizeLimitExceeded = errors.New("size limit exceeded")

	// ErrIOFailure indicates a backend I/O failure, including stalled streams.
	//
	// Protocol Mapping:
	//   - HTTP: 500 Internal Server Error
	ErrIOFailure = errors.New("i/o failure")
)

// Code is the machine-readable error code carried in response envelopes.
type Code string

const (
	CodeBadRequest         Code = "BadRequest"
	CodeUnknownStorage     Code = "UnknownStorage"
	CodeUnsupportedCommand Code = "UnsupportedCommand"
	CodePathTraversal      Code = "PathTraversal"
	CodeNotFound           Code = "NotFound"
	CodeNotADirectory      Code = "NotADirectory"
	CodeIsADirectory       Code = "IsADirectory"
	CodeConflict           Code = "Conflict"
	CodeDirectoryNotEmpty  Code = "DirectoryNotEmpty"
	CodeSizeLimitExceeded  Code = "SizeLimitExceeded"
	CodeIOFailure          Code = "IOFailure"
)

var classification = []struct {
	err    error
	code   Code
	status int
}{
	{ErrBadRequest, CodeBadRequest, http.StatusBadRequest},
	{ErrUnknownStorage, CodeUnknownStorage, http.StatusNotFound},
	{ErrUnsupportedCommand, CodeUnsupportedCommand, http.StatusBadRequest},
	{ErrPathTraversal, CodePathTraversal, http.StatusForbidden},
	{ErrNotFound, CodeNotFound, http.StatusNotFound},
	{ErrNotADirectory, CodeNotADirectory, http.StatusConflict},
	{ErrIsADirectory, CodeIsADirectory, http.StatusConflict},
	{ErrConflict, CodeConflict, http.StatusConflict},
	{ErrDirectoryNotEmpty, CodeDirectoryNotEmpty, http.StatusConflict},
	{ErrSizeLimitExceeded, CodeSizeLimitExceeded, http.StatusRequestEntityTooLarge},
	{ErrIOFailure, CodeIOFailure, http.StatusInternalServerError},
}

// Classify returns the wire code and HTTP status for err.
//
// Errors that do not wrap one of the sentinels above (including context
// cancellation and raw OS errors) classify as IOFailure.
func Classify(err error) (Code, int) {
	for _, c := range classification {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}
	return CodeIOFailure, http.StatusInternalServerError
}

// ErrorCode returns only the wire code for err.
func ErrorCode(err error) Code {
	code, _ := Classify(err)
	return code
}

// MapOSError translates an os-level error for operation op on p into the
// storage taxonomy.
//
// Known conditions are reported against the root-relative path only, so the
// message is safe to hand to clients. Anything else keeps the original error
// in the chain and classifies as ErrIOFailure.
func MapOSError(op string, p Path, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%s %q: %w", op, p.String(), ErrNotFound)
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("%s %q: %w", op, p.String(), ErrConflict)
	case errors.Is(err, syscall.ENOTDIR):
		return fmt.Errorf("%s %q: %w", op, p.String(), ErrNotADirectory)
	case errors.Is(err, syscall.EISDIR):
		return fmt.Errorf("%s %q: %w", op, p.String(), ErrIsADirectory)
	case errors.Is(err, syscall.ENOTEMPTY):
		return fmt.Errorf("%s %q: %w", op, p.String(), ErrDirectoryNotEmpty)
	}
	return IOError(op, p, err)
}

// IOError wraps a backend error for operation op on p as ErrIOFailure,
// unless it already carries a storage sentinel or is a context error.
func IOError(op string, p Path, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, c := range classification {
		if errors.Is(err, c.err) {
			return err
		}
	}
	return fmt.Errorf("%s %q: %w: %w", op, p.String(), ErrIOFailure, err)
}

func errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, sentinel)...)
}
