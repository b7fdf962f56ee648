package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/storage"
)

// nameField is the form field a client may send before a file part to
// override the part's own file name.
const nameField = "name"

// maxFieldSize caps non-file form fields, which are read into memory.
const maxFieldSize = 4096

// FileResult reports the outcome for one uploaded file part.
type FileResult struct {
	// Name is the file name as sent by the client
	Name string `json:"name"`

	// Path is the root-relative location the file was stored at
	Path string `json:"path,omitempty"`

	// Size is the number of bytes stored
	Size int64 `json:"size"`

	// Error is the error code when the file was not stored
	Error storage.Code `json:"error,omitempty"`

	// Message is a human-readable detail for Error
	Message string `json:"message,omitempty"`

	// Err is the underlying error, if any
	Err error `json:"-"`
}

// UploadOptions controls a single upload request.
type UploadOptions struct {
	// Overwrite replaces existing files instead of picking a free name
	Overwrite bool
}

// Uploader streams multipart file parts into a storage adapter.
//
// Thread Safety:
// An Uploader holds only configuration and is safe for concurrent use.
type Uploader struct {
	maxFileSize int64
}

// NewUploader creates an Uploader with the given per-file ceiling. A
// non-positive value selects DefaultMaxFileSize.
func NewUploader(maxFileSize int64) *Uploader {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Uploader{maxFileSize: maxFileSize}
}

// MaxFileSize returns the per-file ceiling in bytes.
func (u *Uploader) MaxFileSize() int64 {
	return u.maxFileSize
}

// Upload stores every file part of mr in destDir.
//
// Per-file failures (bad names, conflicts when all suffixes are taken, the
// size ceiling) are reported in the returned results and do not stop the
// remaining parts. A malformed multipart stream or a transport failure stops
// the upload and is returned as an error together with the results gathered
// so far.
//
// Parameters:
//   - ctx: Context for cancellation
//   - a: Destination adapter
//   - destDir: Existing directory receiving the files
//   - mr: Multipart reader over the request body
//   - opts: Upload options
//
// Returns:
//   - []FileResult: One result per file part, in request order
//   - error: ErrNotADirectory/ErrNotFound for destDir, or stream errors
func (u *Uploader) Upload(ctx context.Context, a storage.Adapter, destDir storage.Path, mr *multipart.Reader, opts UploadOptions) ([]FileResult, error) {
	dir, err := a.Stat(ctx, destDir)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir {
		return nil, fmt.Errorf("upload into %q: %w", destDir.String(), storage.ErrNotADirectory)
	}

	results := []FileResult{}
	pendingName := ""

	for {
		part, err := mr.NextPart()
		// Only a bare io.EOF marks the closing boundary; a truncated body
		// comes back wrapped.
		if err == io.EOF {
			return results, nil
		}
		if err != nil {
			return results, streamError(err)
		}

		if part.FileName() == "" {
			if part.FormName() == nameField {
				value, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
				if err != nil {
					_ = part.Close()
					return results, streamError(err)
				}
				pendingName = strings.TrimSpace(string(value))
			}
			_ = part.Close()
			continue
		}

		name := part.FileName()
		if pendingName != "" {
			name, pendingName = pendingName, ""
		}

		result := u.storePart(ctx, a, destDir, name, part, opts)
		results = append(results, result)

		// Close drains whatever the adapter did not consume.
		if err := part.Close(); err != nil {
			return results, streamError(err)
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if result.Err != nil && isStreamFailure(result.Err) {
			return results, result.Err
		}
	}
}

// storePart writes a single file part, trying suffixed names on conflict.
func (u *Uploader) storePart(ctx context.Context, a storage.Adapter, destDir storage.Path, name string, part io.Reader, opts UploadOptions) FileResult {
	result := FileResult{Name: name}

	fail := func(err error) FileResult {
		result.Err = err
		result.Error = storage.ErrorCode(err)
		result.Message = err.Error()
		logger.Warn("upload: %s: %v", name, err)
		return result
	}

	base, err := BaseName(name)
	if err != nil {
		return fail(err)
	}

	body := &sizeLimitReader{r: part, limit: u.maxFileSize, name: base}

	if opts.Overwrite {
		target, err := destDir.Join(base)
		if err != nil {
			return fail(err)
		}
		n, err := a.Write(ctx, target, body, true)
		if err != nil {
			return fail(err)
		}
		return stored(result, target, n)
	}

	for i := 0; i <= MaxSuffix; i++ {
		target, err := Suffixed(destDir, base, i)
		if err != nil {
			return fail(err)
		}

		n, err := a.Write(ctx, target, body, false)
		switch {
		case err == nil:
			return stored(result, target, n)
		case occupied(err) && !body.touched:
			// Nothing was read, so the next candidate can still take the part.
			continue
		default:
			return fail(err)
		}
	}

	return fail(fmt.Errorf("upload %q: no free name after %d attempts: %w", base, MaxSuffix, storage.ErrConflict))
}

func occupied(err error) bool {
	return errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrIsADirectory)
}

func stored(result FileResult, target storage.Path, n int64) FileResult {
	result.Path = target.String()
	result.Size = n
	logger.Debug("upload: stored %s (%d bytes)", target.String(), n)
	return result
}

// sizeLimitReader fails with storage.ErrSizeLimitExceeded once more than
// limit bytes have been read.
type sizeLimitReader struct {
	r       io.Reader
	limit   int64
	read    int64
	name    string
	touched bool
}

func (s *sizeLimitReader) Read(p []byte) (int, error) {
	s.touched = true
	if s.read > s.limit {
		return 0, s.exceeded()
	}

	// Allow one byte past the limit so an exact fit is not rejected.
	if room := s.limit - s.read + 1; int64(len(p)) > room {
		p = p[:room]
	}
	n, err := s.r.Read(p)
	s.read += int64(n)
	if s.read > s.limit {
		return 0, s.exceeded()
	}
	return n, err
}

func (s *sizeLimitReader) exceeded() error {
	return fmt.Errorf("upload %q: larger than %d bytes: %w", s.name, s.limit, storage.ErrSizeLimitExceeded)
}

// streamError classifies a failure of the multipart stream itself.
// Malformed input is the client's fault; idle timeouts and cancellation keep
// their own classification.
func streamError(err error) error {
	if isStreamFailure(err) {
		return err
	}
	return fmt.Errorf("upload: malformed multipart body: %v: %w", err, storage.ErrBadRequest)
}

func isStreamFailure(err error) bool {
	return errors.Is(err, ErrIdleTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
