package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/storage"
)

// Create writes a zip archive of sources to dest on adapter a.
//
// Each source is stored under its base name; directories are walked
// recursively and get explicit "dir/" entries so empty directories survive a
// round trip. File entries are deflated and keep their modification time.
//
// The encoder runs in its own goroutine and feeds Adapter.Write through a
// pipe. If encoding fails, the pipe is closed with the error, the adapter
// discards its temporary data, and dest never appears.
//
// Parameters:
//   - ctx: Context for cancellation
//   - a: Adapter holding both the sources and the destination
//   - sources: Files or directories to include
//   - dest: Archive path, which must not exist
//
// Returns:
//   - int64: Size of the written archive
//   - error: ErrConflict if dest exists, source errors, or write errors
func Create(ctx context.Context, a storage.Adapter, sources []storage.Path, dest storage.Path) (int64, error) {
	if len(sources) == 0 {
		return 0, fmt.Errorf("archive: no items: %w", storage.ErrBadRequest)
	}
	for _, src := range sources {
		if src.IsRoot() {
			return 0, fmt.Errorf("archive: cannot archive the storage root: %w", storage.ErrBadRequest)
		}
		if dest.Within(src) {
			return 0, fmt.Errorf("archive: %q cannot be created inside %q: %w", dest.String(), src.String(), storage.ErrBadRequest)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pr, pw := io.Pipe()

	encodeErr := make(chan error, 1)
	go func() {
		err := encode(ctx, a, sources, pw)
		_ = pw.CloseWithError(err)
		encodeErr <- err
	}()

	n, writeErr := a.Write(ctx, dest, pr, false)

	// Unblock the encoder if Write returned without draining the pipe
	// (conflict, backend error).
	_ = pr.CloseWithError(errWriterDone)
	cancel()
	err := <-encodeErr

	if writeErr != nil {
		// A pipe error carries the encoder's failure, which is more useful
		// than the adapter's view of it.
		if err != nil && !errors.Is(err, errWriterDone) && !errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, writeErr
	}
	return n, nil
}

var errWriterDone = errors.New("archive writer finished")

// encode writes the zip stream for sources to w.
func encode(ctx context.Context, a storage.Adapter, sources []storage.Path, w io.Writer) error {
	zw := zip.NewWriter(w)

	for _, src := range sources {
		base := src.Base()
		err := storage.Walk(ctx, a, src, func(e storage.Entry) error {
			rel, _ := e.Path.Rel(src)
			name := base
			if rel != "" {
				name = base + "/" + rel
			}

			if e.IsDir {
				_, err := zw.CreateHeader(&zip.FileHeader{
					Name:     name + "/",
					Method:   zip.Store,
					Modified: e.LastModified,
				})
				return err
			}

			return addFile(ctx, a, zw, e, name)
		})
		if err != nil {
			return fmt.Errorf("archive %q: %w", src.String(), err)
		}
	}

	return zw.Close()
}

func addFile(ctx context.Context, a storage.Adapter, zw *zip.Writer, e storage.Entry, name string) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: e.LastModified,
	}
	header.SetMode(0644)

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	r, err := a.Open(ctx, e.Path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	buf := make([]byte, storage.CopyBufferSize)
	n, err := io.CopyBuffer(w, storage.ContextReader(ctx, r), buf)
	if err != nil {
		return err
	}

	logger.Debug("archive: added %s (%d bytes)", name, n)
	return nil
}
