package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/marmos91/dittofm/pkg/storage"
)

// sniffLen is how much of a stream is inspected when the extension gives no
// content type. It matches mimetype's default read limit.
const sniffLen = 3072

// Disposition selects how a browser should treat a download.
type Disposition string

const (
	// Inline asks the browser to display the content (preview).
	Inline Disposition = "inline"

	// Attachment asks the browser to save the content (download).
	Attachment Disposition = "attachment"
)

// Download is an open file ready to be streamed to a client.
type Download struct {
	Entry       storage.Entry
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Open opens the file at p for download.
//
// The content type comes from the file extension. When the extension is
// unknown, the first bytes are sniffed with mimetype and stitched back in
// front of the body, so Body still yields the whole file.
func Open(ctx context.Context, a storage.Adapter, p storage.Path) (*Download, error) {
	entry, err := a.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if entry.IsDir {
		return nil, fmt.Errorf("download %q: %w", p.String(), storage.ErrIsADirectory)
	}

	body, err := a.Open(ctx, p)
	if err != nil {
		return nil, err
	}

	d := &Download{
		Entry:       entry,
		Body:        body,
		ContentType: entry.MimeType,
		Size:        entry.Size,
	}
	if d.ContentType != "" && d.ContentType != storage.DefaultMimeType {
		return d, nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		_ = body.Close()
		return nil, storage.IOError("download", p, err)
	}
	head = head[:n]

	d.ContentType = mimetype.Detect(head).String()
	d.Body = &stitchedBody{
		Reader: io.MultiReader(bytes.NewReader(head), body),
		closer: body,
	}
	return d, nil
}

type stitchedBody struct {
	io.Reader
	closer io.Closer
}

func (s *stitchedBody) Close() error {
	return s.closer.Close()
}

// Serve writes d to w with the content headers set and closes d.Body.
//
// Headers are written before the first byte, so a failure while streaming
// can only be logged by the caller: the client sees a truncated body whose
// length disagrees with Content-Length.
//
// Returns the number of bytes written.
func Serve(w http.ResponseWriter, d *Download, disposition Disposition, idleTimeout time.Duration) (int64, error) {
	defer func() { _ = d.Body.Close() }()

	h := w.Header()
	h.Set("Content-Type", d.ContentType)
	h.Set("Content-Length", strconv.FormatInt(d.Size, 10))
	h.Set("Content-Disposition", contentDisposition(disposition, d.Entry.Name))
	h.Set("Last-Modified", d.Entry.LastModified.UTC().Format(http.TimeFormat))
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, storage.CopyBufferSize)
	return io.CopyBuffer(IdleWriter(w, idleTimeout), d.Body, buf)
}

func contentDisposition(disposition Disposition, name string) string {
	if v := mime.FormatMediaType(string(disposition), map[string]string{"filename": name}); v != "" {
		return v
	}
	return string(disposition)
}
