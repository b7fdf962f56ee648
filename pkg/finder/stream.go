package finder

import (
	"io"
	"net/http"

	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/marmos91/dittofm/pkg/transfer"
)

func (f *Finder) preview(req *request) (any, error) {
	return nil, f.stream(req, transfer.Inline)
}

func (f *Finder) download(req *request) (any, error) {
	return nil, f.stream(req, transfer.Attachment)
}

// stream writes the raw content of the file at the request path. Errors
// before the first byte still produce an envelope; after that the response
// is marked streamed.
func (f *Finder) stream(req *request, disposition transfer.Disposition) error {
	d, err := transfer.Open(req.ctx, req.adapter, req.path)
	if err != nil {
		return err
	}

	req.streamed = true
	n, err := transfer.Serve(req.w, d, disposition, f.config.StreamIdleTimeout)
	f.metrics.RecordBytesTransferred("download", n)
	return err
}

// uploadResult is the payload of a successful upload.
type uploadResult struct {
	*listing
	Uploads []transfer.FileResult `json:"uploads"`
}

// upload stores the file parts of a multipart body in the request directory.
// Per-file failures are reported in uploads and do not fail the command.
func (f *Finder) upload(req *request) (any, error) {
	body := req.r.Body
	req.r.Body = struct {
		io.Reader
		io.Closer
	}{transfer.IdleReader(req.w, body, f.config.StreamIdleTimeout), body}

	mr, err := req.r.MultipartReader()
	if err != nil {
		return nil, badRequest("invalid upload body: %v", err)
	}

	results, err := f.uploader.Upload(req.ctx, req.adapter, req.path, mr, transfer.UploadOptions{
		Overwrite: req.overwrite,
	})

	var total int64
	for _, res := range results {
		if res.Err != nil {
			f.metrics.RecordUpload(string(res.Error))
			continue
		}
		f.metrics.RecordUpload("stored")
		total += res.Size
	}
	f.metrics.RecordBytesTransferred("upload", total)

	if err != nil {
		if len(results) == 0 {
			return nil, err
		}
		return map[string]any{"uploads": results}, err
	}

	l, err := f.list(req, req.location())
	if err != nil {
		return nil, err
	}
	return uploadResult{listing: l, Uploads: results}, nil
}

// servePublic streams a file through a public link, outside the command
// protocol. Link targets are read-only and always served inline.
func (f *Finder) servePublic(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	rest := r.PathValue("rest")

	adapter, p, err := f.registry.ResolveLink(name, rest)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	d, err := transfer.Open(r.Context(), adapter, p)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	n, err := transfer.Serve(w, d, transfer.Inline, f.config.StreamIdleTimeout)
	f.metrics.RecordBytesTransferred("download", n)
	if err != nil {
		code, _ := storage.Classify(err)
		logger.Warn("public %s/%s: stream aborted after %d bytes (%s): %v", name, rest, n, code, err)
	}
}
