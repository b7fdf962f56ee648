// Package transfer implements the streaming upload and download pipelines
// between HTTP bodies and storage adapters.
//
// Uploads are consumed part by part from a multipart.Reader and streamed
// straight into Adapter.Write, so a file is never held in memory. Each file
// is counted against a per-file ceiling while it arrives. Downloads are
// single-pass streams from Adapter.Open with a content type derived from
// the extension or, failing that, sniffed from the first bytes.
//
// Stalled peers are detected with IdleReader and IdleWriter, which push the
// connection deadline forward before every read or write.
package transfer

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/marmos91/dittofm/pkg/storage"
)

// DefaultMaxFileSize is the per-file upload ceiling used when none is
// configured (100 MiB).
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// MaxSuffix bounds the "name (n).ext" search when picking a free name.
const MaxSuffix = 1000

// BaseName reduces a client-supplied file name to its last element.
//
// Both separators are honored so that names sent by Windows clients
// ("C:\Users\x\report.pdf") keep only "report.pdf". Names that reduce to
// nothing usable fail with storage.ErrBadRequest.
func BaseName(raw string) (string, error) {
	name := strings.ReplaceAll(raw, `\`, "/")
	name = strings.TrimRight(name, "/")
	name = path.Base(name)

	switch name {
	case "", ".", "..", "/":
		return "", fmt.Errorf("invalid file name %q: %w", raw, storage.ErrBadRequest)
	}
	if strings.IndexByte(name, 0) >= 0 {
		return "", fmt.Errorf("invalid file name %q: %w", raw, storage.ErrBadRequest)
	}
	return name, nil
}

// Suffixed returns the n-th candidate for name inside dir: the name itself
// for n == 0, then "stem (n).ext".
//
// Dotfiles keep their leading dot as part of the stem: ".env" becomes
// ".env (1)".
func Suffixed(dir storage.Path, name string, n int) (storage.Path, error) {
	if n == 0 {
		return dir.Join(name)
	}

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem, ext = name, ""
	}
	return dir.Join(stem + " (" + strconv.Itoa(n) + ")" + ext)
}
