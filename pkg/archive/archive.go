// Package archive creates and extracts zip archives on top of a storage
// adapter without buffering whole archives in memory.
//
// Create streams the zip encoder through an io.Pipe into Adapter.Write, so
// the archive only becomes visible once it is complete. Extract validates
// every entry name against the destination directory, skips and reports
// entries it refuses to write, and enforces entry and byte ceilings on the
// decompressed data actually read.
package archive

import (
	"errors"
	"io"

	"github.com/marmos91/dittofm/pkg/storage"
)

// Extension is appended to archive names created by the file manager.
const Extension = ".zip"

// SkipReason explains why an entry was not extracted.
type SkipReason string

const (
	// ReasonPathTraversal marks entries whose name would escape the
	// destination (zip-slip).
	ReasonPathTraversal SkipReason = "path_traversal"

	// ReasonConflict marks entries whose target already exists, or whose
	// parent is occupied by a file.
	ReasonConflict SkipReason = "conflict"

	// ReasonUnsupported marks symlinks, special files, encrypted entries and
	// unknown compression methods.
	ReasonUnsupported SkipReason = "unsupported"
)

// SkippedEntry is an archive entry that was not extracted.
type SkippedEntry struct {
	Name   string     `json:"name"`
	Reason SkipReason `json:"reason"`
}

// Report summarizes an extraction. It is returned even when extraction stops
// early, and then describes everything done up to that point.
type Report struct {
	// Extracted lists the names of file entries written
	Extracted []string `json:"extracted"`

	// Skipped lists entries that were refused, in archive order
	Skipped []SkippedEntry `json:"skipped"`
}

func newReport() *Report {
	return &Report{Extracted: []string{}, Skipped: []SkippedEntry{}}
}

func (r *Report) skip(name string, reason SkipReason) {
	r.Skipped = append(r.Skipped, SkippedEntry{Name: name, Reason: reason})
}

// Limits bounds an extraction. Zero values disable a limit.
type Limits struct {
	// MaxEntries is the maximum number of entries, of any kind, processed
	MaxEntries int

	// MaxBytes is the maximum total of decompressed bytes written
	MaxBytes int64
}

// budget counts decompressed bytes across all entries of one extraction.
type budget struct {
	remaining int64
	limited   bool
}

func newBudget(max int64) *budget {
	return &budget{remaining: max, limited: max > 0}
}

// reader wraps r so that reading past the remaining budget fails with
// storage.ErrSizeLimitExceeded.
func (b *budget) reader(r io.Reader) io.Reader {
	if !b.limited {
		return r
	}
	return &budgetReader{r: r, b: b}
}

type budgetReader struct {
	r io.Reader
	b *budget
}

func (br *budgetReader) Read(p []byte) (int, error) {
	if br.b.remaining <= 0 {
		// Distinguish "exactly at the limit" from "over the limit" by
		// probing for one more byte.
		var probe [1]byte
		n, err := br.r.Read(probe[:])
		if n > 0 {
			return 0, storage.ErrSizeLimitExceeded
		}
		return 0, err
	}

	if int64(len(p)) > br.b.remaining {
		p = p[:br.b.remaining]
	}
	n, err := br.r.Read(p)
	br.b.remaining -= int64(n)
	return n, err
}

// isSkippable reports whether a write error means the entry's target is
// occupied rather than that the extraction as a whole failed.
func isSkippable(err error) bool {
	return errors.Is(err, storage.ErrConflict) ||
		errors.Is(err, storage.ErrIsADirectory) ||
		errors.Is(err, storage.ErrNotADirectory)
}
