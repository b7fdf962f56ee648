package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/storage"
)

// encryptedFlag is bit 0 of the zip general purpose flags.
const encryptedFlag = 0x1

// Extract unpacks the zip archive at src into destDir on adapter a.
//
// Entry handling:
//   - Names are joined to destDir with storage.Path.Join; an entry that
//     would escape is skipped with ReasonPathTraversal
//   - Existing targets are never overwritten; they are skipped with
//     ReasonConflict
//   - Symlinks, special files, encrypted entries and unknown compression
//     methods are skipped with ReasonUnsupported
//
// Crossing limits.MaxEntries or limits.MaxBytes stops extraction with
// storage.ErrSizeLimitExceeded. Entries already written are kept; the entry
// being written when the byte ceiling is crossed is discarded by the
// adapter. The report is returned in every case except when the archive
// cannot be opened at all.
func Extract(ctx context.Context, a storage.Adapter, src storage.Path, destDir storage.Path, limits Limits) (*Report, error) {
	// ========================================================================
	// Step 1: Open the archive with random access
	// ========================================================================

	ra, size, release, err := openReaderAt(ctx, a, src)
	if err != nil {
		return nil, err
	}
	defer release()

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("unarchive %q: not a valid zip archive: %w", src.String(), storage.ErrBadRequest)
	}

	if err := a.Mkdir(ctx, destDir); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Extract entries in archive order
	// ========================================================================

	report := newReport()
	quota := newBudget(limits.MaxBytes)

	for i, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if limits.MaxEntries > 0 && i >= limits.MaxEntries {
			return report, fmt.Errorf("unarchive %q: more than %d entries: %w",
				src.String(), limits.MaxEntries, storage.ErrSizeLimitExceeded)
		}

		err := extractEntry(ctx, a, f, destDir, quota, report)
		if err != nil {
			if errors.Is(err, storage.ErrSizeLimitExceeded) {
				return report, fmt.Errorf("unarchive %q: more than %d bytes: %w",
					src.String(), limits.MaxBytes, storage.ErrSizeLimitExceeded)
			}
			return report, err
		}
	}

	return report, nil
}

// extractEntry handles a single entry, recording skips in report. It
// returns an error only when extraction as a whole must stop.
func extractEntry(ctx context.Context, a storage.Adapter, f *zip.File, destDir storage.Path, quota *budget, report *Report) error {
	name := f.Name

	target, err := destDir.Join(name)
	if err != nil {
		reason := ReasonUnsupported
		if errors.Is(err, storage.ErrPathTraversal) {
			reason = ReasonPathTraversal
		}
		logger.Warn("unarchive: skipping entry %q: %v", name, err)
		report.skip(name, reason)
		return nil
	}

	mode := f.Mode()
	isDir := mode.IsDir() || strings.HasSuffix(name, "/")

	switch {
	case mode&fs.ModeSymlink != 0:
		report.skip(name, ReasonUnsupported)
		return nil
	case !isDir && !mode.IsRegular():
		report.skip(name, ReasonUnsupported)
		return nil
	case f.Flags&encryptedFlag != 0:
		report.skip(name, ReasonUnsupported)
		return nil
	}

	if isDir {
		if err := a.Mkdir(ctx, target); err != nil {
			if isSkippable(err) {
				report.skip(name, ReasonConflict)
				return nil
			}
			return err
		}
		return nil
	}

	rc, err := f.Open()
	if err != nil {
		if errors.Is(err, zip.ErrAlgorithm) {
			report.skip(name, ReasonUnsupported)
			return nil
		}
		return fmt.Errorf("unarchive entry %q: %w", name, storage.ErrBadRequest)
	}
	defer func() { _ = rc.Close() }()

	_, err = a.Write(ctx, target, quota.reader(rc), false)
	switch {
	case err == nil:
		report.Extracted = append(report.Extracted, name)
		return nil
	case isSkippable(err):
		report.skip(name, ReasonConflict)
		return nil
	case errors.Is(err, zip.ErrChecksum), errors.Is(err, zip.ErrFormat):
		return fmt.Errorf("unarchive entry %q: corrupt data: %w", name, storage.ErrBadRequest)
	default:
		return err
	}
}

// openReaderAt returns random access to the archive. Adapters whose readers
// implement storage.Sizer are used directly; other streams are spooled to a
// temporary file because the zip central directory sits at the end.
func openReaderAt(ctx context.Context, a storage.Adapter, src storage.Path) (io.ReaderAt, int64, func(), error) {
	r, err := a.Open(ctx, src)
	if err != nil {
		return nil, 0, nil, err
	}

	if sizer, ok := r.(storage.Sizer); ok {
		return sizer, sizer.Size(), func() { _ = r.Close() }, nil
	}
	defer func() { _ = r.Close() }()

	spool, err := os.CreateTemp("", "dittofm-unarchive-*.zip")
	if err != nil {
		return nil, 0, nil, storage.IOError("unarchive", src, err)
	}
	release := func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}

	buf := make([]byte, storage.CopyBufferSize)
	size, err := io.CopyBuffer(spool, storage.ContextReader(ctx, r), buf)
	if err != nil {
		release()
		return nil, 0, nil, storage.IOError("unarchive", src, err)
	}

	return spool, size, release, nil
}
