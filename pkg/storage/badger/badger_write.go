package badger

import (
	"context"
	"fmt"
	"io"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittofm/pkg/storage"
)

// Write streams r into the file at p.
//
// Content is chunked under a fresh blob ID first; the record referencing it
// is committed afterwards in one transaction that re-checks the conflict
// rule and creates missing parents. The blob of a replaced file is removed
// after the commit.
func (s *BadgerAdapter) Write(ctx context.Context, p storage.Path, r io.Reader, overwrite bool) (n int64, err error) {
	defer s.observe("write", time.Now(), &err)

	// ========================================================================
	// Step 1: Check preconditions before touching the stream
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if p.IsRoot() {
		return 0, fmt.Errorf("write %q: %w", p.String(), storage.ErrIsADirectory)
	}

	err = s.db.View(func(txn *badger.Txn) error {
		return checkWritable(txn, p, overwrite)
	})
	if err != nil {
		return 0, storage.IOError("write", p, err)
	}

	// ========================================================================
	// Step 2: Stream content into a new blob
	// ========================================================================

	blob, n, err := s.writeBlob(ctx, r)
	if err != nil {
		return n, fmt.Errorf("write %q: %w", p.String(), err)
	}

	// ========================================================================
	// Step 3: Commit the record
	// ========================================================================

	var replaced string
	now := time.Now()
	err = s.update(func(txn *badger.Txn) error {
		replaced = ""
		if err := checkWritable(txn, p, overwrite); err != nil {
			return err
		}
		if old, err := get(txn, p); err == nil {
			replaced = old.Blob
		}
		if err := ensureParents(txn, p, true, now); err != nil {
			return err
		}
		return put(txn, p, &record{Size: n, Modified: now, Blob: blob, ChunkSize: s.chunkSize})
	})
	if err != nil {
		s.deleteBlob(blob)
		return n, storage.IOError("write", p, err)
	}

	s.deleteBlob(replaced)
	s.metrics.RecordBytes("write", n)
	return n, nil
}

// checkWritable applies the Write conflict rules to p.
func checkWritable(txn *badger.Txn, p storage.Path, overwrite bool) error {
	rec, err := get(txn, p)
	if err != nil {
		if storage.ErrorCode(err) == storage.CodeNotFound {
			return nil
		}
		return err
	}
	if rec.Dir {
		return fmt.Errorf("%q: %w", p.String(), storage.ErrIsADirectory)
	}
	if !overwrite {
		return fmt.Errorf("%q: %w", p.String(), storage.ErrConflict)
	}
	return nil
}

// Mkdir creates the directory at p and any missing parents.
func (s *BadgerAdapter) Mkdir(ctx context.Context, p storage.Path) (err error) {
	defer s.observe("mkdir", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}
	if p.IsRoot() {
		return nil
	}

	now := time.Now()
	err = s.update(func(txn *badger.Txn) error {
		rec, err := get(txn, p)
		if err == nil {
			if rec.Dir {
				return nil
			}
			return fmt.Errorf("%q: %w", p.String(), storage.ErrConflict)
		}
		if storage.ErrorCode(err) != storage.CodeNotFound {
			return err
		}

		if err := ensureParents(txn, p, true, now); err != nil {
			return err
		}
		return put(txn, p, &record{Dir: true, Modified: now})
	})
	return storage.IOError("mkdir", p, err)
}

// Delete removes the entry at p.
//
// Records are removed in one transaction; the blobs they referenced are
// removed afterwards.
func (s *BadgerAdapter) Delete(ctx context.Context, p storage.Path, recursive bool) (err error) {
	defer s.observe("delete", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}
	if p.IsRoot() {
		return fmt.Errorf("delete: cannot delete the storage root: %w", storage.ErrBadRequest)
	}

	var blobs []string
	err = s.update(func(txn *badger.Txn) error {
		blobs = nil

		nodes, err := subtree(txn, p)
		if err != nil {
			return err
		}
		if !recursive && len(nodes) > 1 {
			return fmt.Errorf("%q: %w", p.String(), storage.ErrDirectoryNotEmpty)
		}

		for _, n := range nodes {
			if err := txn.Delete(keyEntry(n.path)); err != nil {
				return err
			}
			if n.rec.Blob != "" {
				blobs = append(blobs, n.rec.Blob)
			}
		}
		return nil
	})
	if err != nil {
		return storage.IOError("delete", p, err)
	}

	for _, blob := range blobs {
		s.deleteBlob(blob)
	}
	return nil
}
