package badger

import (
	"context"
	"fmt"
	"io"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittofm/pkg/storage"
)

// List returns the direct children of the directory at p with a single
// prefix scan.
func (s *BadgerAdapter) List(ctx context.Context, p storage.Path) (entries []storage.Entry, err error) {
	defer s.observe("list", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		rec, err := get(txn, p)
		if err != nil {
			return err
		}
		if !rec.Dir {
			return fmt.Errorf("%q: %w", p.String(), storage.ErrNotADirectory)
		}

		nodes, err := children(txn, p)
		if err != nil {
			return err
		}

		entries = make([]storage.Entry, 0, len(nodes))
		for _, n := range nodes {
			entries = append(entries, n.rec.toEntry(n.path))
		}
		return nil
	})
	if err != nil {
		return nil, storage.IOError("list", p, err)
	}
	return entries, nil
}

// Stat returns the entry at p.
func (s *BadgerAdapter) Stat(ctx context.Context, p storage.Path) (entry storage.Entry, err error) {
	defer s.observe("stat", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return storage.Entry{}, err
	}

	var rec record
	err = s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = get(txn, p)
		return err
	})
	if err != nil {
		return storage.Entry{}, storage.IOError("stat", p, err)
	}
	return rec.toEntry(p), nil
}

// Exists reports whether anything exists at p.
func (s *BadgerAdapter) Exists(ctx context.Context, p storage.Path) (found bool, err error) {
	defer s.observe("exists", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return false, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = exists(txn, p)
		return err
	})
	if err != nil {
		return false, storage.IOError("exists", p, err)
	}
	return found, nil
}

// Open returns a reader over the file at p.
//
// Chunks are fetched lazily as the reader advances. The reader also
// implements storage.Sizer. If the file is replaced or deleted while being
// read, the next chunk fetch fails with ErrIOFailure.
func (s *BadgerAdapter) Open(ctx context.Context, p storage.Path) (r io.ReadCloser, err error) {
	defer s.observe("open", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec record
	err = s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = get(txn, p)
		return err
	})
	if err != nil {
		return nil, storage.IOError("open", p, err)
	}
	if rec.Dir {
		return nil, fmt.Errorf("open %q: %w", p.String(), storage.ErrIsADirectory)
	}

	return s.newBlobReader(rec), nil
}
