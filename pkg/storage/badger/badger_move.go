package badger

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittofm/pkg/storage"
)

// Rename renames an entry within its parent directory.
func (s *BadgerAdapter) Rename(ctx context.Context, from, to storage.Path) (err error) {
	defer s.observe("rename", time.Now(), &err)

	if err := storage.CheckRename(from, to); err != nil {
		return err
	}
	return s.move(ctx, "rename", from, to)
}

// Move relocates an entry and everything below it.
//
// Only records are rewritten; content blobs are shared by reference. The
// whole subtree moves in one transaction, so very large directories may
// exceed badger's transaction size and fail with ErrIOFailure.
func (s *BadgerAdapter) Move(ctx context.Context, from, to storage.Path) (err error) {
	defer s.observe("move", time.Now(), &err)

	if err := storage.CheckMoveTarget(from, to); err != nil {
		return err
	}
	return s.move(ctx, "move", from, to)
}

func (s *BadgerAdapter) move(ctx context.Context, op string, from, to storage.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.update(func(txn *badger.Txn) error {
		nodes, err := subtree(txn, from)
		if err != nil {
			return err
		}
		if err := checkTarget(txn, to); err != nil {
			return err
		}

		for _, n := range nodes {
			target, err := rebase(n.path, from, to)
			if err != nil {
				return err
			}
			if err := txn.Delete(keyEntry(n.path)); err != nil {
				return err
			}
			if err := put(txn, target, &n.rec); err != nil {
				return err
			}
		}
		return nil
	})
	return storage.IOError(op, from, err)
}

// Copy duplicates the entry at from to to, recursing into directories.
//
// Blobs are duplicated first; all new records are then committed in a single
// transaction, so a partial tree never becomes visible.
func (s *BadgerAdapter) Copy(ctx context.Context, from, to storage.Path) (err error) {
	defer s.observe("copy", time.Now(), &err)

	if err := storage.CheckMoveTarget(from, to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// ========================================================================
	// Step 1: Snapshot the source tree and validate the target
	// ========================================================================

	var nodes []node
	err = s.db.View(func(txn *badger.Txn) error {
		var err error
		if nodes, err = subtree(txn, from); err != nil {
			return err
		}
		return checkTarget(txn, to)
	})
	if err != nil {
		return storage.IOError("copy", from, err)
	}

	// ========================================================================
	// Step 2: Duplicate content
	// ========================================================================

	var created []string
	cleanup := func() {
		for _, blob := range created {
			s.deleteBlob(blob)
		}
	}

	now := time.Now()
	copies := make([]node, 0, len(nodes))
	for _, n := range nodes {
		target, err := rebase(n.path, from, to)
		if err != nil {
			cleanup()
			return err
		}

		rec := n.rec
		rec.Modified = now
		if rec.Blob != "" {
			blob, err := s.copyBlob(ctx, n.rec)
			if err != nil {
				cleanup()
				return storage.IOError("copy", n.path, err)
			}
			created = append(created, blob)
			rec.Blob = blob
			rec.ChunkSize = s.chunkSize
		}
		copies = append(copies, node{path: target, rec: rec})
	}

	// ========================================================================
	// Step 3: Commit all records at once
	// ========================================================================

	err = s.update(func(txn *badger.Txn) error {
		if err := checkTarget(txn, to); err != nil {
			return err
		}
		for i := range copies {
			if err := put(txn, copies[i].path, &copies[i].rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		cleanup()
		return storage.IOError("copy", to, err)
	}
	return nil
}

// checkTarget verifies that to is free and its parent is an existing directory.
func checkTarget(txn *badger.Txn, to storage.Path) error {
	found, err := exists(txn, to)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%q: %w", to.String(), storage.ErrConflict)
	}

	parent, err := get(txn, to.Parent())
	if err != nil {
		return err
	}
	if !parent.Dir {
		return fmt.Errorf("%q: %w", to.Parent().String(), storage.ErrNotADirectory)
	}
	return nil
}

// rebase maps p, which lies within from, to the same position below to.
func rebase(p, from, to storage.Path) (storage.Path, error) {
	rel, ok := p.Rel(from)
	if !ok {
		return storage.Path{}, fmt.Errorf("%q is not within %q: %w", p.String(), from.String(), storage.ErrBadRequest)
	}
	return to.Join(rel)
}
