package finder

import (
	"context"
	"fmt"

	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/storage"
)

// copyAcross copies the tree at src to dst, which lives on a different
// storage. dst must not exist.
//
// The tree is walked with List and Open on the source and rebuilt with Mkdir
// and Write on the destination, one file stream at a time. If any step
// fails, whatever was created under dst is removed (best effort) and the
// error is returned.
func copyAcross(ctx context.Context, src, dst location) (err error) {
	ok, err := dst.adapter.Exists(ctx, dst.path)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("copy %q: %q: %w", src.String(), dst.String(), storage.ErrConflict)
	}

	created := false
	defer func() {
		if err == nil || !created {
			return
		}
		cleanupCtx := context.WithoutCancel(ctx)
		if cerr := dst.adapter.Delete(cleanupCtx, dst.path, true); cerr != nil {
			logger.Warn("copy %s: cleanup of %s failed: %v", src, dst, cerr)
		}
	}()

	return storage.Walk(ctx, src.adapter, src.path, func(e storage.Entry) error {
		rel, _ := e.Path.Rel(src.path)
		target, err := dst.path.Join(rel)
		if err != nil {
			return err
		}

		if e.IsDir {
			if err := dst.adapter.Mkdir(ctx, target); err != nil {
				return err
			}
			created = true
			return nil
		}

		if err := copyFile(ctx, src.adapter, e.Path, dst.adapter, target); err != nil {
			return err
		}
		created = true
		return nil
	})
}

func copyFile(ctx context.Context, from storage.Adapter, fromPath storage.Path, to storage.Adapter, toPath storage.Path) error {
	r, err := from.Open(ctx, fromPath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	_, err = to.Write(ctx, toPath, r, false)
	return err
}

// moveAcross copies src to dst on another storage and removes src once every
// write has succeeded.
func moveAcross(ctx context.Context, src, dst location) error {
	if err := copyAcross(ctx, src, dst); err != nil {
		return err
	}
	if err := src.adapter.Delete(ctx, src.path, true); err != nil {
		return fmt.Errorf("move %q: copied to %q but source removal failed: %w", src.String(), dst.String(), err)
	}
	logger.Debug("moved %s to %s across storages", src, dst)
	return nil
}
