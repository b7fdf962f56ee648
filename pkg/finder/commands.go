package finder

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/storage"
	"github.com/marmos91/dittofm/pkg/transfer"
)

// validName checks a single path element supplied by the client for a new
// or renamed entry.
func validName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return badRequest("invalid name %q", name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return badRequest("name %q must not contain separators", name)
	}
	return nil
}

// requireDir fails unless loc is an existing directory.
func requireDir(req *request, loc location) error {
	e, err := loc.adapter.Stat(req.ctx, loc.path)
	if err != nil {
		return err
	}
	if !e.IsDir {
		return errorf(storage.ErrNotADirectory, "%q", loc.String())
	}
	return nil
}

func (f *Finder) newFolder(req *request) (any, error) {
	var body struct {
		Name string `json:"name"`
	}
	if err := req.decode(&body); err != nil {
		return nil, err
	}
	if err := validName(body.Name); err != nil {
		return nil, err
	}
	if err := requireDir(req, req.location()); err != nil {
		return nil, err
	}

	target, err := req.path.Join(body.Name)
	if err != nil {
		return nil, err
	}
	if err := req.adapter.Mkdir(req.ctx, target); err != nil {
		return nil, err
	}
	return f.refresh(req)
}

func (f *Finder) newFile(req *request) (any, error) {
	var body struct {
		Name string `json:"name"`
	}
	if err := req.decode(&body); err != nil {
		return nil, err
	}
	if err := validName(body.Name); err != nil {
		return nil, err
	}
	if err := requireDir(req, req.location()); err != nil {
		return nil, err
	}

	target, err := req.path.Join(body.Name)
	if err != nil {
		return nil, err
	}
	if _, err := req.adapter.Write(req.ctx, target, bytes.NewReader(nil), false); err != nil {
		return nil, err
	}
	return f.refresh(req)
}

// save replaces the content of the file at the request path and returns
// the listing of its directory.
func (f *Finder) save(req *request) (any, error) {
	var body struct {
		Content *string `json:"content"`
	}
	if err := req.decode(&body); err != nil {
		return nil, err
	}
	if body.Content == nil {
		return nil, badRequest("missing content")
	}

	if _, err := req.adapter.Write(req.ctx, req.path, strings.NewReader(*body.Content), true); err != nil {
		return nil, err
	}

	parent := req.location()
	parent.path = req.path.Parent()
	return f.list(req, parent)
}

func (f *Finder) rename(req *request) (any, error) {
	var body struct {
		Item string `json:"item"`
		Name string `json:"name"`
	}
	if err := req.decode(&body); err != nil {
		return nil, err
	}
	if err := validName(body.Name); err != nil {
		return nil, err
	}

	src, err := f.resolve(req, body.Item)
	if err != nil {
		return nil, err
	}
	if src.path.IsRoot() {
		return nil, badRequest("cannot rename the storage root")
	}

	to, err := src.path.Parent().Join(body.Name)
	if err != nil {
		return nil, err
	}
	if err := src.adapter.Rename(req.ctx, src.path, to); err != nil {
		return nil, err
	}
	return f.refresh(req)
}

func (f *Finder) delete(req *request) (any, error) {
	var body struct {
		Items []item `json:"items"`
	}
	if err := req.decode(&body); err != nil {
		return nil, err
	}

	locs, err := f.resolveItems(req, body.Items)
	if err != nil {
		return nil, err
	}

	// ===== Step 1: Validate every item before touching anything =====

	for _, loc := range locs {
		if loc.path.IsRoot() {
			return nil, badRequest("cannot delete the storage root")
		}
		ok, err := loc.adapter.Exists(req.ctx, loc.path)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errorf(storage.ErrNotFound, "delete %q", loc.String())
		}
	}

	// ===== Step 2: Delete, skipping items already covered by a parent =====

	for _, loc := range pruneNested(locs) {
		if err := loc.adapter.Delete(req.ctx, loc.path, true); err != nil {
			return nil, err
		}
	}
	return f.refresh(req)
}

// pruneNested drops locations that lie inside another location of the same
// list, and exact duplicates.
func pruneNested(locs []location) []location {
	out := make([]location, 0, len(locs))
	for i, loc := range locs {
		covered := false
		for j, other := range locs {
			if i == j || !loc.sameStorage(other) || !loc.path.Within(other.path) {
				continue
			}
			// Equal paths: keep the first occurrence only.
			if loc.path == other.path && i < j {
				continue
			}
			covered = true
			break
		}
		if !covered {
			out = append(out, loc)
		}
	}
	return out
}

// move relocates items into the directory named by item. Moves between
// storages are composed as copy then delete.
func (f *Finder) move(req *request) (any, error) {
	var body struct {
		Item  string `json:"item"`
		Items []item `json:"items"`
	}
	if err := req.decode(&body); err != nil {
		return nil, err
	}

	dest, err := f.resolve(req, body.Item)
	if err != nil {
		return nil, err
	}
	srcs, err := f.resolveItems(req, body.Items)
	if err != nil {
		return nil, err
	}

	// ===== Step 1: Validate every item before touching anything =====

	if err := requireDir(req, dest); err != nil {
		return nil, err
	}

	targets := make([]location, len(srcs))
	seen := make(map[storage.Path]bool, len(srcs))

	for i, src := range srcs {
		if src.path.IsRoot() {
			return nil, badRequest("cannot move the storage root")
		}
		if _, err := src.adapter.Stat(req.ctx, src.path); err != nil {
			return nil, err
		}
		if src.sameStorage(dest) && dest.path.Within(src.path) {
			return nil, badRequest("cannot move %q into itself", src.String())
		}

		target := dest
		target.path = dest.path.Child(src.path.Base())
		if seen[target.path] {
			return nil, errorf(storage.ErrConflict, "more than one item named %q", src.path.Base())
		}
		seen[target.path] = true

		ok, err := dest.adapter.Exists(req.ctx, target.path)
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, errorf(storage.ErrConflict, "move %q: %q already exists", src.String(), target.String())
		}
		targets[i] = target
	}

	// ===== Step 2: Move, undoing completed moves on failure =====

	for i, src := range srcs {
		if err := relocate(req.ctx, src, targets[i]); err != nil {
			undoMoves(req.ctx, srcs[:i], targets[:i])
			return nil, err
		}
	}
	return f.refresh(req)
}

func relocate(ctx context.Context, src, dst location) error {
	if src.sameStorage(dst) {
		return src.adapter.Move(ctx, src.path, dst.path)
	}
	return moveAcross(ctx, src, dst)
}

// undoMoves moves targets back to srcs, most recent first. Failures are
// logged; the original error is what the client sees.
func undoMoves(ctx context.Context, srcs, targets []location) {
	ctx = context.WithoutCancel(ctx)
	for i := len(srcs) - 1; i >= 0; i-- {
		if err := relocate(ctx, targets[i], srcs[i]); err != nil {
			logger.Error("move: could not restore %s from %s: %v", srcs[i], targets[i], err)
		}
	}
}

// duplicate copies items into the directory named by item, or into the
// request directory. Copies never overwrite: each one takes the first free
// "name (n).ext" slot.
func (f *Finder) duplicate(req *request) (any, error) {
	var body struct {
		Item  string `json:"item"`
		Items []item `json:"items"`
	}
	if err := req.decode(&body); err != nil {
		return nil, err
	}

	dest := req.location()
	if body.Item != "" {
		var err error
		if dest, err = f.resolve(req, body.Item); err != nil {
			return nil, err
		}
	}
	srcs, err := f.resolveItems(req, body.Items)
	if err != nil {
		return nil, err
	}

	// ===== Step 1: Validate every item before touching anything =====

	if err := requireDir(req, dest); err != nil {
		return nil, err
	}
	for _, src := range srcs {
		if src.path.IsRoot() {
			return nil, badRequest("cannot duplicate the storage root")
		}
		if _, err := src.adapter.Stat(req.ctx, src.path); err != nil {
			return nil, err
		}
		if src.sameStorage(dest) && dest.path.Within(src.path) {
			return nil, badRequest("cannot copy %q into itself", src.String())
		}
	}

	// ===== Step 2: Copy each item to its first free name =====

	copies := make([]location, 0, len(srcs))
	for _, src := range srcs {
		target, err := copyToFreeName(req, src, dest)
		if err != nil {
			removeCopies(req.ctx, copies)
			return nil, err
		}
		copies = append(copies, target)
	}
	return f.refresh(req)
}

func copyToFreeName(req *request, src, dest location) (location, error) {
	base := src.path.Base()

	for i := 0; i <= transfer.MaxSuffix; i++ {
		candidate, err := transfer.Suffixed(dest.path, base, i)
		if err != nil {
			return location{}, err
		}
		target := dest
		target.path = candidate

		if src.sameStorage(dest) {
			err = src.adapter.Copy(req.ctx, src.path, target.path)
		} else {
			err = copyAcross(req.ctx, src, target)
		}
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		return target, err
	}
	return location{}, errorf(storage.ErrConflict, "duplicate %q: no free name", src.String())
}

func removeCopies(ctx context.Context, copies []location) {
	ctx = context.WithoutCancel(ctx)
	for _, c := range copies {
		if err := c.adapter.Delete(ctx, c.path, true); err != nil {
			logger.Error("duplicate: could not remove %s: %v", c, err)
		}
	}
}
