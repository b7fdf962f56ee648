package storage

import (
	"context"
	"errors"
	"sort"
)

// WalkFunc is called for every entry visited by Walk. Returning SkipDir from
// a directory entry skips its children.
type WalkFunc func(e Entry) error

// SkipDir is returned by a WalkFunc to skip a directory's children.
var SkipDir = errors.New("skip directory")

// Walk visits root and everything below it in depth-first, name order.
//
// The tree is read lazily, one List call per directory, so memory use is
// bounded by the depth of the tree rather than its size.
func Walk(ctx context.Context, a Adapter, root Path, fn WalkFunc) error {
	e, err := a.Stat(ctx, root)
	if err != nil {
		return err
	}
	return walk(ctx, a, e, fn)
}

func walk(ctx context.Context, a Adapter, e Entry, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(e); err != nil {
		if err == SkipDir {
			return nil
		}
		return err
	}
	if !e.IsDir {
		return nil
	}

	children, err := a.List(ctx, e.Path)
	if err != nil {
		return err
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })

	for _, child := range children {
		if err := walk(ctx, a, child, fn); err != nil {
			return err
		}
	}
	return nil
}
