package s3

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittofm/pkg/storage"
)

// Rename renames an entry within its parent directory.
func (s *S3Adapter) Rename(ctx context.Context, from, to storage.Path) (err error) {
	defer s.observe("rename", time.Now(), &err)

	if err := storage.CheckRename(from, to); err != nil {
		return err
	}
	return s.transfer(ctx, "rename", from, to, true)
}

// Move relocates an entry: server-side copies followed by deletes of the
// source keys.
func (s *S3Adapter) Move(ctx context.Context, from, to storage.Path) (err error) {
	defer s.observe("move", time.Now(), &err)

	if err := storage.CheckMoveTarget(from, to); err != nil {
		return err
	}
	return s.transfer(ctx, "move", from, to, true)
}

// Copy duplicates an entry with server-side copies.
//
// CopyObject is limited to objects of up to 5GB.
func (s *S3Adapter) Copy(ctx context.Context, from, to storage.Path) (err error) {
	defer s.observe("copy", time.Now(), &err)

	if err := storage.CheckMoveTarget(from, to); err != nil {
		return err
	}
	return s.transfer(ctx, "copy", from, to, false)
}

// transfer copies from to to and, if removeSource is set, deletes the source
// keys once every copy succeeded. Copied keys are removed again if a copy
// fails.
func (s *S3Adapter) transfer(ctx context.Context, op string, from, to storage.Path, removeSource bool) error {
	// ========================================================================
	// Step 1: Validate source and destination
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := s.Stat(ctx, from)
	if err != nil {
		return err
	}

	if found, err := s.Exists(ctx, to); err != nil {
		return err
	} else if found {
		return fmt.Errorf("%s %q: %w", op, to.String(), storage.ErrConflict)
	}

	parent, err := s.Stat(ctx, to.Parent())
	if err != nil {
		return err
	}
	if !parent.IsDir {
		return fmt.Errorf("%s %q: %w", op, to.Parent().String(), storage.ErrNotADirectory)
	}

	// ========================================================================
	// Step 2: Collect source keys and their destinations
	// ========================================================================

	var sources []string
	if src.IsDir {
		if sources, err = s.listKeys(ctx, s.dirKey(from)); err != nil {
			return classifyS3Error(op, from, err)
		}
	} else {
		sources = []string{s.fileKey(from)}
	}

	oldPrefix, newPrefix := s.fileKey(from), s.fileKey(to)

	// An implied directory has no keys of its own; give the destination a
	// marker so it exists even when empty.
	if src.IsDir && len(sources) == 0 {
		return s.Mkdir(ctx, to)
	}

	// ========================================================================
	// Step 3: Copy, then delete the source
	// ========================================================================

	var copied []string
	for _, key := range sources {
		target := newPrefix + strings.TrimPrefix(key, oldPrefix)

		_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(target),
			CopySource: aws.String(s.copySource(key)),
		})
		if err != nil {
			_ = s.deleteKeys(context.WithoutCancel(ctx), copied)
			return classifyS3Error(op, from, err)
		}
		copied = append(copied, target)
	}

	if removeSource {
		if err := s.deleteKeys(ctx, sources); err != nil {
			return classifyS3Error(op, from, err)
		}
	}
	return nil
}
