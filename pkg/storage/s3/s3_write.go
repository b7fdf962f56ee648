package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittofm/pkg/storage"
)

// Write streams r into the object at p.
//
// Write Behavior:
//   - Content is read in partSize chunks
//   - If the stream ends within the first chunk, it is stored with a single
//     PutObject
//   - Otherwise a multipart upload is started and each chunk uploaded as a
//     part; the upload is completed once the stream ends cleanly
//   - Any read error, cancellation or failed part aborts the upload, so no
//     object appears under p
//
// Memory Usage:
//   - At most one part (default 10MB) is buffered per writer
func (s *S3Adapter) Write(ctx context.Context, p storage.Path, r io.Reader, overwrite bool) (n int64, err error) {
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

	e, err := s.Stat(ctx, p)
	switch {
	case err == nil && e.IsDir:
		return 0, fmt.Errorf("write %q: %w", p.String(), storage.ErrIsADirectory)
	case err == nil && !overwrite:
		return 0, fmt.Errorf("write %q: %w", p.String(), storage.ErrConflict)
	case err != nil && storage.ErrorCode(err) != storage.CodeNotFound:
		return 0, err
	}

	if err := s.checkAncestors(ctx, p); err != nil {
		return 0, err
	}

	// ========================================================================
	// Step 2: Read the first part to choose the upload strategy
	// ========================================================================

	src := storage.ContextReader(ctx, r)
	buf := make([]byte, s.partSize)

	filled, readErr := io.ReadFull(src, buf)
	n = int64(filled)
	if readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("write %q: %w", p.String(), readErr)
	}

	if readErr != nil {
		input := &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(s.fileKey(p)),
			Body:          bytes.NewReader(buf[:filled]),
			ContentLength: aws.Int64(int64(filled)),
			ContentType:   aws.String(storage.MimeTypeByName(p.Base())),
		}
		if !overwrite {
			input.IfNoneMatch = aws.String("*")
		}
		if _, err := s.client.PutObject(ctx, input); err != nil {
			return n, classifyS3Error("write", p, err)
		}
		s.metrics.RecordBytes("write", n)
		return n, nil
	}

	// ========================================================================
	// Step 3: Stream the rest as a multipart upload
	// ========================================================================

	upload := &multipartUpload{s: s, ctx: ctx, key: s.fileKey(p), path: p}
	if err := upload.begin(); err != nil {
		return n, err
	}

	part := buf[:filled]
	for {
		if err := upload.uploadPart(part); err != nil {
			upload.abort()
			return n, err
		}

		filled, readErr = io.ReadFull(src, buf)
		n += int64(filled)
		if errors.Is(readErr, io.EOF) {
			break
		}
		if errors.Is(readErr, io.ErrUnexpectedEOF) {
			if err := upload.uploadPart(buf[:filled]); err != nil {
				upload.abort()
				return n, err
			}
			break
		}
		if readErr != nil {
			upload.abort()
			return n, fmt.Errorf("write %q: %w", p.String(), readErr)
		}
		part = buf[:filled]
	}

	if err := upload.complete(overwrite); err != nil {
		upload.abort()
		return n, err
	}
	return n, nil
}

// checkAncestors fails with ErrNotADirectory if any ancestor of p is a file.
func (s *S3Adapter) checkAncestors(ctx context.Context, p storage.Path) error {
	for dir := p.Parent(); !dir.IsRoot(); dir = dir.Parent() {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.fileKey(dir)),
		})
		if err == nil {
			return fmt.Errorf("%q: %w", dir.String(), storage.ErrNotADirectory)
		}
		if !isNotFound(err) {
			return classifyS3Error("stat", dir, err)
		}
	}
	return nil
}

// multipartUpload tracks an in-progress multipart upload.
type multipartUpload struct {
	s        *S3Adapter
	ctx      context.Context
	key      string
	path     storage.Path
	uploadID string
	parts    []types.CompletedPart
}

func (u *multipartUpload) begin() error {
	out, err := u.s.client.CreateMultipartUpload(u.ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(u.s.bucket),
		Key:         aws.String(u.key),
		ContentType: aws.String(storage.MimeTypeByName(u.path.Base())),
	})
	if err != nil {
		return classifyS3Error("write", u.path, fmt.Errorf("failed to begin multipart upload: %w", err))
	}
	u.uploadID = aws.ToString(out.UploadId)
	return nil
}

func (u *multipartUpload) uploadPart(data []byte) error {
	partNumber := int32(len(u.parts) + 1)

	out, err := u.s.client.UploadPart(u.ctx, &s3.UploadPartInput{
		Bucket:        aws.String(u.s.bucket),
		Key:           aws.String(u.key),
		UploadId:      aws.String(u.uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return classifyS3Error("write", u.path, fmt.Errorf("failed to upload part %d: %w", partNumber, err))
	}

	u.parts = append(u.parts, types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(partNumber),
	})
	u.s.metrics.RecordBytes("write", int64(len(data)))
	return nil
}

func (u *multipartUpload) complete(overwrite bool) error {
	input := &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(u.s.bucket),
		Key:             aws.String(u.key),
		UploadId:        aws.String(u.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: u.parts},
	}
	if !overwrite {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := u.s.client.CompleteMultipartUpload(u.ctx, input); err != nil {
		return classifyS3Error("write", u.path, fmt.Errorf("failed to complete multipart upload: %w", err))
	}
	return nil
}

// abort cancels the upload with a fresh timeout to prevent hangs when the
// request context is already done.
func (u *multipartUpload) abort() {
	abortCtx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()

	_, _ = u.s.client.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.s.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
	})
}

// Mkdir creates an explicit directory marker at p.
//
// Ancestors are implied by the marker's key and need no objects of their own.
func (s *S3Adapter) Mkdir(ctx context.Context, p storage.Path) (err error) {
	defer s.observe("mkdir", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}
	if p.IsRoot() {
		return nil
	}

	e, err := s.Stat(ctx, p)
	if err == nil {
		if e.IsDir {
			return nil
		}
		return fmt.Errorf("mkdir %q: %w", p.String(), storage.ErrConflict)
	}
	if storage.ErrorCode(err) != storage.CodeNotFound {
		return err
	}

	if err := s.checkAncestors(ctx, p); err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.dirKey(p)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
	})
	return classifyS3Error("mkdir", p, err)
}

// Delete removes the entry at p.
//
// Directories are removed with batched DeleteObjects calls covering the
// marker and everything below it.
func (s *S3Adapter) Delete(ctx context.Context, p storage.Path, recursive bool) (err error) {
	defer s.observe("delete", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return err
	}
	if p.IsRoot() {
		return fmt.Errorf("delete: cannot delete the storage root: %w", storage.ErrBadRequest)
	}

	e, err := s.Stat(ctx, p)
	if err != nil {
		return err
	}

	if !e.IsDir {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.fileKey(p)),
		})
		return classifyS3Error("delete", p, err)
	}

	keys, err := s.listKeys(ctx, s.dirKey(p))
	if err != nil {
		return classifyS3Error("delete", p, err)
	}
	if !recursive {
		for _, key := range keys {
			if key != s.dirKey(p) {
				return fmt.Errorf("delete %q: %w", p.String(), storage.ErrDirectoryNotEmpty)
			}
		}
	}

	return classifyS3Error("delete", p, s.deleteKeys(ctx, keys))
}

// listKeys returns every object key starting with prefix.
func (s *S3Adapter) listKeys(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// deleteKeys removes keys in batches of up to 1000.
func (s *S3Adapter) deleteKeys(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("failed to delete %d objects, first %s: %s", len(out.Errors),
				aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}
