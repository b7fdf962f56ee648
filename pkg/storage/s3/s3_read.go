package s3

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittofm/pkg/storage"
)

// List returns the direct children of the directory at p.
//
// Uses a delimited ListObjectsV2 scan: common prefixes are subdirectories,
// objects are files. Implicit directories have no modification time.
func (s *S3Adapter) List(ctx context.Context, p storage.Path) (entries []storage.Entry, err error) {
	defer s.observe("list", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !p.IsRoot() {
		e, err := s.Stat(ctx, p)
		if err != nil {
			return nil, err
		}
		if !e.IsDir {
			return nil, fmt.Errorf("list %q: %w", p.String(), storage.ErrNotADirectory)
		}
	}

	prefix := s.dirKey(p)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("list", p, err)
		}

		for _, cp := range page.CommonPrefixes {
			child, err := s.pathFromKey(aws.ToString(cp.Prefix))
			if err != nil || child.IsRoot() {
				continue
			}
			entries = append(entries, storage.NewEntry(child, true, 0, time.Time{}))
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				// The directory's own marker
				continue
			}
			child, err := s.pathFromKey(key)
			if err != nil || child.IsRoot() {
				continue
			}
			entries = append(entries, storage.NewEntry(child, false, aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified)))
		}
	}

	return entries, nil
}

// Stat returns the entry at p.
//
// A file object takes precedence; otherwise p is a directory if its marker
// exists or any object lives below it.
func (s *S3Adapter) Stat(ctx context.Context, p storage.Path) (entry storage.Entry, err error) {
	defer s.observe("stat", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return storage.Entry{}, err
	}
	if p.IsRoot() {
		return storage.NewEntry(p, true, 0, time.Time{}), nil
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fileKey(p)),
	})
	if err == nil {
		return storage.NewEntry(p, false, aws.ToInt64(head.ContentLength), aws.ToTime(head.LastModified)), nil
	}
	if !isNotFound(err) {
		return storage.Entry{}, classifyS3Error("stat", p, err)
	}

	isDir, modified, err := s.dirExists(ctx, p)
	if err != nil {
		return storage.Entry{}, classifyS3Error("stat", p, err)
	}
	if !isDir {
		return storage.Entry{}, fmt.Errorf("stat %q: %w", p.String(), storage.ErrNotFound)
	}
	return storage.NewEntry(p, true, 0, modified), nil
}

// dirExists reports whether p is a directory, explicit or implied, and the
// modification time of its marker if it has one.
func (s *S3Adapter) dirExists(ctx context.Context, p storage.Path) (bool, time.Time, error) {
	if p.IsRoot() {
		return true, time.Time{}, nil
	}

	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.dirKey(p)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, time.Time{}, err
	}
	if len(out.Contents) == 0 {
		return false, time.Time{}, nil
	}

	var modified time.Time
	if aws.ToString(out.Contents[0].Key) == s.dirKey(p) {
		modified = aws.ToTime(out.Contents[0].LastModified)
	}
	return true, modified, nil
}

// Exists reports whether anything exists at p.
func (s *S3Adapter) Exists(ctx context.Context, p storage.Path) (bool, error) {
	_, err := s.Stat(ctx, p)
	if err == nil {
		return true, nil
	}
	if storage.ErrorCode(err) == storage.CodeNotFound {
		return false, nil
	}
	return false, err
}

// Open returns a reader streaming the object at p.
//
// The body is read lazily; a failure mid-stream surfaces from Read.
func (s *S3Adapter) Open(ctx context.Context, p storage.Path) (rc io.ReadCloser, err error) {
	defer s.observe("open", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.IsRoot() {
		return nil, fmt.Errorf("open %q: %w", p.String(), storage.ErrIsADirectory)
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fileKey(p)),
	})
	if err != nil {
		if isNotFound(err) {
			if isDir, _, dirErr := s.dirExists(ctx, p); dirErr == nil && isDir {
				return nil, fmt.Errorf("open %q: %w", p.String(), storage.ErrIsADirectory)
			}
		}
		return nil, classifyS3Error("open", p, err)
	}

	// Wrap the body to track bytes read
	return &metricsReadCloser{
		ReadCloser: result.Body,
		metrics:    s.metrics,
		operation:  "read",
	}, nil
}

// metricsReadCloser wraps an io.ReadCloser to record bytes read.
type metricsReadCloser struct {
	io.ReadCloser
	metrics   storage.Metrics
	operation string
}

func (m *metricsReadCloser) Read(p []byte) (int, error) {
	n, err := m.ReadCloser.Read(p)
	if n > 0 {
		m.metrics.RecordBytes(m.operation, int64(n))
	}
	return n, err
}
