// Package s3 implements a storage adapter backed by Amazon S3 or any
// S3-compatible object store.
//
// This file contains the adapter type, its constructor, the key mapping and
// the translation of S3 errors into the storage error taxonomy.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/dittofm/pkg/storage"
)

const (
	// DefaultPartSize is the multipart part size used when none is configured.
	DefaultPartSize = 10 * 1024 * 1024

	minPartSize = 5 * 1024 * 1024
	maxPartSize = 5 * 1024 * 1024 * 1024

	// abortTimeout bounds the cleanup of a failed multipart upload, which
	// runs on a fresh context because the request context may be done.
	abortTimeout = 30 * time.Second

	// deleteBatchSize is the S3 limit for keys in one DeleteObjects call.
	deleteBatchSize = 1000
)

// S3Adapter implements storage.Adapter using Amazon S3 or S3-compatible storage.
//
// Key Design:
//   - A file at "docs/report.pdf" is the object <prefix>docs/report.pdf
//   - A directory is either an explicit marker object ending in "/" (created
//     by Mkdir) or implied by any object below its prefix
//   - The bucket mirrors the tree, so its contents stay inspectable with
//     ordinary S3 tooling
//
// S3 Characteristics:
//   - Small writes are a single PutObject; writes of at least one part use a
//     multipart upload that is completed only after the stream ends cleanly
//     and aborted otherwise, so a failed write never produces an object
//   - No-overwrite writes use conditional requests (If-None-Match: *)
//   - Rename, move and directory copy are server-side copies followed by
//     deletes and are NOT atomic: a failure midway can leave both trees
//     partially populated
//
// Thread Safety:
// This implementation is safe for concurrent use by multiple goroutines.
// Concurrent writes to the same path are last-writer-wins.
type S3Adapter struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	partSize  int64
	metrics   storage.Metrics
}

// Config contains configuration for the S3 adapter.
type Config struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "dittofm/" results in keys like "dittofm/docs/report.pdf"
	KeyPrefix string

	// PartSize is the size of each part for multipart uploads (default: 10MB)
	// Must be between 5MB and 5GB
	PartSize int64

	// Metrics receives operation observations (nil disables them)
	Metrics storage.Metrics
}

// New creates a new S3-based storage adapter.
//
// This verifies bucket access. The bucket must already exist; this function
// does not create it.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: S3 configuration
//
// Returns:
//   - *S3Adapter: Initialized adapter
//   - error: Returns error if bucket access fails or context is cancelled
func New(ctx context.Context, cfg Config) (*S3Adapter, error) {
	// ========================================================================
	// Step 1: Check context before S3 operations
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Validate configuration
	// ========================================================================

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = DefaultPartSize
	}
	if partSize < minPartSize {
		return nil, fmt.Errorf("part size must be at least 5MB, got %d bytes", partSize)
	}
	if partSize > maxPartSize {
		return nil, fmt.Errorf("part size must be at most 5GB, got %d bytes", partSize)
	}

	prefix := strings.Trim(cfg.KeyPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	// ========================================================================
	// Step 3: Verify bucket access
	// ========================================================================

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3Adapter{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: prefix,
		partSize:  partSize,
		metrics:   storage.MetricsOrNoop(cfg.Metrics),
	}, nil
}

// Close is a no-op; the S3 client holds no resources that need releasing.
func (s *S3Adapter) Close() error {
	return nil
}

func (s *S3Adapter) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, time.Since(start), *err)
}

// ============================================================================
// Key mapping
// ============================================================================

// fileKey returns the object key of the file at p.
func (s *S3Adapter) fileKey(p storage.Path) string {
	return s.keyPrefix + p.String()
}

// dirKey returns the marker key of the directory at p, which is also the
// listing prefix of its children. The root maps to the bare key prefix.
func (s *S3Adapter) dirKey(p storage.Path) string {
	if p.IsRoot() {
		return s.keyPrefix
	}
	return s.keyPrefix + p.String() + "/"
}

// pathFromKey maps an object key back to a storage path.
func (s *S3Adapter) pathFromKey(key string) (storage.Path, error) {
	rel := strings.TrimSuffix(strings.TrimPrefix(key, s.keyPrefix), "/")
	return storage.Clean(rel)
}

// copySource renders the CopySource parameter for key, URL-encoding each
// segment as S3 requires.
func (s *S3Adapter) copySource(key string) string {
	segments := strings.Split(s.bucket+"/"+key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// ============================================================================
// Error classification
// ============================================================================

// isNotFound reports whether err is an S3 "no such key" error. GetObject
// returns NoSuchKey while HeadObject, which has no body, returns NotFound.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// isPreconditionFailed reports whether a conditional write lost against an
// existing object.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

// classifyS3Error converts S3 errors for operation op on p into the storage
// error taxonomy.
func classifyS3Error(op string, p storage.Path, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case isNotFound(err):
		return fmt.Errorf("%s %q: %w", op, p.String(), storage.ErrNotFound)
	case isPreconditionFailed(err):
		return fmt.Errorf("%s %q: %w", op, p.String(), storage.ErrConflict)
	}

	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return fmt.Errorf("%s %q: bucket not found: %w: %w", op, p.String(), storage.ErrIOFailure, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		// Include error code for debugging while preserving original error
		return fmt.Errorf("%s %q failed (code: %s): %w: %w", op, p.String(), apiErr.ErrorCode(), storage.ErrIOFailure, err)
	}

	return storage.IOError(op, p, err)
}

var _ storage.Adapter = (*S3Adapter)(nil)
