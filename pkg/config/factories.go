package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittofm/internal/logger"
	"github.com/marmos91/dittofm/pkg/metrics"
	"github.com/marmos91/dittofm/pkg/storage"
	storageBadger "github.com/marmos91/dittofm/pkg/storage/badger"
	"github.com/marmos91/dittofm/pkg/storage/local"
	storageS3 "github.com/marmos91/dittofm/pkg/storage/s3"
	"github.com/mitchellh/mapstructure"
)

// defaultS3MaxRetries is the attempt count of the S3 retryer when none is
// configured (the AWS default is 3).
const defaultS3MaxRetries = 10

// LocalStorageOptions configures a local filesystem storage.
type LocalStorageOptions struct {
	// Path is the root directory. It is created if missing.
	Path string `mapstructure:"path"`
}

// S3StorageOptions configures an S3 storage.
type S3StorageOptions struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PartSize        int64  `mapstructure:"part_size"`
	MaxRetries      int    `mapstructure:"max_retries"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// CreateStorage creates a storage adapter based on configuration.
//
// This factory function uses the Type field to determine which adapter
// implementation to create, then decodes the type-specific options from
// the corresponding map and passes them to the adapter's constructor.
//
// Supported types:
//   - "local": pkg/storage/local (a directory on the local filesystem)
//   - "s3": pkg/storage/s3 (Amazon S3 or compatible storage)
//   - "badger": pkg/storage/badger (embedded BadgerDB database)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - key: Storage key, used to label metrics
//   - cfg: Storage configuration
//
// Returns:
//   - storage.Adapter: Initialized adapter
//   - error: Configuration or initialization error
func CreateStorage(ctx context.Context, key string, cfg StorageConfig) (storage.Adapter, error) {
	switch cfg.Type {
	case "local":
		return createLocalStorage(ctx, key, cfg.Local)
	case "s3":
		return createS3Storage(ctx, key, cfg.S3)
	case "badger":
		return createBadgerStorage(ctx, key, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown storage type: %q (supported: local, s3, badger)", cfg.Type)
	}
}

// decodeOptions decodes an option map into out, converting duration and
// size strings along the way.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

func createLocalStorage(ctx context.Context, key string, options map[string]any) (storage.Adapter, error) {
	var opts LocalStorageOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode local storage config: %w", err)
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("local storage: path is required")
	}

	adapter, err := local.New(ctx, opts.Path, metrics.NewStorageMetrics(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create local storage: %w", err)
	}
	return adapter, nil
}

func createS3Storage(ctx context.Context, key string, options map[string]any) (storage.Adapter, error) {
	var opts S3StorageOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode S3 storage config: %w", err)
	}

	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3 storage: bucket is required")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("S3 storage: region is required")
	}

	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}

	adapter, err := storageS3.New(ctx, storageS3.Config{
		Client:    client,
		Bucket:    opts.Bucket,
		KeyPrefix: opts.KeyPrefix,
		PartSize:  opts.PartSize,
		Metrics:   metrics.NewStorageMetrics(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 storage: %w", err)
	}

	logger.Info("S3 storage %q initialized: bucket=%s, region=%s, prefix=%s",
		key, opts.Bucket, opts.Region, opts.KeyPrefix)

	return adapter, nil
}

// newS3Client builds an S3 client from options: region, optional static
// credentials, a custom endpoint (MinIO, Localstack) and a standard retryer.
func newS3Client(ctx context.Context, opts S3StorageOptions) (*awsS3.Client, error) {
	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(opts.Region),
	}

	// Default credential chain unless both keys are given
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultS3MaxRetries
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return awsS3.NewFromConfig(awsCfg, func(o *awsS3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			// MinIO and Localstack need path-style addressing
			o.UsePathStyle = true
		}
		if opts.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

func createBadgerStorage(ctx context.Context, key string, options map[string]any) (storage.Adapter, error) {
	var opts storageBadger.Config
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode badger storage config: %w", err)
	}
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("badger storage: %w", formatValidationError(err))
	}

	adapter, err := storageBadger.New(ctx, opts, metrics.NewStorageMetrics(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create badger storage: %w", err)
	}
	return adapter, nil
}
