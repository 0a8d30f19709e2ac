package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/curtbushko/zoom-sync/internal/config"
	"github.com/curtbushko/zoom-sync/internal/logging"
)

// s3Backend stores recordings in an S3 bucket (or any S3-compatible store
// reachable through a custom endpoint)
type s3Backend struct {
	client       *s3.Client
	uploader     *manager.Uploader
	bucket       string
	storageClass types.StorageClass
	prefix       string
}

// NewS3Backend creates an S3 backend from configuration. Credentials fall
// back to the default AWS credential chain when not set explicitly.
func NewS3Backend(ctx context.Context, cfg config.S3Config) (Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket name")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
		logging.Debug("S3 backend using static credentials from configuration")
	} else {
		logging.Debug("S3 backend using default AWS credential chain")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible stores rarely support virtual-hosted buckets
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})

	storageClass := types.StorageClassStandard
	if cfg.StorageClass != "" {
		storageClass = types.StorageClass(cfg.StorageClass)
	}

	return &s3Backend{
		client:       client,
		uploader:     uploader,
		bucket:       cfg.Bucket,
		storageClass: storageClass,
		prefix:       rootPrefix(cfg.RootFolderName, cfg.UseTimestamp, time.Now()),
	}, nil
}

func (b *s3Backend) Name() string { return "s3" }

func (b *s3Backend) Remote() bool { return true }

// Upload streams the local file to the bucket using multipart upload
func (b *s3Backend) Upload(ctx context.Context, localPath, folder, filename string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s for upload: %w", localPath, err)
	}
	defer file.Close()

	key := objectKey(b.prefix, folder, filename)
	_, err = b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(b.bucket),
		Key:          aws.String(key),
		Body:         file,
		ContentType:  aws.String(contentTypeForFilename(filename)),
		StorageClass: b.storageClass,
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", b.bucket, key, err)
	}

	return nil
}

// VerifySize checks the stored object's ContentLength via HeadObject
func (b *s3Backend) VerifySize(ctx context.Context, folder, filename string, expectedSize int64) VerifyResult {
	key := objectKey(b.prefix, folder, filename)

	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return VerifyResult{Status: StatusMissing}
		}
		return VerifyResult{Status: StatusError, Err: fmt.Errorf("head s3://%s/%s: %w", b.bucket, key, err)}
	}

	if out.ContentLength == nil {
		return VerifyResult{Status: StatusError, Err: fmt.Errorf("no content length for s3://%s/%s", b.bucket, key)}
	}

	return classifySize(*out.ContentLength, expectedSize)
}
