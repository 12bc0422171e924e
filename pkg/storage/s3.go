package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
)

const defaultUploadPartSize = 5 * 1024 * 1024 // 5MB

// S3Client is the subset of the S3 API used by S3Bucket
type S3Client interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Bucket reads and writes objects in an S3 bucket below an optional prefix
type S3Bucket struct {
	client   S3Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Bucket builds an S3 client for the environment in opts.
// In the local environment the shared-config profile and a custom endpoint
// (MinIO, LocalStack) are honoured; remotely only the default credential chain is used.
func NewS3Bucket(ctx context.Context, bucket, prefix string, opts Options) (*S3Bucket, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.AWS.Region),
	}
	if opts.Local && opts.AWS.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.AWS.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Local && opts.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.AWS.Endpoint)
		}
		o.UsePathStyle = opts.AWS.UsePathStyle
	})

	return NewS3BucketWithClient(client, bucket, prefix, opts.AWS.UploadPartSize), nil
}

// NewS3BucketWithClient wraps an existing client
func NewS3BucketWithClient(client S3Client, bucket, prefix string, partSize int64) *S3Bucket {
	if partSize < manager.MinUploadPartSize {
		partSize = defaultUploadPartSize
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})

	return &S3Bucket{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
	}
}

// Put uploads body to bucket/prefix/key
func (b *S3Bucket) Put(ctx context.Context, key string, body []byte, attrs Attributes) error {
	input := &s3.PutObjectInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(objectKey(b.prefix, key)),
		Body:     bytes.NewReader(body),
		Metadata: attrs.Metadata,
	}
	if attrs.ContentType != "" {
		input.ContentType = aws.String(attrs.ContentType)
	}
	if attrs.ContentEncoding != "" {
		input.ContentEncoding = aws.String(attrs.ContentEncoding)
	}

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "failed to upload to S3").
			WithDetail("bucket", b.bucket).
			WithDetail("key", aws.ToString(input.Key))
	}
	return nil
}

// Get downloads bucket/prefix/key
func (b *S3Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	fullKey := objectKey(b.prefix, key)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeNotFound, "object not found").
				WithDetail("bucket", b.bucket).
				WithDetail("key", fullKey)
		}
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeSourceUnavailable, "failed to get S3 object").
			WithDetail("bucket", b.bucket).
			WithDetail("key", fullKey)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeSourceUnavailable, "failed to read S3 object").
			WithDetail("bucket", b.bucket).
			WithDetail("key", fullKey)
	}
	return data, nil
}

// URL returns s3://bucket/prefix
func (b *S3Bucket) URL() string {
	if b.prefix == "" {
		return "s3://" + b.bucket
	}
	return "s3://" + objectKey(b.bucket, b.prefix)
}

// Close is a no-op; the SDK client holds no resources that need releasing
func (b *S3Bucket) Close() error {
	return nil
}
