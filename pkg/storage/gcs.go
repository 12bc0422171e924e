package storage

import (
	"context"
	"errors"
	"io"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
)

// GCSBucket reads and writes objects in a Google Cloud Storage bucket below an optional prefix
type GCSBucket struct {
	client *gcstorage.Client
	handle *gcstorage.BucketHandle
	bucket string
	prefix string
}

// NewGCSBucket creates a storage client. In the local environment a service
// account key file may be supplied; remotely Application Default Credentials are used.
func NewGCSBucket(ctx context.Context, bucket, prefix string, opts Options) (*GCSBucket, error) {
	var clientOpts []option.ClientOption
	if opts.Local && opts.GCS.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.GCS.CredentialsFile))
	}

	client, err := gcstorage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeConfig, "failed to create GCS client")
	}

	return &GCSBucket{
		client: client,
		handle: client.Bucket(bucket),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Put writes body to bucket/prefix/key. The object only becomes visible when
// the writer is closed successfully.
func (b *GCSBucket) Put(ctx context.Context, key string, body []byte, attrs Attributes) error {
	fullKey := objectKey(b.prefix, key)

	w := b.handle.Object(fullKey).NewWriter(ctx)
	w.ContentType = attrs.ContentType
	w.ContentEncoding = attrs.ContentEncoding
	w.Metadata = attrs.Metadata

	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "failed to write GCS object").
			WithDetail("bucket", b.bucket).
			WithDetail("key", fullKey)
	}
	if err := w.Close(); err != nil {
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "failed to finalize GCS object").
			WithDetail("bucket", b.bucket).
			WithDetail("key", fullKey)
	}
	return nil
}

// Get reads bucket/prefix/key
func (b *GCSBucket) Get(ctx context.Context, key string) ([]byte, error) {
	fullKey := objectKey(b.prefix, key)

	r, err := b.handle.Object(fullKey).NewReader(ctx)
	if errors.Is(err, gcstorage.ErrObjectNotExist) {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeNotFound, "object not found").
			WithDetail("bucket", b.bucket).
			WithDetail("key", fullKey)
	}
	if err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeSourceUnavailable, "failed to open GCS object").
			WithDetail("bucket", b.bucket).
			WithDetail("key", fullKey)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeSourceUnavailable, "failed to read GCS object").
			WithDetail("bucket", b.bucket).
			WithDetail("key", fullKey)
	}
	return data, nil
}

// URL returns gs://bucket/prefix
func (b *GCSBucket) URL() string {
	if b.prefix == "" {
		return "gs://" + b.bucket
	}
	return "gs://" + objectKey(b.bucket, b.prefix)
}

// Close closes the underlying client
func (b *GCSBucket) Close() error {
	return b.client.Close()
}
