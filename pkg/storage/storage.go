// Package storage abstracts the object stores the cleaning job reads from and
// writes to. A Bucket is addressed by URL:
//
//	s3://bucket[/prefix]   Amazon S3 (aws-sdk-go-v2)
//	gs://bucket[/prefix]   Google Cloud Storage
//	file:///abs/dir        local directory
//	mem://name             process-local in-memory bucket
//
// Sinks are safe for concurrent Put calls on disjoint keys. Writing an existing
// key replaces the object (last writer wins).
package storage

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/config"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
)

// Attributes are stored alongside an object body
type Attributes struct {
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
}

// Sink writes whole objects.
type Sink interface {
	// Put writes body under key, replacing any existing object.
	// Failures are returned as ErrorTypeSinkUnavailable.
	Put(ctx context.Context, key string, body []byte, attrs Attributes) error
}

// Reader reads whole objects.
type Reader interface {
	// Get returns the body stored under key. A missing key is ErrorTypeNotFound;
	// other failures are ErrorTypeSourceUnavailable.
	Get(ctx context.Context, key string) ([]byte, error)
}

// Bucket is an object store that can be read and written.
type Bucket interface {
	Sink
	Reader
	// URL returns the address the bucket was opened with
	URL() string
	// Close releases client resources
	Close() error
}

// Options control how cloud clients are constructed.
type Options struct {
	// Local selects developer credentials and custom endpoints
	Local bool
	AWS   config.AWSConfig
	GCS   config.GCSConfig
}

// OptionsFor derives bucket options from a job configuration
func OptionsFor(cfg *config.JobConfig) Options {
	return Options{
		Local: cfg.IsLocal(),
		AWS:   cfg.AWS,
		GCS:   cfg.GCS,
	}
}

// Open opens the bucket addressed by rawURL.
func Open(ctx context.Context, rawURL string, opts Options) (Bucket, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeInvalidArgument, "invalid bucket url").
			WithDetail("url", rawURL)
	}

	prefix := strings.Trim(u.Path, "/")

	switch u.Scheme {
	case "s3", "s3a":
		if u.Host == "" {
			return nil, jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "s3 url has no bucket").
				WithDetail("url", rawURL)
		}
		return NewS3Bucket(ctx, u.Host, prefix, opts)
	case "gs":
		if u.Host == "" {
			return nil, jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "gs url has no bucket").
				WithDetail("url", rawURL)
		}
		return NewGCSBucket(ctx, u.Host, prefix, opts)
	case "file":
		dir := u.Path
		if u.Host != "" {
			// file://relative/dir
			dir = path.Join(u.Host, u.Path)
		}
		return NewFileBucket(dir)
	case "mem":
		return NamedMemoryBucket(u.Host), nil
	default:
		return nil, jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "unsupported bucket scheme").
			WithDetail("url", rawURL).
			WithDetail("scheme", u.Scheme)
	}
}

// objectKey joins a bucket prefix and a key
func objectKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "/" + strings.TrimPrefix(key, "/")
}
