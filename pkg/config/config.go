// Package config provides the configuration of the cleaning job.
// It defines a single JobConfig structure organized into logical sections:
//   - Job: environment, tag, sharding and worker settings
//   - Source: where the nested questions and answers documents live
//   - Sink: where joined records are written and how writes behave
//   - AWS / GCS: client construction settings for each object store
//   - Observability: logging, tracing and metrics push
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Environment = config.EnvironmentRemote
//	cfg.Tag = "dbt"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"path"
	"runtime"
	"time"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/compression"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
)

// Environment selects how storage clients are constructed.
type Environment string

const (
	// EnvironmentLocal runs against developer credentials, optionally with a local S3 endpoint
	EnvironmentLocal Environment = "local"
	// EnvironmentRemote runs with the ambient credential chain of the runtime
	EnvironmentRemote Environment = "remote"
)

// Shard assignment strategies
const (
	ShardStrategyHash       = "hash"
	ShardStrategyRoundRobin = "round_robin"
)

const (
	// DefaultBucketURL is the bucket holding both the inputs and the cleaned output
	DefaultBucketURL = "s3://dataminded-academy-capstone-llm-data-us"
	// DefaultTag is the tag exported when none is given
	DefaultTag = "python-polars"
	// DefaultShardCount is the number of shards the joined set is split into
	DefaultShardCount = 100
)

// JobConfig is the full configuration of one cleaning run.
type JobConfig struct {
	// Environment is either local or remote
	Environment Environment `yaml:"environment" mapstructure:"environment"`
	// Tag names the exported dataset; keys are "{tag}/{id}.json"
	Tag string `yaml:"tag" mapstructure:"tag"`
	// ShardCount is the number of independent export shards
	ShardCount int `yaml:"shard_count" mapstructure:"shard_count"`
	// ShardStrategy is hash or round_robin
	ShardStrategy string `yaml:"shard_strategy" mapstructure:"shard_strategy"`
	// Workers bounds how many shards are exported concurrently
	Workers int `yaml:"workers" mapstructure:"workers"`

	Source        SourceConfig        `yaml:"source" mapstructure:"source"`
	Sink          SinkConfig          `yaml:"sink" mapstructure:"sink"`
	AWS           AWSConfig           `yaml:"aws" mapstructure:"aws"`
	GCS           GCSConfig           `yaml:"gcs" mapstructure:"gcs"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// SourceConfig locates the nested input documents.
type SourceConfig struct {
	// URL of the bucket holding the inputs (s3://, gs://, file://, mem://)
	URL string `yaml:"url" mapstructure:"url"`
	// InputPrefix is the key prefix of all input documents
	InputPrefix string `yaml:"input_prefix" mapstructure:"input_prefix"`
	// Dataset is the directory under InputPrefix holding the two documents
	Dataset string `yaml:"dataset" mapstructure:"dataset"`
	// QuestionsFile and AnswersFile are the document names inside Dataset
	QuestionsFile string `yaml:"questions_file" mapstructure:"questions_file"`
	AnswersFile   string `yaml:"answers_file" mapstructure:"answers_file"`
}

// SinkConfig controls where and how joined records are written.
type SinkConfig struct {
	// URL of the destination bucket
	URL string `yaml:"url" mapstructure:"url"`
	// OutputPrefix is prepended to every export key
	OutputPrefix string `yaml:"output_prefix" mapstructure:"output_prefix"`
	// Compression is none, gzip, zstd or lz4
	Compression string `yaml:"compression" mapstructure:"compression"`
	// WriteTimeout bounds a single object write
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	// RetryAttempts is the total number of attempts per object (1 = no retry)
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	// RetryDelay is the initial backoff between attempts
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	// RateLimitPerSec caps object writes per second across all shards (0 = unlimited)
	RateLimitPerSec int `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	// BreakerThreshold is the number of consecutive failed writes that opens
	// the circuit breaker (0 = disabled)
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	// BreakerCooldown is how long an open circuit rejects writes before probing
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

// AWSConfig configures S3 clients.
type AWSConfig struct {
	Region string `yaml:"region" mapstructure:"region"`
	// Profile is the shared-config profile used in the local environment
	Profile string `yaml:"profile" mapstructure:"profile"`
	// Endpoint overrides the S3 endpoint in the local environment (MinIO, LocalStack)
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// UsePathStyle forces path-style addressing, needed by most local endpoints
	UsePathStyle bool `yaml:"use_path_style" mapstructure:"use_path_style"`
	// UploadPartSize is the multipart part size of the uploader in bytes
	UploadPartSize int64 `yaml:"upload_part_size" mapstructure:"upload_part_size"`
}

// GCSConfig configures Google Cloud Storage clients.
type GCSConfig struct {
	// CredentialsFile is a service account key used in the local environment
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// ObservabilityConfig configures logging, tracing and metrics.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`
	// Tracing enables the stdout span exporter
	Tracing bool `yaml:"tracing" mapstructure:"tracing"`
	// PushGateway is the Prometheus Pushgateway URL metrics are pushed to at job end
	PushGateway string `yaml:"push_gateway" mapstructure:"push_gateway"`
}

// Default returns a JobConfig populated with the production defaults.
// Environment is left empty because it must always be chosen explicitly.
func Default() *JobConfig {
	return &JobConfig{
		Tag:           DefaultTag,
		ShardCount:    DefaultShardCount,
		ShardStrategy: ShardStrategyHash,
		Workers:       runtime.NumCPU() * 2,
		Source: SourceConfig{
			URL:           DefaultBucketURL,
			InputPrefix:   "input",
			Dataset:       "dbt",
			QuestionsFile: "questions.json",
			AnswersFile:   "answers.json",
		},
		Sink: SinkConfig{
			URL:              DefaultBucketURL,
			OutputPrefix:     "cleaned",
			Compression:      string(compression.None),
			WriteTimeout:     30 * time.Second,
			RetryAttempts:    3,
			RetryDelay:       200 * time.Millisecond,
			RateLimitPerSec:  0,
			BreakerThreshold: 25,
			BreakerCooldown:  10 * time.Second,
		},
		AWS: AWSConfig{
			Region:         "us-east-1",
			UploadPartSize: 5 * 1024 * 1024,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration before any I/O happens. All failures are
// ErrorTypeInvalidArgument.
func (c *JobConfig) Validate() error {
	switch c.Environment {
	case EnvironmentLocal, EnvironmentRemote:
	case "":
		return jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "environment is required")
	default:
		return jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "environment must be local or remote").
			WithDetail("environment", c.Environment)
	}
	if c.Tag == "" {
		return jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "tag is required")
	}
	if c.ShardCount <= 0 {
		return jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "shard_count must be positive").
			WithDetail("shard_count", c.ShardCount)
	}
	switch c.ShardStrategy {
	case ShardStrategyHash, ShardStrategyRoundRobin:
	default:
		return jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "unknown shard_strategy").
			WithDetail("shard_strategy", c.ShardStrategy)
	}
	if c.Workers <= 0 {
		return jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "workers must be positive").
			WithDetail("workers", c.Workers)
	}
	if c.Source.URL == "" {
		return jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "source.url is required")
	}
	if c.Sink.URL == "" {
		return jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "sink.url is required")
	}
	if _, err := compression.ParseAlgorithm(c.Sink.Compression); err != nil {
		return jobserrors.Wrap(err, jobserrors.ErrorTypeInvalidArgument, "invalid sink.compression")
	}
	if c.Sink.WriteTimeout < 0 {
		return jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "sink.write_timeout cannot be negative")
	}
	if c.Sink.RetryAttempts < 1 {
		return jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "sink.retry_attempts must be at least 1")
	}
	if c.Sink.RateLimitPerSec < 0 {
		return jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "sink.rate_limit_per_sec cannot be negative")
	}
	if c.Sink.BreakerThreshold < 0 || c.Sink.BreakerCooldown < 0 {
		return jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "sink breaker settings cannot be negative")
	}
	return nil
}

// QuestionsKey is the source key of the nested questions document
func (c *JobConfig) QuestionsKey() string {
	return path.Join(c.Source.InputPrefix, c.Source.Dataset, c.Source.QuestionsFile)
}

// AnswersKey is the source key of the nested answers document
func (c *JobConfig) AnswersKey() string {
	return path.Join(c.Source.InputPrefix, c.Source.Dataset, c.Source.AnswersFile)
}

// IsLocal reports whether the job runs in the local environment
func (c *JobConfig) IsLocal() bool {
	return c.Environment == EnvironmentLocal
}
