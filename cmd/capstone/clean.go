package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Cornelius-Cellier/capstone-llm/internal/pipeline"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/config"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/logger"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/metrics"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/observability"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/storage"
)

const (
	serviceName    = "capstone-clean"
	metricsPrefix  = "capstone"
	pushJobName    = "capstone_clean"
	pushTimeout    = 10 * time.Second
	tracingTimeout = 5 * time.Second
)

// flagBindings maps command line flags to configuration keys
var flagBindings = map[string]string{
	"env":            "environment",
	"tag":            "tag",
	"shards":         "shard_count",
	"shard-strategy": "shard_strategy",
	"workers":        "workers",
	"source-url":     "source.url",
	"source-tag":     "source.dataset",
	"sink-url":       "sink.url",
	"output-prefix":  "sink.output_prefix",
	"compression":    "sink.compression",
	"write-timeout":  "sink.write_timeout",
	"retries":        "sink.retry_attempts",
	"rate-limit":     "sink.rate_limit_per_sec",
	"aws-profile":    "aws.profile",
	"aws-endpoint":   "aws.endpoint",
	"log-level":      "observability.log_level",
	"log-format":     "observability.log_format",
	"trace":          "observability.tracing",
	"pushgateway":    "observability.push_gateway",
}

func newCleanCmd() *cobra.Command {
	v := config.NewViper()
	defaults := config.Default()

	var configFile, reportFormat string

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Join questions and answers and export one object per answer",
		Long: `Clean reads input/{source-tag}/questions.json and answers.json, inner-joins every
answer to its question and writes {output-prefix}/{tag}/{answer_id}.json.

Every flag can also be set in a YAML file (--config) or through CAPSTONE_* environment
variables, e.g. CAPSTONE_SINK_URL. Flags win over the environment, which wins over the file.

Example:
  capstone clean --env local --tag python-polars
  capstone clean --env remote --sink-url gs://my-bucket --compression gzip`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				if err := config.ReadFile(v, configFile); err != nil {
					return err
				}
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}

			result, err := runClean(cmd.Context(), cfg, cmd.OutOrStdout(), reportFormat)
			if err != nil {
				return err
			}
			if !result.Succeeded() {
				return errRecordsFailed
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringP("env", "e", "", "Execution environment: local or remote (required)")
	_ = cmd.MarkFlagRequired("env")

	flags.StringP("tag", "t", defaults.Tag, "Tag the exported objects are written under")
	flags.Int("shards", defaults.ShardCount, "Number of export shards")
	flags.String("shard-strategy", defaults.ShardStrategy, "Shard assignment: hash or round_robin")
	flags.Int("workers", defaults.Workers, "Maximum shards exported concurrently")
	flags.String("source-url", defaults.Source.URL, "Bucket holding the input documents (s3://, gs://, file://, mem://)")
	flags.String("source-tag", defaults.Source.Dataset, "Input dataset directory under the input prefix")
	flags.String("sink-url", defaults.Sink.URL, "Bucket the cleaned records are written to")
	flags.String("output-prefix", defaults.Sink.OutputPrefix, "Key prefix of the cleaned records")
	flags.String("compression", defaults.Sink.Compression, "Body encoding: none, gzip, zstd or lz4")
	flags.Duration("write-timeout", defaults.Sink.WriteTimeout, "Timeout of a single object write")
	flags.Int("retries", defaults.Sink.RetryAttempts, "Attempts per object write, including the first")
	flags.Int("rate-limit", defaults.Sink.RateLimitPerSec, "Maximum object writes per second (0 = unlimited)")
	flags.String("aws-profile", defaults.AWS.Profile, "AWS shared-config profile (local environment only)")
	flags.String("aws-endpoint", defaults.AWS.Endpoint, "Custom S3 endpoint, e.g. MinIO (local environment only)")
	flags.String("log-level", defaults.Observability.LogLevel, "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Observability.LogFormat, "Log encoding: json or console")
	flags.Bool("trace", defaults.Observability.Tracing, "Export OpenTelemetry spans to stderr")
	flags.String("pushgateway", defaults.Observability.PushGateway, "Prometheus Pushgateway URL metrics are pushed to when the job ends")

	flags.StringVar(&configFile, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&reportFormat, "report-format", formatJSON, "Report format written to stdout: json or yaml")

	for flag, key := range flagBindings {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}

// runClean wires storage, observability and the job driver for cfg, runs the
// job and writes the report to out. An error means the job could not run to
// completion; record failures are reported in the result.
func runClean(ctx context.Context, cfg *config.JobConfig, out io.Writer, reportFormat string) (*pipeline.JobResult, error) {
	if err := validateFormat(reportFormat); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogFormat,
	}); err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get().With(
		zap.String("component", "capstone-cli"),
		zap.String("source", cfg.Source.URL),
		zap.String("sink", cfg.Sink.URL),
	)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		Enabled:        cfg.Observability.Tracing,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    string(cfg.Environment),
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), tracingTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	opts := storage.OptionsFor(cfg)
	source, err := storage.Open(ctx, cfg.Source.URL, opts)
	if err != nil {
		return nil, err
	}
	defer closeBucket(log, source)

	sink := source
	if cfg.Sink.URL != cfg.Source.URL {
		sink, err = storage.Open(ctx, cfg.Sink.URL, opts)
		if err != nil {
			return nil, err
		}
		defer closeBucket(log, sink)
	}

	m := metrics.New(metricsPrefix)
	driver := pipeline.NewJobDriver(cfg,
		storage.NewSourceReader(source),
		storage.Decorate(sink, cfg.Sink, log),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(m),
	)

	result, runErr := driver.Run(ctx)

	if gw := cfg.Observability.PushGateway; gw != "" {
		pctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		err := m.Push(pctx, gw, pushJobName, map[string]string{"tag": cfg.Tag, "environment": string(cfg.Environment)})
		cancel()
		if err != nil {
			log.Warn("failed to push metrics", zap.String("pushgateway", gw), zap.Error(err))
		}
	}

	if result != nil {
		if err := writeReport(out, result, reportFormat); err != nil {
			return result, err
		}
	}
	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

func closeBucket(log *zap.Logger, b storage.Bucket) {
	if err := b.Close(); err != nil {
		log.Warn("failed to close bucket", zap.String("url", b.URL()), zap.Error(err))
	}
}

func validateFormat(format string) error {
	switch format {
	case formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported report format %q (want json or yaml)", format)
	}
}
