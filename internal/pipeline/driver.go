// Package pipeline implements the cleaning job: it reads the nested questions
// and answers documents, joins them, splits the joined records into shards and
// exports each shard concurrently, one object per record.
//
// # Flow
//
//	source ──► Join ──► ShardRecords(n) ──► RecordExporter.Export (per shard, bounded workers) ──► JobResult
//
// Structural errors (bad configuration, unreadable or malformed sources) abort
// the run before anything is written. Per-record write failures are collected
// in the shard reports and never stop other records.
//
// # Basic Usage
//
//	driver := pipeline.NewJobDriver(cfg, storage.NewSourceReader(src), sink,
//	    pipeline.WithLogger(log),
//	    pipeline.WithMetrics(metrics.New("capstone")),
//	)
//	result, err := driver.Run(ctx)
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/compression"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/config"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/logger"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/metrics"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/models"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/observability"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/storage"
)

// CollectionReader reads a raw nested collection by key
type CollectionReader interface {
	Read(ctx context.Context, key string) (*models.RawCollection, error)
}

// JobDriver runs one cleaning job from configuration to JobResult
type JobDriver struct {
	cfg     *config.JobConfig
	source  CollectionReader
	sink    storage.Sink
	runID   string
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option configures a JobDriver
type Option func(*JobDriver)

// WithLogger sets the driver logger
func WithLogger(l *zap.Logger) Option {
	return func(d *JobDriver) {
		d.logger = l
	}
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *JobDriver) {
		d.metrics = m
	}
}

// WithRunID overrides the generated run id
func WithRunID(id string) Option {
	return func(d *JobDriver) {
		d.runID = id
	}
}

// NewJobDriver creates a driver. The configuration is validated by Run.
func NewJobDriver(cfg *config.JobConfig, source CollectionReader, sink storage.Sink, opts ...Option) *JobDriver {
	d := &JobDriver{
		cfg:    cfg,
		source: source,
		sink:   sink,
		runID:  uuid.NewString(),
		logger: logger.Get(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunID returns the id stamped on this run's logs, metrics and objects
func (d *JobDriver) RunID() string {
	return d.runID
}

// Run executes the job. A non-nil error means the job aborted: invalid
// configuration, an unreadable or malformed source, or cancellation. Record
// failures are not errors; they are reported in the returned JobResult.
// When cancellation leaves records unexported the partial result is returned
// together with the error.
func (d *JobDriver) Run(ctx context.Context) (result *JobResult, err error) {
	start := time.Now()

	if d.cfg == nil {
		return nil, jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "job config is required")
	}
	if err := d.cfg.Validate(); err != nil {
		return nil, err
	}

	comp, err := newCompressor(d.cfg.Sink.Compression)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, logger.RunIDKey, d.runID)
	ctx = context.WithValue(ctx, logger.TagKey, d.cfg.Tag)
	log := logger.FromContext(ctx, d.logger)

	ctx, span := observability.StartSpan(ctx, "clean_job",
		attribute.String("run_id", d.runID),
		attribute.String("tag", d.cfg.Tag),
		attribute.String("environment", string(d.cfg.Environment)),
		attribute.Int("shard_count", d.cfg.ShardCount),
	)
	defer func() { observability.EndSpan(span, err) }()

	log.Info("starting cleaning job",
		zap.String("environment", string(d.cfg.Environment)),
		zap.Int("shard_count", d.cfg.ShardCount),
		zap.String("shard_strategy", d.cfg.ShardStrategy),
		zap.Int("workers", d.cfg.Workers))

	questions, answers, err := d.readSources(ctx)
	if err != nil {
		log.Error("failed to read sources", zap.Error(err))
		return nil, err
	}

	_, joinSpan := observability.StartSpan(ctx, "join")
	records, err := Join(questions, answers)
	if err == nil {
		joinSpan.SetAttributes(attribute.Int("records", len(records)))
	}
	observability.EndSpan(joinSpan, err)
	if err != nil {
		log.Error("join failed", zap.Error(err))
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.RecordsJoined.Set(float64(len(records)))
	}
	log.Info("joined records",
		zap.Int("questions", len(questions.Items)),
		zap.Int("answers", len(answers.Items)),
		zap.Int("records", len(records)))

	shards, err := ShardRecords(records, d.cfg.ShardCount, d.cfg.ShardStrategy)
	if err != nil {
		return nil, err
	}

	exporter := NewRecordExporter(d.sink, ExporterConfig{
		WriteTimeout: d.cfg.Sink.WriteTimeout,
		Compressor:   comp,
		Metadata:     map[string]string{"run-id": d.runID, "tag": d.cfg.Tag},
		Metrics:      d.metrics,
		Logger:       log,
	})

	reports := make([]*ExportReport, len(shards))
	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for i := range shards {
		shard := shards[i]
		g.Go(func() error {
			// each worker owns its slot
			reports[shard.Index] = exporter.Export(ctx, shard, d.cfg.Tag)
			return nil
		})
	}
	_ = g.Wait()

	result = &JobResult{
		RunID:        d.runID,
		Tag:          d.cfg.Tag,
		Environment:  string(d.cfg.Environment),
		TotalRecords: len(records),
	}
	result.aggregate(reports)
	result.Duration = time.Since(start)

	if d.metrics != nil && result.Succeeded() {
		d.metrics.LastSuccess.SetToCurrentTime()
	}

	fields := []zap.Field{
		zap.Int("total_records", result.TotalRecords),
		zap.Int("succeeded", result.TotalSucceeded),
		zap.Int("failed", result.TotalFailed),
		zap.Int("skipped", result.TotalSkipped),
		zap.Duration("duration", result.Duration),
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !result.Succeeded() {
		log.Warn("cleaning job cancelled", fields...)
		return result, jobserrors.Wrap(ctxErr, jobserrors.ErrorTypeCancelled, "job cancelled").
			WithDetail("run_id", d.runID)
	}
	if result.TotalFailed > 0 {
		log.Warn("cleaning job finished with failures", fields...)
	} else {
		log.Info("cleaning job finished", fields...)
	}
	return result, nil
}

// readSources fetches both collections concurrently. The first failure
// cancels the other read.
func (d *JobDriver) readSources(ctx context.Context) (*models.RawCollection, *models.RawCollection, error) {
	ctx, span := observability.StartSpan(ctx, "read_sources")

	var questions, answers *models.RawCollection
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		questions, err = d.source.Read(gctx, d.cfg.QuestionsKey())
		return err
	})
	g.Go(func() error {
		var err error
		answers, err = d.source.Read(gctx, d.cfg.AnswersKey())
		return err
	})

	err := g.Wait()
	observability.EndSpan(span, err)
	if err != nil {
		return nil, nil, err
	}
	return questions, answers, nil
}

// newCompressor resolves the configured body encoding
func newCompressor(name string) (compression.Compressor, error) {
	algo, err := compression.ParseAlgorithm(name)
	if err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeInvalidArgument, "invalid compression")
	}
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: algo})
	if err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeConfig, "failed to create compressor")
	}
	return comp, nil
}
