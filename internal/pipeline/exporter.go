package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/compression"
	jsonpool "github.com/Cornelius-Cellier/capstone-llm/pkg/json"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/metrics"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/models"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/observability"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/storage"
)

// ContentTypeJSON is the content type of exported objects
const ContentTypeJSON = "application/json"

// ExporterConfig configures a RecordExporter
type ExporterConfig struct {
	// WriteTimeout bounds each Put; zero disables the per-record deadline
	WriteTimeout time.Duration
	// Compressor encodes bodies; nil writes plain JSON
	Compressor compression.Compressor
	// Metadata is attached to every written object
	Metadata map[string]string
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// RecordExporter writes the records of a shard to a sink, one object per record.
// It keeps no state between records and is safe for concurrent use by several shards.
type RecordExporter struct {
	sink         storage.Sink
	writeTimeout time.Duration
	compressor   compression.Compressor
	metadata     map[string]string
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewRecordExporter creates an exporter writing to sink
func NewRecordExporter(sink storage.Sink, cfg ExporterConfig) *RecordExporter {
	comp := cfg.Compressor
	if comp == nil {
		comp, _ = compression.NewCompressor(nil)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &RecordExporter{
		sink:         sink,
		writeTimeout: cfg.WriteTimeout,
		compressor:   comp,
		metadata:     cfg.Metadata,
		metrics:      cfg.Metrics,
		logger:       log,
	}
}

// Export writes every record of shard under "{tag}/{id}.json". A failed record
// is recorded in the report and the remaining records are still attempted.
// Once ctx is cancelled no further records are attempted; objects already
// written stay in place.
func (e *RecordExporter) Export(ctx context.Context, shard Shard, tag string) *ExportReport {
	start := time.Now()
	report := &ExportReport{ShardIndex: shard.Index}
	if shard.Len() == 0 {
		return report
	}

	ctx, span := observability.StartSpan(ctx, "export_shard",
		attribute.Int("shard", shard.Index),
		attribute.Int("records", shard.Len()),
		attribute.String("tag", tag),
	)
	log := e.logger.With(zap.Int("shard", shard.Index))

	for i, rec := range shard.Records {
		if ctx.Err() != nil {
			report.Skipped = shard.Len() - i
			log.Warn("export cancelled",
				zap.Int("attempted", report.Attempted),
				zap.Int("skipped", report.Skipped))
			break
		}

		report.Attempted++
		key := rec.ExportKey(tag)
		if err := e.exportRecord(ctx, rec, key); err != nil {
			report.Failures = append(report.Failures, RecordFailure{
				RecordID: rec.ID,
				Key:      key,
				Kind:     jobserrors.TypeOf(err),
				Message:  err.Error(),
				Err:      err,
			})
			log.Warn("record export failed",
				zap.String("record_id", rec.ID.String()),
				zap.String("key", key),
				zap.Error(err))
			if e.metrics != nil {
				e.metrics.ObserveRecord(tag, err)
			}
			continue
		}

		report.Succeeded++
		if e.metrics != nil {
			e.metrics.ObserveRecord(tag, nil)
		}
	}

	report.Duration = time.Since(start)
	if e.metrics != nil {
		e.metrics.ShardDuration.Observe(report.Duration.Seconds())
		e.metrics.ShardsCompleted.Inc()
	}

	var spanErr error
	if report.Failed() > 0 {
		spanErr = jobserrors.New(jobserrors.ErrorTypeSinkUnavailable, "shard had failed records").
			WithDetail("failed", report.Failed())
	}
	span.SetAttributes(
		attribute.Int("succeeded", report.Succeeded),
		attribute.Int("failed", report.Failed()),
	)
	observability.EndSpan(span, spanErr)

	log.Debug("shard exported",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed()),
		zap.Duration("duration", report.Duration))
	return report
}

// exportRecord serializes, encodes and writes a single record
func (e *RecordExporter) exportRecord(ctx context.Context, rec *models.JoinedRecord, key string) error {
	body, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	body, err = e.compressor.Compress(body)
	if err != nil {
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSerialization, "failed to compress record").
			WithDetail("record_id", rec.ID.String())
	}

	putCtx := ctx
	if e.writeTimeout > 0 {
		var cancel context.CancelFunc
		putCtx, cancel = context.WithTimeout(ctx, e.writeTimeout)
		defer cancel()
	}

	attrs := storage.Attributes{
		ContentType:     ContentTypeJSON,
		ContentEncoding: e.compressor.ContentEncoding(),
		Metadata:        e.metadata,
	}

	var timer *metrics.Timer
	if e.metrics != nil {
		timer = metrics.NewTimer()
	}
	err = e.sink.Put(putCtx, key, body, attrs)
	if e.metrics != nil {
		e.metrics.ObservePut(timer.Stop(), err)
	}

	if err != nil {
		return classifyPutError(ctx, putCtx, err, key)
	}
	return nil
}

// classifyPutError gives every sink failure a type. A per-record deadline is
// a sink outage; a cancelled job is reported as cancelled.
func classifyPutError(jobCtx, putCtx context.Context, err error, key string) error {
	switch {
	case jobCtx.Err() != nil:
		return jobserrors.Wrap(err, jobserrors.ErrorTypeCancelled, "export cancelled").
			WithDetail("key", key)
	case errors.Is(putCtx.Err(), context.DeadlineExceeded):
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "write timed out").
			WithDetail("key", key)
	}

	var typed *jobserrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "write failed").
		WithDetail("key", key)
}

// EncodeRecord renders the canonical wire form
// {"id":...,"question":{...},"answer":{...}}.
func EncodeRecord(rec *models.JoinedRecord) ([]byte, error) {
	if rec == nil {
		return nil, jobserrors.New(jobserrors.ErrorTypeSerialization, "nil record")
	}
	body, err := jsonpool.Marshal(rec)
	if err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeSerialization, "failed to encode record").
			WithDetail("record_id", rec.ID.String())
	}
	return body, nil
}

