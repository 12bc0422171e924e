package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/compression"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/metrics"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/models"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/storage"
)

const testTag = "python-polars"

// failingSink fails puts for selected keys and forwards the rest
type failingSink struct {
	next storage.Sink
	fail map[string]error
}

func (s *failingSink) Put(ctx context.Context, key string, body []byte, attrs storage.Attributes) error {
	if err, ok := s.fail[key]; ok {
		return err
	}
	return s.next.Put(ctx, key, body, attrs)
}

// blockingSink waits for the context on every put
type blockingSink struct{}

func (blockingSink) Put(ctx context.Context, _ string, _ []byte, _ storage.Attributes) error {
	<-ctx.Done()
	return ctx.Err()
}

// cancellingSink cancels the job after the first n puts
type cancellingSink struct {
	mu     sync.Mutex
	next   storage.Sink
	after  int
	cancel context.CancelFunc
	puts   int
}

func (s *cancellingSink) Put(ctx context.Context, key string, body []byte, attrs storage.Attributes) error {
	s.mu.Lock()
	s.puts++
	if s.puts == s.after {
		s.cancel()
	}
	s.mu.Unlock()
	return s.next.Put(context.WithoutCancel(ctx), key, body, attrs)
}

func TestRecordExporter_Scenario(t *testing.T) {
	records, err := Join(
		collection(`{"question_id":1,"title":"t","body":"b"}`),
		collection(`{"answer_id":10,"question_id":1,"body":"a"}`),
	)
	require.NoError(t, err)

	mem := storage.NewMemoryBucket()
	report := NewRecordExporter(mem, ExporterConfig{}).Export(context.Background(), Shard{Records: records}, testTag)

	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, report.Failures)

	obj, ok := mem.Object("python-polars/10.json")
	require.True(t, ok)
	assert.JSONEq(t, `{
		"id": "10",
		"question": {"question_id": "1", "title": "t", "body": "b"},
		"answer": {"answer_id": "10", "question_id": "1", "body": "a"}
	}`, string(obj.Body))
	assert.Equal(t, ContentTypeJSON, obj.Attributes.ContentType)
	assert.Empty(t, obj.Attributes.ContentEncoding)
}

func TestRecordExporter_OneFailureIsIsolated(t *testing.T) {
	records := makeRecords(5)
	mem := storage.NewMemoryBucket()
	failKey := records[2].ExportKey(testTag)
	sink := &failingSink{
		next: mem,
		fail: map[string]error{
			failKey: jobserrors.New(jobserrors.ErrorTypeSinkUnavailable, "simulated outage"),
		},
	}

	report := NewRecordExporter(sink, ExporterConfig{}).Export(context.Background(), Shard{Index: 3, Records: records}, testTag)

	assert.Equal(t, 3, report.ShardIndex)
	assert.Equal(t, 5, report.Attempted)
	assert.Equal(t, 4, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, records[2].ID, report.Failures[0].RecordID)
	assert.Equal(t, failKey, report.Failures[0].Key)
	assert.Equal(t, jobserrors.ErrorTypeSinkUnavailable, report.Failures[0].Kind)

	assert.Equal(t, 4, mem.Len())
	_, written := mem.Object(failKey)
	assert.False(t, written)
}

func TestRecordExporter_UntypedSinkErrorIsSinkUnavailable(t *testing.T) {
	records := makeRecords(1)
	sink := &failingSink{
		next: storage.NewMemoryBucket(),
		fail: map[string]error{records[0].ExportKey(testTag): errors.New("connection reset")},
	}

	report := NewRecordExporter(sink, ExporterConfig{}).Export(context.Background(), Shard{Records: records}, testTag)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, jobserrors.ErrorTypeSinkUnavailable, report.Failures[0].Kind)
	assert.Contains(t, report.Failures[0].Message, "connection reset")
}

func TestRecordExporter_WriteTimeout(t *testing.T) {
	records := makeRecords(2)
	exporter := NewRecordExporter(blockingSink{}, ExporterConfig{WriteTimeout: 10 * time.Millisecond})

	report := exporter.Export(context.Background(), Shard{Records: records}, testTag)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 0, report.Succeeded)
	require.Len(t, report.Failures, 2)
	for _, f := range report.Failures {
		assert.Equal(t, jobserrors.ErrorTypeSinkUnavailable, f.Kind)
		assert.ErrorIs(t, f.Err, context.DeadlineExceeded)
	}
}

func TestRecordExporter_EmptyShard(t *testing.T) {
	mem := storage.NewMemoryBucket()
	report := NewRecordExporter(mem, ExporterConfig{}).Export(context.Background(), Shard{Index: 4}, testTag)

	assert.Equal(t, 4, report.ShardIndex)
	assert.Zero(t, report.Attempted)
	assert.Zero(t, report.Succeeded)
	assert.Empty(t, report.Failures)
	assert.Zero(t, mem.Puts())
}

func TestRecordExporter_Idempotent(t *testing.T) {
	records := makeRecords(10)
	mem := storage.NewMemoryBucket()
	exporter := NewRecordExporter(mem, ExporterConfig{})
	shard := Shard{Records: records}

	exporter.Export(context.Background(), shard, testTag)
	first := make(map[string][]byte)
	for _, k := range mem.Keys() {
		obj, _ := mem.Object(k)
		first[k] = obj.Body
	}

	report := exporter.Export(context.Background(), shard, testTag)
	assert.Equal(t, 10, report.Succeeded)
	assert.Equal(t, 10, mem.Len())
	assert.Equal(t, 20, mem.Puts())
	for _, k := range mem.Keys() {
		obj, _ := mem.Object(k)
		assert.Equal(t, first[k], obj.Body)
	}
}

func TestRecordExporter_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := storage.NewMemoryBucket()
	sink := &cancellingSink{next: mem, after: 3, cancel: cancel}

	report := NewRecordExporter(sink, ExporterConfig{}).Export(ctx, Shard{Records: makeRecords(10)}, testTag)

	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 7, report.Skipped)
	assert.Equal(t, 3, mem.Len())
}

func TestRecordExporter_Compression(t *testing.T) {
	comp, err := compression.NewCompressor(&compression.Config{Algorithm: compression.Gzip})
	require.NoError(t, err)

	records := makeRecords(1)
	mem := storage.NewMemoryBucket()
	report := NewRecordExporter(mem, ExporterConfig{Compressor: comp}).Export(context.Background(), Shard{Records: records}, testTag)
	require.Equal(t, 1, report.Succeeded)

	obj, ok := mem.Object(records[0].ExportKey(testTag))
	require.True(t, ok)
	assert.Equal(t, "gzip", obj.Attributes.ContentEncoding)

	plain, err := comp.Decompress(obj.Body)
	require.NoError(t, err)
	want, err := EncodeRecord(records[0])
	require.NoError(t, err)
	assert.Equal(t, want, plain)
}

func TestRecordExporter_Metrics(t *testing.T) {
	m := metrics.New("test")
	records := makeRecords(3)
	sink := &failingSink{
		next: storage.NewMemoryBucket(),
		fail: map[string]error{records[0].ExportKey(testTag): errors.New("boom")},
	}

	NewRecordExporter(sink, ExporterConfig{Metrics: m}).Export(context.Background(), Shard{Records: records}, testTag)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsExported.WithLabelValues(testTag, metrics.StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsExported.WithLabelValues(testTag, metrics.StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ShardsCompleted))
}

func TestEncodeRecord_NoHTMLEscaping(t *testing.T) {
	rec := models.NewJoinedRecord(
		models.Question{QuestionID: "1", Title: "a < b", Body: "<p>x & y</p>"},
		models.Answer{AnswerID: "2", QuestionID: "1", Body: "<code>ok</code>"},
	)
	body, err := EncodeRecord(rec)
	require.NoError(t, err)
	assert.Equal(t,
		`{"id":"2","question":{"question_id":"1","title":"a < b","body":"<p>x & y</p>"},"answer":{"answer_id":"2","question_id":"1","body":"<code>ok</code>"}}`,
		string(body))

	_, err = EncodeRecord(nil)
	assert.True(t, jobserrors.IsType(err, jobserrors.ErrorTypeSerialization))
}
