package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/config"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
)

func TestMemoryBucket(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBucket()

	body := []byte(`{"id":"1"}`)
	require.NoError(t, b.Put(ctx, "tag/1.json", body, Attributes{ContentType: "application/json"}))
	body[0] = 'X'

	got, err := b.Get(ctx, "tag/1.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, string(got))

	obj, ok := b.Object("tag/1.json")
	require.True(t, ok)
	assert.Equal(t, "application/json", obj.Attributes.ContentType)

	require.NoError(t, b.Put(ctx, "tag/1.json", []byte(`{}`), Attributes{}))
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 2, b.Puts())

	_, err = b.Get(ctx, "missing")
	assert.True(t, jobserrors.IsType(err, jobserrors.ErrorTypeNotFound))
}

func TestMemoryBucketCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewMemoryBucket()
	err := b.Put(ctx, "k", []byte("v"), Attributes{})
	assert.True(t, jobserrors.IsType(err, jobserrors.ErrorTypeSinkUnavailable))
	assert.Equal(t, 0, b.Len())
}

func TestMemoryBucketConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBucket()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("t/%d.json", i)
			assert.NoError(t, b.Put(ctx, key, []byte("x"), Attributes{}))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, b.Len())
}

func TestNamedMemoryBucketIsShared(t *testing.T) {
	a := NamedMemoryBucket("shared-test")
	b := NamedMemoryBucket("shared-test")
	assert.Same(t, a, b)
	assert.Equal(t, "mem://shared-test", a.URL())
}

func TestFileBucket(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := NewFileBucket(dir)
	require.NoError(t, err)

	require.NoError(t, b.Put(ctx, "cleaned/python-polars/10.json", []byte(`{"id":"10"}`), Attributes{}))

	data, err := os.ReadFile(filepath.Join(dir, "cleaned", "python-polars", "10.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"id":"10"}`, string(data))

	got, err := b.Get(ctx, "cleaned/python-polars/10.json")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(dir, "cleaned", "python-polars"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = b.Get(ctx, "cleaned/python-polars/11.json")
	assert.True(t, jobserrors.IsType(err, jobserrors.ErrorTypeNotFound))
}

func TestFileBucketRejectsEscapingKeys(t *testing.T) {
	b, err := NewFileBucket(t.TempDir())
	require.NoError(t, err)

	err = b.Put(context.Background(), "../outside.json", []byte("x"), Attributes{})
	assert.True(t, jobserrors.IsType(err, jobserrors.ErrorTypeInvalidArgument))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name     string
		url      string
		wantType jobserrors.ErrorType
		wantURL  string
	}{
		{name: "memory", url: "mem://open-test", wantURL: "mem://open-test"},
		{name: "file", url: "file://" + filepath.ToSlash(dir), wantURL: "file://" + filepath.ToSlash(dir)},
		{name: "unknown scheme", url: "ftp://host/dir", wantType: jobserrors.ErrorTypeInvalidArgument},
		{name: "s3 without bucket", url: "s3:///prefix", wantType: jobserrors.ErrorTypeInvalidArgument},
		{name: "gs without bucket", url: "gs:///prefix", wantType: jobserrors.ErrorTypeInvalidArgument},
		{name: "unparsable", url: "://nope", wantType: jobserrors.ErrorTypeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Open(ctx, tt.url, Options{Local: true})
			if tt.wantType != "" {
				require.Error(t, err)
				assert.True(t, jobserrors.IsType(err, tt.wantType), "got %v", err)
				return
			}
			require.NoError(t, err)
			defer b.Close()
			assert.Equal(t, tt.wantURL, b.URL())
		})
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "a.json", objectKey("", "a.json"))
	assert.Equal(t, "cleaned/t/a.json", objectKey("cleaned", "t/a.json"))
	assert.Equal(t, "cleaned/t/a.json", objectKey("cleaned", "/t/a.json"))
}

func TestPrefixedSink(t *testing.T) {
	mem := NewMemoryBucket()
	sink := NewPrefixedSink(mem, "/cleaned/")

	require.NoError(t, sink.Put(context.Background(), "python-polars/1.json", []byte("{}"), Attributes{}))
	assert.Equal(t, []string{"cleaned/python-polars/1.json"}, mem.Keys())

	bare := NewPrefixedSink(mem, "")
	require.NoError(t, bare.Put(context.Background(), "x.json", []byte("{}"), Attributes{}))
	assert.Contains(t, mem.Keys(), "x.json")
}

// flakySink fails the first n puts with the given error type
type flakySink struct {
	mu       sync.Mutex
	failures int
	errType  jobserrors.ErrorType
	calls    int
	next     Sink
}

func (f *flakySink) Put(ctx context.Context, key string, body []byte, attrs Attributes) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return jobserrors.New(f.errType, "injected failure").WithDetail("key", key)
	}
	return f.next.Put(ctx, key, body, attrs)
}

func TestRetryingSink(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond)

	t.Run("recovers from transient errors", func(t *testing.T) {
		mem := NewMemoryBucket()
		flaky := &flakySink{failures: 2, errType: jobserrors.ErrorTypeSinkUnavailable, next: mem}

		err := NewRetryingSink(flaky, policy).Put(context.Background(), "k", []byte("v"), Attributes{})
		require.NoError(t, err)
		assert.Equal(t, 3, flaky.calls)
		assert.Equal(t, 1, mem.Len())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		flaky := &flakySink{failures: 10, errType: jobserrors.ErrorTypeSinkUnavailable, next: NewMemoryBucket()}

		err := NewRetryingSink(flaky, policy).Put(context.Background(), "k", []byte("v"), Attributes{})
		require.Error(t, err)
		assert.True(t, jobserrors.IsType(err, jobserrors.ErrorTypeSinkUnavailable))
		assert.Equal(t, 3, flaky.calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		flaky := &flakySink{failures: 10, errType: jobserrors.ErrorTypeInvalidArgument, next: NewMemoryBucket()}

		err := NewRetryingSink(flaky, policy).Put(context.Background(), "k", []byte("v"), Attributes{})
		require.Error(t, err)
		assert.Equal(t, 1, flaky.calls)
	})

	t.Run("nil policy makes one attempt", func(t *testing.T) {
		flaky := &flakySink{failures: 10, errType: jobserrors.ErrorTypeSinkUnavailable, next: NewMemoryBucket()}

		err := NewRetryingSink(flaky, nil).Put(context.Background(), "k", []byte("v"), Attributes{})
		require.Error(t, err)
		assert.Equal(t, 1, flaky.calls)
	})
}

func TestRetryPolicyDelay(t *testing.T) {
	rp := &RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, rp.delay(0))
	assert.Equal(t, 400*time.Millisecond, rp.delay(2))
	assert.Equal(t, time.Second, rp.delay(10))

	rp.RandomizeFactor = 0.5
	for i := 0; i < 20; i++ {
		d := rp.delay(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rp := NewRetryPolicy(5, time.Hour)

	calls := 0
	sentinel := errors.New("boom")
	err := rp.Execute(ctx, func() error {
		calls++
		cancel()
		return sentinel
	}, func(error) bool { return true })

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestRateLimitedSink(t *testing.T) {
	mem := NewMemoryBucket()

	t.Run("unlimited", func(t *testing.T) {
		sink := NewRateLimitedSink(mem, 0)
		for i := 0; i < 100; i++ {
			require.NoError(t, sink.Put(context.Background(), "k", []byte("v"), Attributes{}))
		}
	})

	t.Run("cancelled wait", func(t *testing.T) {
		sink := NewRateLimitedSink(mem, 0.001)
		ctx := context.Background()
		require.NoError(t, sink.Put(ctx, "first", []byte("v"), Attributes{}))

		ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		err := sink.Put(ctx, "second", []byte("v"), Attributes{})
		require.Error(t, err)
		assert.True(t, jobserrors.IsType(err, jobserrors.ErrorTypeSinkUnavailable))

		_, ok := mem.Object("second")
		assert.False(t, ok)
	})
}

func TestSourceReader(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBucket()
	reader := NewSourceReader(mem)

	require.NoError(t, mem.Put(ctx, "input/dbt/questions.json",
		[]byte(`{"items":[{"question_id":1,"title":"t","body":"b"},{"question_id":2,"title":"t2","body":"b2"}]}`), Attributes{}))

	coll, err := reader.Read(ctx, "input/dbt/questions.json")
	require.NoError(t, err)
	assert.Len(t, coll.Items, 2)
	assert.JSONEq(t, `{"question_id":1,"title":"t","body":"b"}`, string(coll.Items[0]))

	_, err = reader.Read(ctx, "input/dbt/answers.json")
	assert.True(t, jobserrors.IsType(err, jobserrors.ErrorTypeNotFound))
}

func TestDecodeCollection(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		items   int
		wantErr bool
	}{
		{name: "empty items", body: `{"items":[]}`, items: 0},
		{name: "extra fields ignored", body: `{"has_more":false,"items":[{}]}`, items: 1},
		{name: "no items", body: `{"quota_max":300}`, wantErr: true},
		{name: "null items", body: `{"items":null}`, wantErr: true},
		{name: "items not array", body: `{"items":{}}`, wantErr: true},
		{name: "top level array", body: `[{"items":[]}]`, wantErr: true},
		{name: "empty body", body: ``, wantErr: true},
		{name: "truncated", body: `{"items":[`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coll, err := DecodeCollection("k", []byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, jobserrors.IsType(err, jobserrors.ErrorTypeSchema))
				return
			}
			require.NoError(t, err)
			assert.Len(t, coll.Items, tt.items)
		})
	}
}

func TestDecorate(t *testing.T) {
	mem := NewMemoryBucket()
	flaky := &flakySink{failures: 1, errType: jobserrors.ErrorTypeSinkUnavailable, next: mem}

	sink := Decorate(flaky, config.SinkConfig{
		OutputPrefix:    "cleaned",
		RetryAttempts:   2,
		RetryDelay:      time.Millisecond,
		RateLimitPerSec: 1000,
	}, nil)

	require.NoError(t, sink.Put(context.Background(), "python-polars/10.json", []byte("{}"), Attributes{}))
	assert.Equal(t, []string{"cleaned/python-polars/10.json"}, mem.Keys())
	assert.Equal(t, 2, flaky.calls)

	assert.Same(t, Sink(mem), Decorate(mem, config.SinkConfig{RetryAttempts: 1}, nil))
}

func TestOpenCloudBuckets(t *testing.T) {
	ctx := context.Background()

	t.Run("s3", func(t *testing.T) {
		b, err := Open(ctx, "s3://dataminded-academy-capstone-llm-data-us/cleaned", Options{
			Local: true,
			AWS: config.AWSConfig{
				Region:       "us-east-1",
				Endpoint:     "http://localhost:9000",
				UsePathStyle: true,
			},
		})
		require.NoError(t, err)
		defer b.Close()
		assert.IsType(t, &S3Bucket{}, b)
		assert.Equal(t, "s3://dataminded-academy-capstone-llm-data-us/cleaned", b.URL())
	})

	t.Run("gcs", func(t *testing.T) {
		t.Setenv("STORAGE_EMULATOR_HOST", "localhost:9023")

		b, err := Open(ctx, "gs://capstone-llm/cleaned", Options{})
		require.NoError(t, err)
		defer b.Close()
		assert.IsType(t, &GCSBucket{}, b)
		assert.Equal(t, "gs://capstone-llm/cleaned", b.URL())
	})

	t.Run("gcs bucket root", func(t *testing.T) {
		t.Setenv("STORAGE_EMULATOR_HOST", "localhost:9023")

		b, err := Open(ctx, "gs://capstone-llm", Options{})
		require.NoError(t, err)
		defer b.Close()
		assert.Equal(t, "gs://capstone-llm", b.URL())
	})
}
