package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveRecord(t *testing.T) {
	m := New("test")
	m.ObserveRecord("dbt", nil)
	m.ObserveRecord("dbt", nil)
	m.ObserveRecord("dbt", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsExported.WithLabelValues("dbt", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsExported.WithLabelValues("dbt", StatusFailure)))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := New("test")
	b := New("test")
	a.ShardsCompleted.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.ShardsCompleted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ShardsCompleted))
}

func TestMetrics_ObservePut(t *testing.T) {
	m := New("test")
	m.ObservePut(20*time.Millisecond, nil)
	m.ObservePut(time.Second, errors.New("503"))

	assert.Equal(t, 2, testutil.CollectAndCount(m.PutLatency))
}

func TestMetrics_Push(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New("test")
	m.RecordsJoined.Set(3)
	require.NoError(t, m.Push(context.Background(), srv.URL, "capstone_clean", map[string]string{"tag": "dbt"}))
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/capstone_clean"))
	assert.Contains(t, gotPath, "/tag/dbt")
}
