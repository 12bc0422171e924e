// Package metrics provides Prometheus instrumentation for the cleaning job.
//
// Each run owns a private registry so tests and repeated runs never collide on
// global registration. At the end of a run the registry can be pushed to a
// Pushgateway, which is how batch jobs expose metrics to Prometheus.
//
// # Basic Usage
//
//	m := metrics.New("capstone")
//	m.RecordsExported.WithLabelValues(tag, metrics.StatusSuccess).Inc()
//
//	timer := metrics.NewTimer()
//	err := sink.Put(ctx, key, body, attrs)
//	m.ObservePut(timer.Stop(), err)
//
//	_ = m.Push(ctx, "http://pushgateway:9091", "capstone_clean")
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Status label values
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the collectors of a single job run.
type Metrics struct {
	Registry *prometheus.Registry

	// RecordsJoined is the size of the joined record set
	RecordsJoined prometheus.Gauge
	// RecordsExported counts export attempts. Labels: tag, status
	RecordsExported *prometheus.CounterVec
	// PutLatency is the object write latency in seconds. Labels: status
	PutLatency *prometheus.HistogramVec
	// ShardDuration is the wall time of exporting one shard
	ShardDuration prometheus.Histogram
	// ShardsCompleted counts shards whose export finished
	ShardsCompleted prometheus.Counter
	// LastSuccess is the unix time of the last run that exported every record
	LastSuccess prometheus.Gauge
}

// New creates the collectors under namespace on a fresh registry.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RecordsJoined: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_joined",
			Help:      "Number of joined question/answer records in the run",
		}),
		RecordsExported: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_exported_total",
			Help:      "Records written to the object sink",
		}, []string{"tag", "status"}),
		PutLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "put_latency_seconds",
			Help:      "Object write latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		ShardDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shard_duration_seconds",
			Help:      "Time to export one shard",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ShardsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shards_completed_total",
			Help:      "Shards whose export finished",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last fully successful run",
		}),
	}
}

// ObservePut records the latency and outcome of one object write.
func (m *Metrics) ObservePut(d time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.PutLatency.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveRecord counts one exported or failed record for tag.
func (m *Metrics) ObserveRecord(tag string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.RecordsExported.WithLabelValues(tag, status).Inc()
}

// Push sends every collector of the registry to a Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string, groupings map[string]string) error {
	pusher := push.New(gatewayURL, job).Gatherer(m.Registry)
	for name, value := range groupings {
		pusher = pusher.Grouping(name, value)
	}
	return pusher.PushContext(ctx)
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since the timer started. It can be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
