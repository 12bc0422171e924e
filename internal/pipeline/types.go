package pipeline

import (
	"time"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/models"
)

// Shard is one partition of the joined record set. Records keep their input order.
type Shard struct {
	Index   int
	Records []*models.JoinedRecord
}

// Len returns the number of records in the shard
func (s Shard) Len() int {
	return len(s.Records)
}

// RecordFailure describes one record that could not be exported
type RecordFailure struct {
	RecordID models.ID            `json:"record_id" yaml:"record_id"`
	Key      string               `json:"key" yaml:"key"`
	Kind     jobserrors.ErrorType `json:"kind" yaml:"kind"`
	Message  string               `json:"error" yaml:"error"`
	Err      error                `json:"-" yaml:"-"`
}

// ExportReport is the outcome of exporting one shard. Skipped counts records
// never attempted because the job was cancelled.
type ExportReport struct {
	ShardIndex int             `json:"shard" yaml:"shard"`
	Attempted  int             `json:"attempted" yaml:"attempted"`
	Succeeded  int             `json:"succeeded" yaml:"succeeded"`
	Skipped    int             `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Failures   []RecordFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Duration   time.Duration   `json:"duration" yaml:"duration"`
}

// Failed returns the number of attempted records that failed
func (r *ExportReport) Failed() int {
	return len(r.Failures)
}

// JobResult aggregates the export reports of a run
type JobResult struct {
	RunID           string          `json:"run_id" yaml:"run_id"`
	Tag             string          `json:"tag" yaml:"tag"`
	Environment     string          `json:"environment" yaml:"environment"`
	TotalRecords    int             `json:"total_records" yaml:"total_records"`
	TotalSucceeded  int             `json:"total_succeeded" yaml:"total_succeeded"`
	TotalFailed     int             `json:"total_failed" yaml:"total_failed"`
	TotalSkipped    int             `json:"total_skipped,omitempty" yaml:"total_skipped,omitempty"`
	PerShardReports []*ExportReport `json:"shards" yaml:"shards"`
	Duration        time.Duration   `json:"duration" yaml:"duration"`
}

// Succeeded reports whether every joined record was exported
func (r *JobResult) Succeeded() bool {
	return r.TotalFailed == 0 && r.TotalSkipped == 0 && r.TotalSucceeded == r.TotalRecords
}

// Failures lists every failed record across all shards in shard order
func (r *JobResult) Failures() []RecordFailure {
	var out []RecordFailure
	for _, rep := range r.PerShardReports {
		if rep == nil {
			continue
		}
		out = append(out, rep.Failures...)
	}
	return out
}

// aggregate folds reports into the totals of r
func (r *JobResult) aggregate(reports []*ExportReport) {
	r.PerShardReports = reports
	for _, rep := range reports {
		if rep == nil {
			continue
		}
		r.TotalSucceeded += rep.Succeeded
		r.TotalFailed += rep.Failed()
		r.TotalSkipped += rep.Skipped
	}
}
