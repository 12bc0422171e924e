package main

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Cornelius-Cellier/capstone-llm/internal/pipeline"
	jsonpool "github.com/Cornelius-Cellier/capstone-llm/pkg/json"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// report is the document written to stdout at the end of a run. Failures are
// listed once at the top level so operators do not have to scan every shard.
type report struct {
	RunID          string                   `json:"run_id" yaml:"run_id"`
	Tag            string                   `json:"tag" yaml:"tag"`
	Environment    string                   `json:"environment" yaml:"environment"`
	Status         string                   `json:"status" yaml:"status"`
	TotalRecords   int                      `json:"total_records" yaml:"total_records"`
	TotalSucceeded int                      `json:"total_succeeded" yaml:"total_succeeded"`
	TotalFailed    int                      `json:"total_failed" yaml:"total_failed"`
	TotalSkipped   int                      `json:"total_skipped" yaml:"total_skipped"`
	Duration       string                   `json:"duration" yaml:"duration"`
	Failures       []pipeline.RecordFailure `json:"failures" yaml:"failures"`
	Shards         []shardSummary           `json:"shards" yaml:"shards"`
}

type shardSummary struct {
	Shard     int    `json:"shard" yaml:"shard"`
	Attempted int    `json:"attempted" yaml:"attempted"`
	Succeeded int    `json:"succeeded" yaml:"succeeded"`
	Failed    int    `json:"failed" yaml:"failed"`
	Skipped   int    `json:"skipped" yaml:"skipped"`
	Duration  string `json:"duration" yaml:"duration"`
}

func newReport(result *pipeline.JobResult) *report {
	status := "succeeded"
	if !result.Succeeded() {
		status = "failed"
	}

	r := &report{
		RunID:          result.RunID,
		Tag:            result.Tag,
		Environment:    result.Environment,
		Status:         status,
		TotalRecords:   result.TotalRecords,
		TotalSucceeded: result.TotalSucceeded,
		TotalFailed:    result.TotalFailed,
		TotalSkipped:   result.TotalSkipped,
		Duration:       result.Duration.String(),
		Failures:       result.Failures(),
		Shards:         make([]shardSummary, 0, len(result.PerShardReports)),
	}
	if r.Failures == nil {
		r.Failures = []pipeline.RecordFailure{}
	}

	for _, rep := range result.PerShardReports {
		if rep == nil {
			continue
		}
		r.Shards = append(r.Shards, shardSummary{
			Shard:     rep.ShardIndex,
			Attempted: rep.Attempted,
			Succeeded: rep.Succeeded,
			Failed:    rep.Failed(),
			Skipped:   rep.Skipped,
			Duration:  rep.Duration.String(),
		})
	}
	return r
}

// writeReport renders result to w in format
func writeReport(w io.Writer, result *pipeline.JobResult, format string) error {
	r := newReport(result)

	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
		return enc.Close()
	case formatJSON, "":
		data, err := jsonpool.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}
