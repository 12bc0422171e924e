// Package capstone is the question/answer cleaning job of the capstone LLM project.
//
// The job reads the StackExchange questions and answers exports from object
// storage, flattens both, joins every answer to its question and writes one
// JSON document per answer back to object storage. The documents are the
// training and retrieval corpus of the LLM part of the project.
//
// # Architecture
//
//   - pkg/storage: S3, GCS, local directory and in-memory buckets, plus the
//     prefix, rate-limit, retry and circuit breaker sink decorators
//   - internal/pipeline: join, sharding, per-record export and the job driver
//   - pkg/config: JobConfig with viper loading from flags, CAPSTONE_* variables and YAML
//   - pkg/logger, pkg/metrics, pkg/observability: zap logging, Prometheus
//     metrics pushed to a Pushgateway and OpenTelemetry tracing
//   - cmd/capstone: the command line host
//
// # Quick Start
//
//	capstone clean --env local --tag python-polars
//
// writes s3://dataminded-academy-capstone-llm-data-us/cleaned/python-polars/{answer_id}.json.
//
// # Output
//
// Every object is a JSON document:
//
//	{"id":"10","question":{"question_id":"1","title":"...","body":"..."},
//	 "answer":{"answer_id":"10","question_id":"1","body":"..."}}
//
// Ids are decimal strings whatever their type in the source. Re-running the
// job overwrites the same keys.
package capstone
