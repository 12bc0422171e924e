package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
)

// EnvPrefix is the prefix of environment variables overriding configuration keys,
// e.g. CAPSTONE_SINK_URL overrides sink.url.
const EnvPrefix = "CAPSTONE"

// NewViper returns a viper instance seeded with the defaults of Default() and
// bound to CAPSTONE_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every key of cfg as a viper default so that environment
// variables and flags can override any of them.
func SetDefaults(v *viper.Viper, cfg *JobConfig) {
	v.SetDefault("environment", string(cfg.Environment))
	v.SetDefault("tag", cfg.Tag)
	v.SetDefault("shard_count", cfg.ShardCount)
	v.SetDefault("shard_strategy", cfg.ShardStrategy)
	v.SetDefault("workers", cfg.Workers)

	v.SetDefault("source.url", cfg.Source.URL)
	v.SetDefault("source.input_prefix", cfg.Source.InputPrefix)
	v.SetDefault("source.dataset", cfg.Source.Dataset)
	v.SetDefault("source.questions_file", cfg.Source.QuestionsFile)
	v.SetDefault("source.answers_file", cfg.Source.AnswersFile)

	v.SetDefault("sink.url", cfg.Sink.URL)
	v.SetDefault("sink.output_prefix", cfg.Sink.OutputPrefix)
	v.SetDefault("sink.compression", cfg.Sink.Compression)
	v.SetDefault("sink.write_timeout", cfg.Sink.WriteTimeout)
	v.SetDefault("sink.retry_attempts", cfg.Sink.RetryAttempts)
	v.SetDefault("sink.retry_delay", cfg.Sink.RetryDelay)
	v.SetDefault("sink.rate_limit_per_sec", cfg.Sink.RateLimitPerSec)
	v.SetDefault("sink.breaker_threshold", cfg.Sink.BreakerThreshold)
	v.SetDefault("sink.breaker_cooldown", cfg.Sink.BreakerCooldown)

	v.SetDefault("aws.region", cfg.AWS.Region)
	v.SetDefault("aws.profile", cfg.AWS.Profile)
	v.SetDefault("aws.endpoint", cfg.AWS.Endpoint)
	v.SetDefault("aws.use_path_style", cfg.AWS.UsePathStyle)
	v.SetDefault("aws.upload_part_size", cfg.AWS.UploadPartSize)

	v.SetDefault("gcs.credentials_file", cfg.GCS.CredentialsFile)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing", cfg.Observability.Tracing)
	v.SetDefault("observability.push_gateway", cfg.Observability.PushGateway)
}

// ReadFile merges a YAML configuration file into v. ${VAR} references in the
// file are replaced by environment variable values before parsing.
func ReadFile(v *viper.Viper, filePath string) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return jobserrors.Wrap(err, jobserrors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", filePath)
	}

	v.SetConfigType("yaml")
	if err := v.MergeConfig(bytes.NewReader([]byte(substituteEnvVars(string(data))))); err != nil {
		return jobserrors.Wrap(err, jobserrors.ErrorTypeConfig, "failed to parse config file").
			WithDetail("path", filePath)
	}
	return nil
}

// FromViper decodes the merged viper state into a JobConfig. It does not validate.
func FromViper(v *viper.Viper) (*JobConfig, error) {
	cfg := &JobConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeConfig, "failed to decode configuration")
	}
	cfg.Environment = Environment(strings.ToLower(string(cfg.Environment)))
	return cfg, nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	pos := 0
	for {
		start := strings.Index(content[pos:], "${")
		if start == -1 {
			break
		}
		start += pos
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		value := os.Getenv(content[start+2 : end])
		content = content[:start] + value + content[end+1:]
		// substituted values are not expanded again
		pos = start + len(value)
	}
	return content
}
