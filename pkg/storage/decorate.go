package storage

import (
	"go.uber.org/zap"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/config"
)

// Decorate wraps base with the write behavior configured in cfg. From the
// outside in: keys are prefixed, the circuit breaker sees one outcome per
// logical write, retries repeat that write, and every attempt passes the
// rate limiter.
func Decorate(base Sink, cfg config.SinkConfig, logger *zap.Logger) Sink {
	var sink Sink = base
	if cfg.RateLimitPerSec > 0 {
		sink = NewRateLimitedSink(sink, float64(cfg.RateLimitPerSec))
	}
	if cfg.RetryAttempts > 1 {
		sink = NewRetryingSink(sink, NewRetryPolicy(cfg.RetryAttempts, cfg.RetryDelay))
	}
	if cfg.BreakerThreshold > 0 {
		sink = NewCircuitBreakerSink(sink, cfg.BreakerThreshold, cfg.BreakerCooldown, logger)
	}
	if cfg.OutputPrefix != "" {
		sink = NewPrefixedSink(sink, cfg.OutputPrefix)
	}
	return sink
}
