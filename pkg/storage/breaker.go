package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
)

// CircuitState is the state of a CircuitBreakerSink
type CircuitState int32

const (
	// StateClosed lets every write through
	StateClosed CircuitState = iota
	// StateOpen rejects writes until the cooldown has passed
	StateOpen
	// StateHalfOpen lets a single probe write through
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerSink stops sending writes to a sink that keeps failing.
// After threshold consecutive retryable failures the circuit opens and writes
// fail immediately with ErrorTypeSinkUnavailable. Once cooldown has passed one
// probe write is let through; its success closes the circuit, its failure
// reopens it. Non-retryable errors do not count.
type CircuitBreakerSink struct {
	next      Sink
	threshold int
	cooldown  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.Mutex
	state       CircuitState
	failures    int
	openedAt    time.Time
	probeActive bool
}

// NewCircuitBreakerSink wraps next. threshold must be positive.
func NewCircuitBreakerSink(next Sink, threshold int, cooldown time.Duration, logger *zap.Logger) *CircuitBreakerSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreakerSink{
		next:      next,
		threshold: threshold,
		cooldown:  cooldown,
		logger:    logger.With(zap.String("component", "circuit_breaker")),
		now:       time.Now,
	}
}

// Put implements Sink
func (s *CircuitBreakerSink) Put(ctx context.Context, key string, body []byte, attrs Attributes) error {
	probe, ok := s.allow()
	if !ok {
		return jobserrors.New(jobserrors.ErrorTypeSinkUnavailable, "circuit breaker is open").
			WithDetail("key", key)
	}

	err := s.next.Put(ctx, key, body, attrs)
	s.record(err, probe)
	return err
}

// State returns the current circuit state
func (s *CircuitBreakerSink) State() CircuitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// allow decides whether a write may proceed and whether it is the half-open probe
func (s *CircuitBreakerSink) allow() (probe bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if s.now().Sub(s.openedAt) < s.cooldown {
			return false, false
		}
		s.state = StateHalfOpen
		s.logger.Info("circuit breaker half-open")
		fallthrough
	case StateHalfOpen:
		if s.probeActive {
			return false, false
		}
		s.probeActive = true
		return true, true
	default:
		return false, false
	}
}

// record updates the state with the outcome of a write
func (s *CircuitBreakerSink) record(err error, probe bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if probe {
		s.probeActive = false
	}

	counts := err != nil && jobserrors.IsRetryable(err)
	switch {
	case !counts && probe:
		s.state = StateClosed
		s.failures = 0
		s.logger.Info("circuit breaker closed")
	case !counts:
		if err == nil {
			s.failures = 0
		}
	case probe || s.state == StateHalfOpen:
		s.open()
	default:
		s.failures++
		if s.state == StateClosed && s.failures >= s.threshold {
			s.open()
		}
	}
}

// open moves to StateOpen; callers hold mu
func (s *CircuitBreakerSink) open() {
	s.state = StateOpen
	s.openedAt = s.now()
	s.logger.Warn("circuit breaker opened",
		zap.Int("consecutive_failures", s.failures),
		zap.Time("retry_after", s.openedAt.Add(s.cooldown)))
}
