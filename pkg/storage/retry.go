package storage

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
)

// RetryPolicy defines retry behavior for sink writes
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// NewRetryPolicy creates a retry policy with exponential backoff
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    initialDelay,
		MaxDelay:        10 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// NoRetryPolicy returns a policy that makes a single attempt
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 1}
}

// Execute runs fn until it succeeds, returns an error shouldRetry rejects,
// or the attempts are exhausted. The last error is returned unchanged so its
// type survives.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	attempts := rp.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(rp.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

// delay calculates the backoff for a given attempt
func (rp *RetryPolicy) delay(attempt int) time.Duration {
	d := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))

	if rp.MaxDelay > 0 && d > float64(rp.MaxDelay) {
		d = float64(rp.MaxDelay)
	}

	// jitter
	if rp.RandomizeFactor > 0 {
		delta := d * rp.RandomizeFactor
		d = d - delta + rand.Float64()*2*delta
	}

	return time.Duration(d)
}

// RetryingSink retries writes that fail with a retryable error
type RetryingSink struct {
	next   Sink
	policy *RetryPolicy
}

// NewRetryingSink wraps next with policy
func NewRetryingSink(next Sink, policy *RetryPolicy) *RetryingSink {
	if policy == nil {
		policy = NoRetryPolicy()
	}
	return &RetryingSink{next: next, policy: policy}
}

// Put implements Sink
func (s *RetryingSink) Put(ctx context.Context, key string, body []byte, attrs Attributes) error {
	return s.policy.Execute(ctx, func() error {
		return s.next.Put(ctx, key, body, attrs)
	}, func(err error) bool {
		return ctx.Err() == nil && jobserrors.IsRetryable(err)
	})
}
