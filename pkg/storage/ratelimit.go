package storage

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
)

// RateLimitedSink caps the number of writes per second across all callers
type RateLimitedSink struct {
	next    Sink
	limiter *rate.Limiter
}

// NewRateLimitedSink allows perSecond writes with a burst of the same size.
// A non-positive rate disables limiting.
func NewRateLimitedSink(next Sink, perSecond float64) *RateLimitedSink {
	limit := rate.Inf
	burst := 0
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &RateLimitedSink{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Put implements Sink
func (s *RateLimitedSink) Put(ctx context.Context, key string, body []byte, attrs Attributes) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "rate limiter wait aborted").
			WithDetail("key", key)
	}
	return s.next.Put(ctx, key, body, attrs)
}
