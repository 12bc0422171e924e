package storage

import (
	"context"
	"strings"
)

// PrefixedSink places every key below a fixed prefix, e.g. "cleaned"
type PrefixedSink struct {
	next   Sink
	prefix string
}

// NewPrefixedSink wraps next. An empty prefix leaves keys untouched.
func NewPrefixedSink(next Sink, prefix string) *PrefixedSink {
	return &PrefixedSink{next: next, prefix: strings.Trim(prefix, "/")}
}

// Put implements Sink
func (s *PrefixedSink) Put(ctx context.Context, key string, body []byte, attrs Attributes) error {
	return s.next.Put(ctx, objectKey(s.prefix, key), body, attrs)
}
