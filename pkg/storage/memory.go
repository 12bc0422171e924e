package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
)

// Object is a stored body with its attributes
type Object struct {
	Body       []byte
	Attributes Attributes
}

// MemoryBucket keeps objects in process memory. It is used by tests and by
// mem:// URLs.
type MemoryBucket struct {
	name    string
	mu      sync.RWMutex
	objects map[string]Object
	puts    int
}

var (
	namedBucketsMu sync.Mutex
	namedBuckets   = map[string]*MemoryBucket{}
)

// NewMemoryBucket creates an empty, unnamed memory bucket
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{objects: make(map[string]Object)}
}

// NamedMemoryBucket returns the process-wide memory bucket called name, creating it on first use
func NamedMemoryBucket(name string) *MemoryBucket {
	namedBucketsMu.Lock()
	defer namedBucketsMu.Unlock()

	b, ok := namedBuckets[name]
	if !ok {
		b = NewMemoryBucket()
		b.name = name
		namedBuckets[name] = b
	}
	return b
}

// Put stores a copy of body under key
func (b *MemoryBucket) Put(ctx context.Context, key string, body []byte, attrs Attributes) error {
	if err := ctx.Err(); err != nil {
		return jobserrors.Wrap(err, jobserrors.ErrorTypeSinkUnavailable, "put cancelled").
			WithDetail("key", key)
	}

	stored := make([]byte, len(body))
	copy(stored, body)

	b.mu.Lock()
	b.objects[key] = Object{Body: stored, Attributes: attrs}
	b.puts++
	b.mu.Unlock()
	return nil
}

// Get returns a copy of the body stored under key
func (b *MemoryBucket) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeSourceUnavailable, "get cancelled").
			WithDetail("key", key)
	}

	b.mu.RLock()
	obj, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		return nil, jobserrors.New(jobserrors.ErrorTypeNotFound, "object not found").WithDetail("key", key)
	}

	out := make([]byte, len(obj.Body))
	copy(out, obj.Body)
	return out, nil
}

// Object returns the stored object for key
func (b *MemoryBucket) Object(key string) (Object, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	return obj, ok
}

// Keys returns all stored keys in sorted order
func (b *MemoryBucket) Keys() []string {
	b.mu.RLock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	b.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Len returns the number of stored objects
func (b *MemoryBucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// Puts returns the number of successful Put calls, including overwrites
func (b *MemoryBucket) Puts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.puts
}

// URL returns mem://name
func (b *MemoryBucket) URL() string {
	return "mem://" + b.name
}

// Close is a no-op
func (b *MemoryBucket) Close() error {
	return nil
}
