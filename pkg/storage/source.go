package storage

import (
	"bytes"
	"context"

	jsonpool "github.com/Cornelius-Cellier/capstone-llm/pkg/json"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/models"
)

// SourceReader loads raw collections from a bucket
type SourceReader struct {
	reader Reader
}

// NewSourceReader creates a source reader over r
func NewSourceReader(r Reader) *SourceReader {
	return &SourceReader{reader: r}
}

// Read fetches key and decodes it as {"items": [...]}. Items stay raw so the
// joiner can report missing fields per item.
func (s *SourceReader) Read(ctx context.Context, key string) (*models.RawCollection, error) {
	data, err := s.reader.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return DecodeCollection(key, data)
}

// DecodeCollection parses a collection document. A body that is not an object
// or has no items array is a schema error.
func DecodeCollection(key string, data []byte) (*models.RawCollection, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, jobserrors.New(jobserrors.ErrorTypeSchema, "collection is not a JSON object").
			WithDetail("key", key)
	}

	var doc map[string]jsonpool.RawMessage
	if err := jsonpool.Unmarshal(trimmed, &doc); err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeSchema, "failed to decode collection").
			WithDetail("key", key)
	}

	raw, ok := doc["items"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, jobserrors.New(jobserrors.ErrorTypeSchema, "collection has no items array").
			WithDetail("key", key)
	}

	var items []jsonpool.RawMessage
	if err := jsonpool.Unmarshal(raw, &items); err != nil {
		return nil, jobserrors.Wrap(err, jobserrors.ErrorTypeSchema, "items is not an array").
			WithDetail("key", key)
	}

	return &models.RawCollection{Items: items}, nil
}
