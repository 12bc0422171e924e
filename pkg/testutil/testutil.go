// Package testutil provides fixtures for tests of the cleaning job
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	jsonpool "github.com/Cornelius-Cellier/capstone-llm/pkg/json"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/models"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/storage"
)

// TestLogger creates a logger that writes to the test output
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a context with a 30-second timeout.
// The caller must call the returned cancel function.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Collection builds a raw collection from item literals
func Collection(items ...string) *models.RawCollection {
	c := &models.RawCollection{Items: make([]jsonpool.RawMessage, 0, len(items))}
	for _, it := range items {
		c.Items = append(c.Items, jsonpool.RawMessage(it))
	}
	return c
}

// CollectionDoc renders item literals as a source document {"items":[...]}
func CollectionDoc(items ...string) []byte {
	return []byte(`{"items":[` + strings.Join(items, ",") + `]}`)
}

// Dataset is a generated questions/answers pair
type Dataset struct {
	Questions []string
	Answers   []string
	// Matched is the number of answers whose question exists
	Matched int
}

// NewDataset generates questions 0..questions-1 and answers 1000.. whose
// question ids cycle through 0..questions+orphans-1, so every id at or
// above questions is an orphan.
func NewDataset(questions, answers, orphans int) Dataset {
	var ds Dataset
	for i := 0; i < questions; i++ {
		ds.Questions = append(ds.Questions,
			fmt.Sprintf(`{"question_id":%d,"title":"question %d","body":"<p>body %d</p>","tags":["dbt"]}`, i, i, i))
	}
	span := questions + orphans
	for i := 0; i < answers; i++ {
		qid := i
		if span > 0 {
			qid = i % span
		}
		if qid < questions {
			ds.Matched++
		}
		ds.Answers = append(ds.Answers,
			fmt.Sprintf(`{"answer_id":%d,"question_id":%d,"body":"answer %d","is_accepted":false}`, 1000+i, qid, i))
	}
	return ds
}

// Seed writes the dataset to sink under questionsKey and answersKey
func (ds Dataset) Seed(t *testing.T, sink storage.Sink, questionsKey, answersKey string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, sink.Put(ctx, questionsKey, CollectionDoc(ds.Questions...), storage.Attributes{}))
	require.NoError(t, sink.Put(ctx, answersKey, CollectionDoc(ds.Answers...), storage.Attributes{}))
}
