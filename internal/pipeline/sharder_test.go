package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/config"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/models"
)

func makeRecords(n int) []*models.JoinedRecord {
	records := make([]*models.JoinedRecord, n)
	for i := range records {
		q := models.Question{QuestionID: models.ID(fmt.Sprint(i % 7)), Title: "t", Body: "b"}
		a := models.Answer{AnswerID: models.ID(fmt.Sprint(100 + i)), QuestionID: q.QuestionID, Body: "a"}
		records[i] = models.NewJoinedRecord(q, a)
	}
	return records
}

func TestShardRecords_Cover(t *testing.T) {
	records := makeRecords(257)

	for _, strategy := range []string{config.ShardStrategyHash, config.ShardStrategyRoundRobin} {
		for _, n := range []int{1, 2, 7, 100, 300} {
			t.Run(fmt.Sprintf("%s/%d", strategy, n), func(t *testing.T) {
				shards, err := ShardRecords(records, n, strategy)
				require.NoError(t, err)
				require.Len(t, shards, n)

				var flat []*models.JoinedRecord
				for i, s := range shards {
					assert.Equal(t, i, s.Index)
					flat = append(flat, s.Records...)
				}
				assert.ElementsMatch(t, records, flat)
			})
		}
	}
}

func TestShardRecords_PreservesOrderWithinShard(t *testing.T) {
	records := makeRecords(100)
	pos := make(map[*models.JoinedRecord]int, len(records))
	for i, r := range records {
		pos[r] = i
	}

	shards, err := ShardRecords(records, 8, config.ShardStrategyHash)
	require.NoError(t, err)
	for _, s := range shards {
		for i := 1; i < len(s.Records); i++ {
			assert.Less(t, pos[s.Records[i-1]], pos[s.Records[i]])
		}
	}
}

func TestShardRecords_HashIsStableAcrossInputOrder(t *testing.T) {
	records := makeRecords(64)
	reversed := make([]*models.JoinedRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}

	a, err := ShardRecords(records, 5, config.ShardStrategyHash)
	require.NoError(t, err)
	b, err := ShardRecords(reversed, 5, "")
	require.NoError(t, err)

	for i := range a {
		assert.ElementsMatch(t, a[i].Records, b[i].Records)
	}
}

func TestShardRecords_RoundRobin(t *testing.T) {
	shards, err := ShardRecords(makeRecords(5), 3, config.ShardStrategyRoundRobin)
	require.NoError(t, err)
	assert.Equal(t, 2, shards[0].Len())
	assert.Equal(t, 2, shards[1].Len())
	assert.Equal(t, 1, shards[2].Len())
}

func TestShardRecords_MoreShardsThanRecords(t *testing.T) {
	shards, err := ShardRecords(makeRecords(3), 10, config.ShardStrategyRoundRobin)
	require.NoError(t, err)
	require.Len(t, shards, 10)

	nonEmpty := 0
	for _, s := range shards {
		assert.LessOrEqual(t, s.Len(), 1)
		if s.Len() > 0 {
			nonEmpty++
		}
	}
	assert.Equal(t, 3, nonEmpty)
}

func TestShardRecords_InvalidArguments(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := ShardRecords(makeRecords(3), n, config.ShardStrategyHash)
		require.Error(t, err)
		assert.True(t, jobserrors.IsType(err, jobserrors.ErrorTypeInvalidArgument))
	}

	_, err := ShardRecords(makeRecords(3), 2, "random")
	assert.True(t, jobserrors.IsType(err, jobserrors.ErrorTypeInvalidArgument))
}

func TestShardRecords_DisjointExportKeys(t *testing.T) {
	shards, err := ShardRecords(makeRecords(120), 9, config.ShardStrategyHash)
	require.NoError(t, err)

	owner := make(map[string]int)
	for _, s := range shards {
		for _, r := range s.Records {
			key := r.ExportKey("python-polars")
			prev, exists := owner[key]
			assert.False(t, exists, "key %s in shards %d and %d", key, prev, s.Index)
			owner[key] = s.Index
		}
	}
	assert.Len(t, owner, 120)
}

func TestHashShard(t *testing.T) {
	for _, n := range []int{1, 3, 100} {
		idx := HashShard("10", n)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, n)
		assert.Equal(t, idx, HashShard("10", n))
	}
}
