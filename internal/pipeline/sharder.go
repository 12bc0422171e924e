package pipeline

import (
	"github.com/cespare/xxhash/v2"

	"github.com/Cornelius-Cellier/capstone-llm/pkg/config"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/jobserrors"
	"github.com/Cornelius-Cellier/capstone-llm/pkg/models"
)

// ShardRecords splits records into exactly n shards. Every record lands in
// exactly one shard and shards keep input order. Empty shards are allowed.
//
// The hash strategy places a record by the xxhash of its id, so assignment is
// stable across runs whatever the input order. round_robin places record i in
// shard i mod n. An empty strategy means hash.
func ShardRecords(records []*models.JoinedRecord, n int, strategy string) ([]Shard, error) {
	if n <= 0 {
		return nil, jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "shard count must be positive").
			WithDetail("shard_count", n)
	}

	var assign func(i int, r *models.JoinedRecord) int
	switch strategy {
	case "", config.ShardStrategyHash:
		assign = func(_ int, r *models.JoinedRecord) int {
			return HashShard(r.ID, n)
		}
	case config.ShardStrategyRoundRobin:
		assign = func(i int, _ *models.JoinedRecord) int {
			return i % n
		}
	default:
		return nil, jobserrors.New(jobserrors.ErrorTypeInvalidArgument, "unknown shard strategy").
			WithDetail("strategy", strategy)
	}

	shards := make([]Shard, n)
	for i := range shards {
		shards[i].Index = i
	}
	for i, r := range records {
		idx := assign(i, r)
		shards[idx].Records = append(shards[idx].Records, r)
	}
	return shards, nil
}

// HashShard returns the shard of id among n shards
func HashShard(id models.ID, n int) int {
	return int(xxhash.Sum64String(string(id)) % uint64(n))
}
