package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/core"
	redis "github.com/redis/go-redis/v9"
)

// KEYS[1] - history key
// KEYS[2] - aggregates-by-creation key
// KEYS[3] - aggregates-finished key
// ARGV[1] - task id
var removeAggregateCmd = redis.NewScript(
	`redis.call("DEL", KEYS[1])
	redis.call("ZREM", KEYS[2], ARGV[1])
	return redis.call("ZREM", KEYS[3], ARGV[1])`)

func (rb *redisBackend) RemoveAggregates(ctx context.Context, options ...backend.RemovalOption) error {
	ro := backend.ApplyRemovalOptions(options...)

	max := "+inf"
	if !ro.FinishedBefore.IsZero() {
		max = "(" + strconv.FormatInt(ro.FinishedBefore.UnixMilli(), 10)
	}

	taskIDs, err := rb.rdb.ZRangeByScore(ctx, rb.keys.aggregatesFinished(), &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return fmt.Errorf("finding finished aggregates: %w", err)
	}

	for _, taskID := range taskIDs {
		id := core.NewTaskAggregateID(core.TaskID(taskID))

		if err := removeAggregateCmd.Run(ctx, rb.rdb, []string{
			rb.keys.historyKey(id),
			rb.keys.aggregatesByCreation(),
			rb.keys.aggregatesFinished(),
		}, taskID).Err(); err != nil {
			return fmt.Errorf("removing aggregate %v: %w", id, err)
		}
	}

	return nil
}
