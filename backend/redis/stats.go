package redis

import (
	"context"
	"fmt"

	"github.com/cschleiden/go-tasks/backend"
)

func (rb *redisBackend) GetStats(ctx context.Context) (*backend.Stats, error) {
	s := &backend.Stats{}

	all, err := rb.rdb.ZCard(ctx, rb.keys.aggregatesByCreation()).Result()
	if err != nil {
		return nil, fmt.Errorf("counting aggregates: %w", err)
	}

	finished, err := rb.rdb.ZCard(ctx, rb.keys.aggregatesFinished()).Result()
	if err != nil {
		return nil, fmt.Errorf("counting finished aggregates: %w", err)
	}

	s.ActiveTasks = all - finished
	s.FinishedTasks = finished

	return s, nil
}
