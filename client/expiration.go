package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/metrics"
	"github.com/cschleiden/go-tasks/internal/metrickeys"
	"github.com/cschleiden/go-tasks/internal/tracing"
	"github.com/cschleiden/go-tasks/log"
)

// RemoveTasks removes all tasks which finished before the given time. Active tasks are never removed.
func (c *Client) RemoveTasks(ctx context.Context, finishedBefore time.Time) error {
	ctx, span := c.tracer.Start(ctx, "Client.RemoveTasks")
	defer span.End()

	if err := c.backend.RemoveAggregates(ctx, backend.RemoveFinishedBefore(finishedBefore)); err != nil {
		return tracing.WithSpanError(span, fmt.Errorf("removing tasks: %w", err))
	}

	for id, item := range c.cache.Items() {
		if fa := item.Value().FinishedAt(); fa != nil && fa.Before(finishedBefore) {
			c.cache.Delete(id)
		}
	}

	c.metrics.Counter(metrickeys.TaskCleanups, metrics.Tags{}, 1)
	c.logger.Debug("Removed finished tasks", slog.Time(log.FinishedBeforeKey, finishedBefore))

	return nil
}

// RemoveExpiredTasks removes all tasks which finished longer than retention ago.
func (c *Client) RemoveExpiredTasks(ctx context.Context, retention time.Duration) error {
	return c.RemoveTasks(ctx, c.clock.Now().Add(-retention))
}
