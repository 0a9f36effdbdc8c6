package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/core"
	redis "github.com/redis/go-redis/v9"
)

// Appends events if the stream has exactly the expected length
// KEYS[1] - history key
// KEYS[2] - aggregates-by-creation key
// KEYS[3] - aggregates-finished key
// KEYS[4] - aggregate sequence key
// ARGV[1] - expected next event id
// ARGV[2] - task id
// ARGV[3] - finish timestamp in unix milliseconds, empty if no terminal event is appended
// ARGV[4..n] - pairs of stream id and event
var appendEventsCmd = redis.NewScript(
	`local expected = tonumber(ARGV[1])
	if redis.call("XLEN", KEYS[1]) ~= expected then
		return 0
	end

	if expected == 0 then
		local seq = redis.call("INCR", KEYS[4])
		redis.call("ZADD", KEYS[2], seq, ARGV[2])
	end

	for i = 4, #ARGV, 2 do
		redis.call("XADD", KEYS[1], ARGV[i], "event", ARGV[i+1])
	end

	if ARGV[3] ~= "" then
		redis.call("ZADD", KEYS[3], ARGV[3], ARGV[2])
	end

	return 1`)

func (rb *redisBackend) AppendEvents(ctx context.Context, id core.TaskAggregateID, expectedNextEventID core.EventID, events []*history.Event) error {
	if len(events) == 0 {
		return nil
	}

	if err := backend.ValidateAppend(expectedNextEventID, events); err != nil {
		return err
	}

	finishedAt := ""
	args := []interface{}{int64(expectedNextEventID), id.TaskID.String(), nil}
	for _, e := range events {
		eventData, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling event: %w", err)
		}

		args = append(args, historyID(e.EventID), string(eventData))

		if e.Type.IsTerminal() {
			finishedAt = strconv.FormatInt(e.Timestamp.UnixMilli(), 10)
		}
	}
	args[2] = finishedAt

	appended, err := appendEventsCmd.Run(ctx, rb.rdb, []string{
		rb.keys.historyKey(id),
		rb.keys.aggregatesByCreation(),
		rb.keys.aggregatesFinished(),
		rb.keys.aggregateSequence(),
	}, args...).Int()
	if err != nil {
		return fmt.Errorf("appending events: %w", err)
	}

	if appended == 0 {
		return backend.ErrConcurrentModification
	}

	return nil
}

func (rb *redisBackend) GetHistory(ctx context.Context, id core.TaskAggregateID) (*history.History, error) {
	msgs, err := rb.rdb.XRange(ctx, rb.keys.historyKey(id), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	events := make([]*history.Event, 0, len(msgs))
	for _, msg := range msgs {
		eventData, ok := msg.Values["event"].(string)
		if !ok {
			return nil, fmt.Errorf("history entry %v has no event", msg.ID)
		}

		var event history.Event
		if err := json.Unmarshal([]byte(eventData), &event); err != nil {
			return nil, fmt.Errorf("unmarshaling event: %w", err)
		}

		events = append(events, &event)
	}

	return history.Of(events...)
}

func (rb *redisBackend) ListAggregates(ctx context.Context) ([]core.TaskAggregateID, error) {
	taskIDs, err := rb.rdb.ZRange(ctx, rb.keys.aggregatesByCreation(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing aggregates: %w", err)
	}

	ids := make([]core.TaskAggregateID, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		ids = append(ids, core.NewTaskAggregateID(core.TaskID(taskID)))
	}

	return ids, nil
}
