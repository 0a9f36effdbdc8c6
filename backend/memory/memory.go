package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/backend/metrics"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/internal/metrickeys"
	"go.opentelemetry.io/otel/trace"
)

type stream struct {
	events     []*history.Event
	finishedAt *time.Time
}

type memoryBackend struct {
	mu      sync.RWMutex
	streams map[core.TaskAggregateID]*stream

	// order keeps aggregates in creation order
	order []core.TaskAggregateID

	options *backend.Options
}

var _ backend.Backend = (*memoryBackend)(nil)

// NewMemoryBackend returns a backend keeping all event streams in process memory
func NewMemoryBackend(opts ...backend.BackendOption) *memoryBackend {
	options := backend.ApplyOptions(opts...)

	return &memoryBackend{
		streams: make(map[core.TaskAggregateID]*stream),
		options: &options,
	}
}

func (mb *memoryBackend) AppendEvents(ctx context.Context, id core.TaskAggregateID, expectedNextEventID core.EventID, events []*history.Event) error {
	if len(events) == 0 {
		return nil
	}

	if err := backend.ValidateAppend(expectedNextEventID, events); err != nil {
		return err
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()

	s, ok := mb.streams[id]
	nextEventID := core.FirstEventID
	if ok {
		nextEventID = s.events[len(s.events)-1].EventID.Next()
	}

	if nextEventID != expectedNextEventID {
		return backend.ErrConcurrentModification
	}

	if !ok {
		s = &stream{}
		mb.streams[id] = s
		mb.order = append(mb.order, id)
	}

	for _, e := range events {
		s.events = append(s.events, e)

		if e.Type.IsTerminal() && s.finishedAt == nil {
			ts := e.Timestamp
			s.finishedAt = &ts
		}
	}

	return nil
}

func (mb *memoryBackend) GetHistory(ctx context.Context, id core.TaskAggregateID) (*history.History, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	s, ok := mb.streams[id]
	if !ok {
		return history.Empty(), nil
	}

	events := make([]*history.Event, len(s.events))
	copy(events, s.events)

	h, err := history.Of(events...)
	if err != nil {
		return nil, fmt.Errorf("reading history of %v: %w", id, err)
	}

	return h, nil
}

func (mb *memoryBackend) ListAggregates(ctx context.Context) ([]core.TaskAggregateID, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	r := make([]core.TaskAggregateID, len(mb.order))
	copy(r, mb.order)

	return r, nil
}

func (mb *memoryBackend) RemoveAggregates(ctx context.Context, options ...backend.RemovalOption) error {
	ro := backend.ApplyRemovalOptions(options...)

	mb.mu.Lock()
	defer mb.mu.Unlock()

	order := mb.order[:0]
	for _, id := range mb.order {
		s := mb.streams[id]
		if s.finishedAt != nil && ro.ShouldRemove(*s.finishedAt) {
			delete(mb.streams, id)
			continue
		}

		order = append(order, id)
	}
	mb.order = order

	return nil
}

func (mb *memoryBackend) GetStats(ctx context.Context) (*backend.Stats, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	stats := &backend.Stats{}
	for _, s := range mb.streams {
		if s.finishedAt != nil {
			stats.FinishedTasks++
		} else {
			stats.ActiveTasks++
		}
	}

	return stats, nil
}

func (mb *memoryBackend) Logger() *slog.Logger {
	return mb.options.Logger
}

func (mb *memoryBackend) Tracer() trace.Tracer {
	return mb.options.TracerProvider.Tracer(backend.TracerName)
}

func (mb *memoryBackend) Metrics() metrics.Client {
	return mb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "memory"})
}

func (mb *memoryBackend) Options() *backend.Options {
	return mb.options
}

func (mb *memoryBackend) Close() error {
	return nil
}
