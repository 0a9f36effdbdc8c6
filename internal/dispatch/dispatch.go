package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/backend/metrics"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/eventbus"
	"github.com/cschleiden/go-tasks/internal/aggregate"
	"github.com/cschleiden/go-tasks/internal/command"
	"github.com/cschleiden/go-tasks/internal/metrickeys"
	"github.com/cschleiden/go-tasks/internal/tracing"
	"github.com/cschleiden/go-tasks/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultMaxRetries = 10

// Result is the outcome of a dispatched command
type Result struct {
	// Events are the events appended for the command, empty if the command had no effect
	Events []*history.Event

	// Status is the status of the task after the command was evaluated
	Status core.TaskExecutionStatus
}

// Dispatcher evaluates commands against the latest history of a task and appends the resulting events.
type Dispatcher struct {
	backend backend.Backend
	bus     eventbus.Bus
	clock   clock.Clock
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics metrics.Client

	maxRetries uint64
	backoff    func() backoff.BackOff
}

type Option func(*Dispatcher)

// WithMaxRetries limits how often a command is re-evaluated after a concurrent modification
func WithMaxRetries(retries uint64) Option {
	return func(d *Dispatcher) {
		d.maxRetries = retries
	}
}

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

func New(b backend.Backend, bus eventbus.Bus, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend:    b,
		bus:        bus,
		clock:      clock.New(),
		logger:     b.Logger(),
		tracer:     b.Tracer(),
		metrics:    b.Metrics(),
		maxRetries: DefaultMaxRetries,
		backoff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 2 * time.Millisecond
			bo.MaxInterval = 100 * time.Millisecond
			bo.MaxElapsedTime = 0
			return bo
		},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Create starts the event stream of a new task
func (d *Dispatcher) Create(ctx context.Context, id core.TaskAggregateID, cmd *command.Create) (*Result, error) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.Create", trace.WithAttributes(
		attribute.String(tracing.TaskID, id.TaskID.String()),
		attribute.String(tracing.TaskType, cmd.Task.Type),
	))
	defer span.End()

	events := aggregate.Create(id, cmd, d.clock.Now())

	if err := d.backend.AppendEvents(ctx, id, core.FirstEventID, events); err != nil {
		if errors.Is(err, backend.ErrConcurrentModification) {
			return nil, tracing.WithSpanError(span, aggregate.ErrAggregateAlreadyExists)
		}

		return nil, tracing.WithSpanError(span, fmt.Errorf("creating task %v: %w", id, err))
	}

	d.publish(ctx, events)

	return &Result{
		Events: events,
		Status: core.TaskExecutionStatusWaiting,
	}, nil
}

// Dispatch evaluates the command against a freshly read history. When the append conflicts with a concurrent
// writer, the history is read again and the command re-evaluated. Unknown tasks return backend.ErrAggregateNotFound.
func (d *Dispatcher) Dispatch(ctx context.Context, id core.TaskAggregateID, cmd command.Command) (*Result, error) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.Dispatch", trace.WithAttributes(
		attribute.String(tracing.TaskID, id.TaskID.String()),
		attribute.String(tracing.Command, cmd.Type()),
	))
	defer span.End()

	logger := d.logger.With(
		slog.String(log.TaskIDKey, id.TaskID.String()),
		slog.String(log.CommandKey, cmd.Type()),
	)

	var result *Result
	attempt := 0

	op := func() error {
		attempt++

		h, err := d.backend.GetHistory(ctx, id)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("reading history: %w", err))
		}

		if h.IsEmpty() {
			return backoff.Permanent(backend.ErrAggregateNotFound)
		}

		a, err := aggregate.FromHistory(id, h)
		if err != nil {
			return backoff.Permanent(err)
		}

		events, err := a.Handle(cmd, d.clock.Now())
		if err != nil {
			return backoff.Permanent(err)
		}

		if len(events) == 0 {
			d.metrics.Counter(metrickeys.CommandsRejected, metrics.Tags{metrickeys.CommandName: cmd.Type()}, 1)
			logger.Debug("Command had no effect", slog.String(log.TaskStatusKey, string(a.Status())))

			result = &Result{Status: a.Status()}
			return nil
		}

		if err := d.backend.AppendEvents(ctx, id, h.NextEventID(), events); err != nil {
			if errors.Is(err, backend.ErrConcurrentModification) {
				d.metrics.Counter(metrickeys.ConcurrentModifications, metrics.Tags{metrickeys.CommandName: cmd.Type()}, 1)
				logger.Debug("Concurrent modification, re-evaluating command", slog.Int(log.AttemptKey, attempt))
				return err
			}

			return backoff.Permanent(fmt.Errorf("appending events: %w", err))
		}

		all := make([]*history.Event, 0, h.Len()+len(events))
		all = append(all, h.Events()...)
		all = append(all, events...)

		nh, err := history.Of(all...)
		if err != nil {
			return backoff.Permanent(err)
		}

		na, err := aggregate.FromHistory(id, nh)
		if err != nil {
			return backoff.Permanent(err)
		}

		result = &Result{Events: events, Status: na.Status()}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(d.backoff(), d.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, tracing.WithSpanError(span, fmt.Errorf("dispatching %v to %v: %w", cmd.Type(), id, err))
	}

	span.SetAttributes(attribute.String(tracing.TaskStatus, string(result.Status)))

	if len(result.Events) > 0 {
		d.publish(ctx, result.Events)
	}

	return result, nil
}

func (d *Dispatcher) publish(ctx context.Context, events []*history.Event) {
	for _, e := range events {
		d.metrics.Counter(metrickeys.EventsAppended, metrics.Tags{metrickeys.EventName: e.Type.String()}, 1)
	}

	if d.bus == nil {
		return
	}

	if err := d.bus.Publish(ctx, events...); err != nil {
		// Events are durable at this point, subscribers fall back to reading the history
		d.logger.Warn("Could not publish events", slog.String(log.AggregateIDKey, events[0].AggregateID.String()), "error", err)
	}
}
