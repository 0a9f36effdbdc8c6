package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/backend/metrics"
	"github.com/cschleiden/go-tasks/backend/payload"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/eventbus"
	"github.com/cschleiden/go-tasks/internal/aggregate"
	"github.com/cschleiden/go-tasks/internal/command"
	"github.com/cschleiden/go-tasks/internal/dispatch"
	"github.com/cschleiden/go-tasks/internal/metrickeys"
	"github.com/cschleiden/go-tasks/internal/tracing"
	"github.com/cschleiden/go-tasks/log"
	"github.com/cschleiden/go-tasks/registry"
	"github.com/cschleiden/go-tasks/task"
	"github.com/cschleiden/go-tasks/worker"
	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrNoWorker     = errors.New("no worker configured to execute tasks")
	ErrTimeout      = errors.New("task did not finish in specified timeout")
)

// TimeoutError is returned when a task did not reach a terminal status while awaiting it.
type TimeoutError struct {
	TaskID  core.TaskID
	Timeout time.Duration

	// Status is the last observed status of the task
	Status core.TaskExecutionStatus
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %v did not finish within %v, last status %v", e.TaskID, e.Timeout, e.Status)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Client manages tasks on top of a backend. Submitting requires a worker, all other operations
// work from any node sharing the backend.
type Client struct {
	backend    backend.Backend
	worker     *worker.Worker
	registry   *registry.Registry
	bus        eventbus.Bus
	dispatcher *dispatch.Dispatcher

	hostname core.Hostname
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  metrics.Client

	cache *ttlcache.Cache[core.TaskID, *TaskDetails]
}

func New(b backend.Backend, opts ...Option) *Client {
	o := options{
		cacheTTL:      DefaultCacheTTL,
		cacheCapacity: DefaultCacheCapacity,
		clock:         clock.New(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.worker != nil {
		if o.registry == nil {
			o.registry = o.worker.Registry()
		}

		if o.bus == nil {
			o.bus = o.worker.Bus()
		}

		if o.hostname == "" {
			o.hostname = o.worker.Hostname()
		}
	}

	if o.registry == nil {
		o.registry = registry.New()
	}

	if o.bus == nil {
		o.bus = eventbus.NewLocalBus()
	}

	if o.hostname == "" {
		o.hostname = core.LocalHostname()
	}

	return &Client{
		backend:    b,
		worker:     o.worker,
		registry:   o.registry,
		bus:        o.bus,
		dispatcher: dispatch.New(b, o.bus, dispatch.WithClock(o.clock)),

		hostname: o.hostname,
		clock:    o.clock,
		logger:   b.Logger(),
		tracer:   b.Tracer(),
		metrics:  b.Metrics(),

		cache: ttlcache.New(
			ttlcache.WithTTL[core.TaskID, *TaskDetails](o.cacheTTL),
			ttlcache.WithCapacity[core.TaskID, *TaskDetails](o.cacheCapacity),
		),
	}
}

// SubmitTask hands the task to the configured worker and returns without waiting for it to run.
func (c *Client) SubmitTask(ctx context.Context, t task.Task) (core.TaskID, error) {
	if c.worker == nil {
		return "", ErrNoWorker
	}

	return c.worker.Submit(ctx, t)
}

// GetTask returns the details of the given task. Unknown tasks return ErrTaskNotFound.
func (c *Client) GetTask(ctx context.Context, id core.TaskID) (*TaskDetails, error) {
	ctx, span := c.tracer.Start(ctx, "Client.GetTask", trace.WithAttributes(
		attribute.String(tracing.TaskID, id.String()),
	))
	defer span.End()

	if item := c.cache.Get(id); item != nil {
		c.metrics.Counter(metrickeys.DetailsCacheHit, metrics.Tags{}, 1)

		d := *item.Value()
		return &d, nil
	}

	c.metrics.Counter(metrickeys.DetailsCacheMiss, metrics.Tags{}, 1)

	aggregateID := core.NewTaskAggregateID(id)

	h, err := c.backend.GetHistory(ctx, aggregateID)
	if err != nil {
		return nil, tracing.WithSpanError(span, fmt.Errorf("getting task history: %w", err))
	}

	if h.IsEmpty() {
		return nil, tracing.WithSpanError(span, ErrTaskNotFound)
	}

	details, err := aggregate.FoldDetails(aggregateID, h)
	if err != nil {
		return nil, tracing.WithSpanError(span, err)
	}

	d := c.decode(details)
	span.SetAttributes(attribute.String(tracing.TaskStatus, string(d.Status)))

	if d.Status.IsTerminal() {
		// Terminal tasks never change again
		cached := *d
		c.cache.Set(id, &cached, ttlcache.DefaultTTL)
	}

	return d, nil
}

// CancelTask requests cancellation of the given task and returns its status after the request. Requests for
// tasks which cannot be cancelled are no-ops returning the unchanged status.
func (c *Client) CancelTask(ctx context.Context, id core.TaskID) (core.TaskExecutionStatus, error) {
	ctx, span := c.tracer.Start(ctx, "Client.CancelTask", trace.WithAttributes(
		attribute.String(tracing.TaskID, id.String()),
	))
	defer span.End()

	var (
		status core.TaskExecutionStatus
		err    error
	)

	if c.worker != nil {
		status, err = c.worker.RequestCancel(ctx, id)
	} else {
		var r *dispatch.Result
		r, err = c.dispatcher.Dispatch(ctx, core.NewTaskAggregateID(id), &command.RequestCancel{Hostname: c.hostname})
		if err == nil {
			status = r.Status
		}
	}

	if err != nil {
		if errors.Is(err, backend.ErrAggregateNotFound) {
			err = ErrTaskNotFound
		}

		return "", tracing.WithSpanError(span, err)
	}

	c.logger.Debug("Requested task cancellation",
		slog.String(log.TaskIDKey, id.String()),
		slog.String(log.TaskStatusKey, string(status)),
	)

	return status, nil
}

// DefaultAwaitTimeout is used when AwaitTask is called without a timeout
const DefaultAwaitTimeout = 20 * time.Second

// AwaitTask blocks until the given task reached a terminal status and returns its details. If the task does
// not finish within timeout, a *TimeoutError is returned.
func (c *Client) AwaitTask(ctx context.Context, id core.TaskID, timeout time.Duration) (*TaskDetails, error) {
	ctx, span := c.tracer.Start(ctx, "Client.AwaitTask", trace.WithAttributes(
		attribute.String(tracing.TaskID, id.String()),
	))
	defer span.End()

	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}

	finished := make(chan struct{}, 1)
	unsubscribe := c.bus.Subscribe(func(_ context.Context, event *history.Event) {
		if event.AggregateID.TaskID == id && event.Type.IsTerminal() {
			select {
			case finished <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	// Events from nodes not sharing the bus are only observed by polling
	b := backoff.ExponentialBackOff{
		InitialInterval:     time.Millisecond * 10,
		MaxInterval:         time.Second,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		Stop:                backoff.Stop,
		Clock:               c.clock,
	}
	b.Reset()

	ticker := backoff.NewTicker(&b)
	defer ticker.Stop()

	deadline := c.clock.Timer(timeout)
	defer deadline.Stop()

	for {
		d, err := c.GetTask(ctx, id)
		if err != nil {
			return nil, tracing.WithSpanError(span, err)
		}

		if d.Status.IsTerminal() {
			return d, nil
		}

		select {
		case <-finished:
		case <-ticker.C:
		case <-deadline.C:
			return nil, tracing.WithSpanError(span, &TimeoutError{TaskID: id, Timeout: timeout, Status: d.Status})
		case <-ctx.Done():
			return nil, tracing.WithSpanError(span, ctx.Err())
		}
	}
}

type listOptions struct {
	statuses []core.TaskExecutionStatus
	taskType string
}

type ListOption func(*listOptions)

// WithStatus only lists tasks in one of the given statuses
func WithStatus(statuses ...core.TaskExecutionStatus) ListOption {
	return func(o *listOptions) {
		o.statuses = append(o.statuses, statuses...)
	}
}

// WithType only lists tasks of the given type
func WithType(taskType string) ListOption {
	return func(o *listOptions) {
		o.taskType = taskType
	}
}

// ListTasks returns the details of all known tasks in submission order.
func (c *Client) ListTasks(ctx context.Context, opts ...ListOption) ([]*TaskDetails, error) {
	ctx, span := c.tracer.Start(ctx, "Client.ListTasks")
	defer span.End()

	var o listOptions
	for _, opt := range opts {
		opt(&o)
	}

	ids, err := c.backend.ListAggregates(ctx)
	if err != nil {
		return nil, tracing.WithSpanError(span, fmt.Errorf("listing tasks: %w", err))
	}

	tasks := make([]*TaskDetails, 0, len(ids))
	for _, id := range ids {
		d, err := c.GetTask(ctx, id.TaskID)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				// Removed while listing
				continue
			}

			return nil, tracing.WithSpanError(span, err)
		}

		if len(o.statuses) > 0 && !slices.Contains(o.statuses, d.Status) {
			continue
		}

		if o.taskType != "" && d.Type != o.taskType {
			continue
		}

		tasks = append(tasks, d)
	}

	return tasks, nil
}

func (c *Client) GetStats(ctx context.Context) (*backend.Stats, error) {
	return c.backend.GetStats(ctx)
}

// GetTaskHistory returns the raw events recorded for the given task
func (c *Client) GetTaskHistory(ctx context.Context, id core.TaskID) (*history.History, error) {
	h, err := c.backend.GetHistory(ctx, core.NewTaskAggregateID(id))
	if err != nil {
		return nil, fmt.Errorf("getting task history: %w", err)
	}

	if h.IsEmpty() {
		return nil, ErrTaskNotFound
	}

	return h, nil
}

// DecodeTask builds a task of a registered type from its serialized form, for example to submit tasks
// received over the network.
func (c *Client) DecodeTask(taskType string, data payload.Payload) (task.Task, error) {
	return c.registry.DecodeTask(c.backend.Options().Converter, history.TaskPayload{Type: taskType, Data: data})
}

func (c *Client) decode(details *aggregate.Details) *TaskDetails {
	d := &TaskDetails{
		ID:                details.ID,
		Type:              details.Type,
		Status:            details.Status,
		Result:            details.Result,
		ErrorMessage:      details.ErrorMessage,
		Stacktrace:        details.Stacktrace,
		SubmittedAt:       details.SubmittedAt,
		SubmittedFrom:     details.SubmittedFrom,
		StartedAt:         details.StartedAt,
		RanNode:           details.RanNode,
		CancelRequestedAt: details.CancelRequestedAt,
		CancelRequestedBy: details.CancelRequestedBy,
		CompletedAt:       details.CompletedAt,
		FailedAt:          details.FailedAt,
		CancelledAt:       details.CancelledAt,
	}

	conv := c.backend.Options().Converter

	t, err := c.registry.DecodeTask(conv, details.Task)
	if err != nil {
		c.logger.Debug("Could not decode task", slog.String(log.TaskIDKey, d.ID.String()), "error", err)
	} else {
		d.Task = t
	}

	if details.Information != nil {
		info, err := c.registry.DecodeInformation(conv, *details.Information)
		if err != nil {
			c.logger.Debug("Could not decode task information", slog.String(log.TaskIDKey, d.ID.String()), "error", err)
		} else {
			d.Information = info
		}
	}

	return d
}
