package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/backend/metrics"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/eventbus"
	"github.com/cschleiden/go-tasks/internal/command"
	"github.com/cschleiden/go-tasks/internal/dispatch"
	"github.com/cschleiden/go-tasks/internal/metrickeys"
	"github.com/cschleiden/go-tasks/internal/tracing"
	internal "github.com/cschleiden/go-tasks/internal/worker"
	"github.com/cschleiden/go-tasks/log"
	"github.com/cschleiden/go-tasks/registry"
	"github.com/cschleiden/go-tasks/task"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrWorkerStopped    = internal.ErrWorkerStopped
	ErrWorkerNotStarted = internal.ErrWorkerNotStarted
)

// Worker executes submitted tasks on this node and records their lifecycle in the backend.
type Worker struct {
	backend    backend.Backend
	registry   *registry.Registry
	bus        eventbus.Bus
	dispatcher *dispatch.Dispatcher

	hostname core.Hostname
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  metrics.Client

	pool *internal.Worker[execution]

	mu          sync.Mutex
	executions  map[core.TaskID]*execution
	running     atomic.Int64
	unsubscribe func()
}

// New creates a worker executing tasks submitted to it.
func New(b backend.Backend, options *Options) *Worker {
	if options == nil {
		options = &DefaultOptions
	}

	opts := *options

	if opts.Hostname == "" {
		opts.Hostname = core.LocalHostname()
	}

	if opts.Registry == nil {
		opts.Registry = registry.New(registry.WithAutoRegistration())
	}

	if opts.Bus == nil {
		opts.Bus = eventbus.NewLocalBus()
	}

	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	if opts.MaxRetries == 0 {
		opts.MaxRetries = dispatch.DefaultMaxRetries
	}

	w := &Worker{
		backend:  b,
		registry: opts.Registry,
		bus:      opts.Bus,
		dispatcher: dispatch.New(b, opts.Bus,
			dispatch.WithClock(opts.Clock),
			dispatch.WithMaxRetries(opts.MaxRetries),
		),

		hostname: opts.Hostname,
		clock:    opts.Clock,
		logger:   b.Logger().With(slog.String(log.HostnameKey, string(opts.Hostname))),
		tracer:   b.Tracer(),
		metrics:  b.Metrics(),

		executions: make(map[core.TaskID]*execution),
	}

	w.pool = internal.NewWorker[execution](w.logger, opts.Clock, &executor{w: w}, &internal.WorkerOptions{
		MaxParallelTasks:  opts.MaxParallelTasks,
		HeartbeatInterval: opts.ProgressInterval,
	})

	return w
}

// Start starts executing submitted tasks. Once ctx is cancelled, no new tasks are accepted.
func (w *Worker) Start(ctx context.Context) error {
	w.unsubscribe = w.bus.Subscribe(w.handleEvent)

	return w.pool.Start(ctx)
}

// WaitForCompletion stops accepting tasks and waits until all submitted tasks have finished.
func (w *Worker) WaitForCompletion() error {
	err := w.pool.WaitForCompletion()

	if w.unsubscribe != nil {
		w.unsubscribe()
	}

	return err
}

func (w *Worker) Hostname() core.Hostname {
	return w.hostname
}

func (w *Worker) Registry() *registry.Registry {
	return w.registry
}

func (w *Worker) Bus() eventbus.Bus {
	return w.bus
}

// Submit records the given task as WAITING and schedules it for execution. It does not wait for the task to run.
func (w *Worker) Submit(ctx context.Context, t task.Task) (core.TaskID, error) {
	ctx, span := w.tracer.Start(ctx, "Worker.Submit", trace.WithAttributes(
		attribute.String(tracing.TaskType, t.Type()),
	))
	defer span.End()

	p, err := w.registry.EncodeTask(w.backend.Options().Converter, t)
	if err != nil {
		return "", tracing.WithSpanError(span, err)
	}

	id := core.NewTaskID()
	span.SetAttributes(attribute.String(tracing.TaskID, id.String()))

	e := newExecution(core.NewTaskAggregateID(id), t, w.clock.Now())

	w.mu.Lock()
	w.executions[id] = e
	w.mu.Unlock()

	if _, err := w.dispatcher.Create(ctx, e.id, &command.Create{Task: p, Hostname: w.hostname}); err != nil {
		w.remove(e)
		return "", tracing.WithSpanError(span, fmt.Errorf("submitting task: %w", err))
	}

	w.metrics.Counter(metrickeys.TaskSubmitted, metrics.Tags{metrickeys.TaskType: t.Type()}, 1)
	w.logger.Debug("Task submitted", slog.String(log.TaskIDKey, id.String()), slog.String(log.TaskTypeKey, t.Type()))

	if err := w.pool.Enqueue(e); err != nil {
		// The task will never run here, close its lifecycle
		w.abandon(ctx, e, err)
		return "", tracing.WithSpanError(span, err)
	}

	return id, nil
}

// RequestCancel records the intent to cancel the task and signals it to stop when it executes on this node.
// The returned status is the status of the task after the request was evaluated.
func (w *Worker) RequestCancel(ctx context.Context, id core.TaskID) (core.TaskExecutionStatus, error) {
	ctx, span := w.tracer.Start(ctx, "Worker.RequestCancel", trace.WithAttributes(
		attribute.String(tracing.TaskID, id.String()),
	))
	defer span.End()

	r, err := w.dispatcher.Dispatch(ctx, core.NewTaskAggregateID(id), &command.RequestCancel{Hostname: w.hostname})
	if err != nil {
		return "", tracing.WithSpanError(span, err)
	}

	if r.Status == core.TaskExecutionStatusCancelRequested || r.Status == core.TaskExecutionStatusWaiting {
		// Queued tasks are cancelled as soon as they are picked up
		w.signalCancel(id)
	}

	if len(r.Events) > 0 {
		w.metrics.Counter(metrickeys.TaskCancelRequested, metrics.Tags{}, 1)
	}

	return r.Status, nil
}

func (w *Worker) handleEvent(ctx context.Context, event *history.Event) {
	if event.Type != history.EventType_CancelRequested {
		return
	}

	w.signalCancel(event.AggregateID.TaskID)
}

func (w *Worker) signalCancel(id core.TaskID) {
	w.mu.Lock()
	e, ok := w.executions[id]
	w.mu.Unlock()

	if ok {
		w.logger.Debug("Signalling cancellation", slog.String(log.TaskIDKey, id.String()))
		e.requestCancel()
	}
}

func (w *Worker) remove(e *execution) {
	w.mu.Lock()
	delete(w.executions, e.id.TaskID)
	w.mu.Unlock()

	e.cancel()

	if r, ok := e.task.(interface{ Release() }); ok {
		r.Release()
	}
}

// abandon fails a task which was created but cannot be executed by this worker
func (w *Worker) abandon(ctx context.Context, e *execution, reason error) {
	defer w.remove(e)

	msg := reason.Error()
	for _, cmd := range []command.Command{
		&command.Start{Hostname: w.hostname},
		&command.Fail{ErrorMessage: &msg},
	} {
		if _, err := w.dispatcher.Dispatch(ctx, e.id, cmd); err != nil {
			w.logger.Error("Could not record abandoned task", slog.String(log.TaskIDKey, e.id.TaskID.String()), "error", err)
			return
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, e *execution, cmd command.Command) (*dispatch.Result, error) {
	r, err := w.dispatcher.Dispatch(ctx, e.id, cmd)
	if err != nil {
		w.logger.Error("Could not record task event",
			slog.String(log.TaskIDKey, e.id.TaskID.String()),
			slog.String(log.CommandKey, cmd.Type()),
			"error", err,
		)

		return nil, err
	}

	return r, nil
}
