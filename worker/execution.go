package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/backend/metrics"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/internal/command"
	"github.com/cschleiden/go-tasks/internal/metrickeys"
	im "github.com/cschleiden/go-tasks/internal/metrics"
	"github.com/cschleiden/go-tasks/internal/taskerrors"
	"github.com/cschleiden/go-tasks/internal/tracing"
	"github.com/cschleiden/go-tasks/log"
	"github.com/cschleiden/go-tasks/task"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// execution is a task submitted to this node
type execution struct {
	id          core.TaskAggregateID
	task        task.Task
	submittedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	cancelOnce      sync.Once
	cancelRequested atomic.Bool

	mu        sync.Mutex
	latest    task.AdditionalInformation
	persisted time.Time
}

func newExecution(id core.TaskAggregateID, t task.Task, submittedAt time.Time) *execution {
	ctx, cancel := context.WithCancel(context.Background())

	return &execution{
		id:          id,
		task:        t,
		submittedAt: submittedAt,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (e *execution) requestCancel() {
	e.cancelOnce.Do(func() {
		e.cancelRequested.Store(true)
		e.cancel()

		if c, ok := e.task.(task.Canceler); ok {
			c.Cancel()
		}
	})
}

// snapshot returns the most recent progress information of the task
func (e *execution) snapshot() task.AdditionalInformation {
	if dp, ok := e.task.(task.DetailsProvider); ok {
		if info := dp.Details(); info != nil {
			e.mu.Lock()
			e.latest = info
			e.mu.Unlock()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.latest
}

// executor runs executions for the worker pool
type executor struct {
	w *Worker
}

func (x *executor) Execute(ctx context.Context, e *execution) error {
	w := x.w
	defer w.remove(e)

	logger := w.logger.With(
		slog.String(log.TaskIDKey, e.id.TaskID.String()),
		slog.String(log.TaskTypeKey, e.task.Type()),
	)

	ctx, span := w.tracer.Start(ctx, "Worker.Execute", trace.WithAttributes(
		attribute.String(tracing.TaskID, e.id.TaskID.String()),
		attribute.String(tracing.TaskType, e.task.Type()),
	))
	defer span.End()

	r, err := w.dispatch(ctx, e, &command.Start{Hostname: w.hostname})
	if err != nil {
		return tracing.WithSpanError(span, err)
	}

	if len(r.Events) == 0 {
		logger.Warn("Task could not be started", slog.String(log.TaskStatusKey, string(r.Status)))
		return nil
	}

	tags := metrics.Tags{metrickeys.TaskType: e.task.Type()}
	w.metrics.Counter(metrickeys.TaskStarted, tags, 1)
	w.metrics.Timing(metrickeys.TaskQueueDelay, tags, w.clock.Since(e.submittedAt))

	if e.cancelRequested.Load() {
		// Cancelled while waiting for a free slot, do not run the task
		logger.Debug("Task cancelled before it ran")

		if _, err := w.dispatch(ctx, e, &command.RequestCancel{Hostname: w.hostname}); err != nil {
			return tracing.WithSpanError(span, err)
		}

		_, err := w.dispatch(ctx, e, &command.Cancel{})
		x.finished(span, tags, core.TaskExecutionStatusCancelled)
		return tracing.WithSpanError(span, err)
	}

	w.metrics.Gauge(metrickeys.TasksRunning, metrics.Tags{}, w.running.Add(1))
	timer := im.NewTimer(w.metrics, w.clock, metrickeys.TaskExecutionTime, tags)

	runCtx := task.WithReporter(e.ctx, func(info task.AdditionalInformation) {
		e.mu.Lock()
		e.latest = info
		e.mu.Unlock()

		x.persistProgress(ctx, e, info)
	})

	result, runErr := run(runCtx, e.task)

	elapsed := timer.Stop()
	w.metrics.Gauge(metrickeys.TasksRunning, metrics.Tags{}, w.running.Add(-1))

	info := x.encode(e.snapshot())

	var cmd command.Command
	switch {
	case runErr == nil:
		if result == "" {
			result = core.ResultCompleted
		}

		cmd = &command.Complete{Result: result, Information: info}

	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, task.ErrCancelled):
		cmd = &command.Cancel{Information: info}

	default:
		cmd = failure(runErr, info)
	}

	r, err = w.dispatch(ctx, e, cmd)
	if err != nil {
		return tracing.WithSpanError(span, err)
	}

	if _, ok := cmd.(*command.Cancel); ok && len(r.Events) == 0 && r.Status == core.TaskExecutionStatusInProgress {
		if e.cancelRequested.Load() {
			// Signalled by a request evaluated while the task was still WAITING, record it now
			if _, err := w.dispatch(ctx, e, &command.RequestCancel{Hostname: w.hostname}); err != nil {
				return tracing.WithSpanError(span, err)
			}

			cmd = &command.Cancel{Information: info}
		} else {
			// The task stopped without a cancellation being requested
			cmd = failure(runErr, info)
		}

		if r, err = w.dispatch(ctx, e, cmd); err != nil {
			return tracing.WithSpanError(span, err)
		}
	}

	logger.Debug("Task finished",
		slog.String(log.TaskStatusKey, string(r.Status)),
		slog.Int64(log.DurationKey, elapsed.Milliseconds()),
	)

	x.finished(span, tags, r.Status)

	return nil
}

func (x *executor) finished(span trace.Span, tags metrics.Tags, status core.TaskExecutionStatus) {
	span.SetAttributes(attribute.String(tracing.TaskStatus, string(status)))

	t := metrics.Tags{metrickeys.Status: string(status)}
	for k, v := range tags {
		t[k] = v
	}

	x.w.metrics.Counter(metrickeys.TaskFinished, t, 1)
}

// Heartbeat records a progress snapshot of tasks providing details
func (x *executor) Heartbeat(ctx context.Context, e *execution) error {
	if _, ok := e.task.(task.DetailsProvider); !ok {
		return nil
	}

	info := e.snapshot()
	if info == nil {
		return nil
	}

	x.persistProgress(ctx, e, info)

	return nil
}

func (x *executor) persistProgress(ctx context.Context, e *execution, info task.AdditionalInformation) {
	e.mu.Lock()
	if !info.Timestamp().IsZero() && info.Timestamp().Equal(e.persisted) {
		e.mu.Unlock()
		return
	}
	e.persisted = info.Timestamp()
	e.mu.Unlock()

	p := x.encode(info)
	if p == nil {
		return
	}

	ts := info.Timestamp()
	if ts.IsZero() {
		ts = x.w.clock.Now()
	}

	if _, err := x.w.dispatch(ctx, e, &command.UpdateAdditionalInformation{Information: *p, Timestamp: ts}); err == nil {
		x.w.metrics.Counter(metrickeys.ProgressUpdates, metrics.Tags{metrickeys.TaskType: e.task.Type()}, 1)
	}
}

func (x *executor) encode(info task.AdditionalInformation) *history.InformationPayload {
	if info == nil {
		return nil
	}

	p, err := x.w.registry.EncodeInformation(x.w.backend.Options().Converter, info)
	if err != nil {
		x.w.logger.Error("Could not encode additional information", "error", err)
		return nil
	}

	return &p
}

func run(ctx context.Context, t task.Task) (result core.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = taskerrors.NewPanicError(r)
		}
	}()

	return t.Run(ctx)
}

func failure(err error, info *history.InformationPayload) *command.Fail {
	te := taskerrors.FromError(err)

	msg := te.Message
	cmd := &command.Fail{ErrorMessage: &msg, Information: info}
	if te.Stacktrace != "" {
		st := te.Stacktrace
		cmd.Stacktrace = &st
	}

	return cmd
}
