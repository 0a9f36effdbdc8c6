package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var (
	ErrWorkerStopped    = errors.New("worker is not accepting tasks")
	ErrWorkerNotStarted = errors.New("worker has not been started")
)

// TaskWorker executes the tasks handed to a Worker
type TaskWorker[Task any] interface {
	// Execute runs the task to completion
	Execute(context.Context, *Task) error

	// Heartbeat is called periodically while the task executes
	Heartbeat(context.Context, *Task) error
}

type WorkerOptions struct {
	// MaxParallelTasks limits concurrently executing tasks, 0 means unlimited. Queued tasks wait for a free slot.
	MaxParallelTasks int

	// HeartbeatInterval is the interval between heartbeats of an executing task, 0 disables heartbeats
	HeartbeatInterval time.Duration
}

// Worker executes enqueued tasks on their own goroutines. Enqueue never blocks, tasks beyond
// MaxParallelTasks wait for a slot on their goroutine.
type Worker[Task any] struct {
	options *WorkerOptions

	tw TaskWorker[Task]

	queue *workQueue[Task]

	logger *slog.Logger
	clock  clock.Clock

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}

	wg sync.WaitGroup
}

func NewWorker[Task any](logger *slog.Logger, clock clock.Clock, tw TaskWorker[Task], options *WorkerOptions) *Worker[Task] {
	return &Worker[Task]{
		tw:      tw,
		options: options,
		queue:   newWorkQueue[Task](options.MaxParallelTasks),
		logger:  logger,
		clock:   clock,
		stopCh:  make(chan struct{}),
	}
}

// Start starts executing enqueued tasks. Once ctx is done, no new tasks are accepted.
func (w *Worker[Task]) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrWorkerStopped
	}

	if w.started {
		return errors.New("worker already started")
	}

	w.started = true

	go func() {
		select {
		case <-ctx.Done():
			w.stop()
		case <-w.stopCh:
		}
	}()

	return nil
}

// Enqueue schedules the task for execution
func (w *Worker[Task]) Enqueue(t *Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrWorkerStopped
	}

	if !w.started {
		return ErrWorkerNotStarted
	}

	w.wg.Add(1)
	go w.run(t)

	return nil
}

// WaitForCompletion stops accepting tasks and waits for all enqueued tasks to finish. It returns
// immediately if the worker was never started.
func (w *Worker[Task]) WaitForCompletion() error {
	w.stop()

	w.wg.Wait()

	return nil
}

func (w *Worker[Task]) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
}

func (w *Worker[Task]) run(t *Task) {
	defer w.wg.Done()

	// Tasks run to completion even when the worker is stopped
	taskCtx := context.Background()

	// If limited max tasks, wait for a slot to open up
	if err := w.queue.reserve(taskCtx); err != nil {
		return
	}
	defer w.queue.release()

	if err := w.handle(taskCtx, t); err != nil {
		w.logger.ErrorContext(taskCtx, "error handling task", "error", err)
	}
}

func (w *Worker[Task]) handle(ctx context.Context, t *Task) error {
	if w.options.HeartbeatInterval > 0 {
		// Start heartbeat while processing task
		heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
		defer cancelHeartbeat()
		go w.heartbeatTask(heartbeatCtx, t)
	}

	return w.tw.Execute(ctx, t)
}

func (w *Worker[Task]) heartbeatTask(ctx context.Context, task *Task) {
	t := w.clock.Ticker(w.options.HeartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := w.tw.Heartbeat(ctx, task); err != nil {
				w.logger.ErrorContext(ctx, "could not heartbeat task", "error", err)
			}
		}
	}
}
