package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/backend/memory"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/eventbus"
	"github.com/cschleiden/go-tasks/internal/aggregate"
	"github.com/cschleiden/go-tasks/task"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type progress struct {
	Processed int       `json:"processed"`
	At        time.Time `json:"at"`
}

func (p *progress) Type() string {
	return "progress"
}

func (p *progress) Timestamp() time.Time {
	return p.At
}

func startWorker(t *testing.T, b backend.Backend, options *Options) *Worker {
	t.Helper()

	w := New(b, options)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	t.Cleanup(func() {
		cancel()
		require.NoError(t, w.WaitForCompletion())
	})

	return w
}

func details(t *testing.T, b backend.Backend, id core.TaskID) *aggregate.Details {
	t.Helper()

	h, err := b.GetHistory(context.Background(), core.NewTaskAggregateID(id))
	require.NoError(t, err)

	d, err := aggregate.FoldDetails(core.NewTaskAggregateID(id), h)
	require.NoError(t, err)

	return d
}

func waitForStatus(t *testing.T, b backend.Backend, id core.TaskID, status core.TaskExecutionStatus) *aggregate.Details {
	t.Helper()

	require.Eventually(t, func() bool {
		h, err := b.GetHistory(context.Background(), core.NewTaskAggregateID(id))
		if err != nil || h.IsEmpty() {
			return false
		}

		a, err := aggregate.FromHistory(core.NewTaskAggregateID(id), h)
		return err == nil && a.Status() == status
	}, 5*time.Second, time.Millisecond*5)

	return details(t, b, id)
}

func eventTypes(t *testing.T, b backend.Backend, id core.TaskID) []history.EventType {
	h, err := b.GetHistory(context.Background(), core.NewTaskAggregateID(id))
	require.NoError(t, err)

	r := make([]history.EventType, 0, h.Len())
	for _, e := range h.Events() {
		r = append(r, e.Type)
	}

	return r
}

func Test_Worker_CompletesTask(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	b := memory.NewMemoryBackend()
	w := startWorker(t, b, &Options{Hostname: "node-1"})

	id, err := w.Submit(context.Background(), task.Func(func(ctx context.Context) (core.Result, error) {
		return core.ResultPartiallyCompleted, nil
	}))
	require.NoError(t, err)

	d := waitForStatus(t, b, id, core.TaskExecutionStatusCompleted)
	require.Equal(t, core.Hostname("node-1"), d.SubmittedFrom)
	require.Equal(t, core.Hostname("node-1"), d.RanNode)
	require.Equal(t, core.ResultPartiallyCompleted, *d.Result)

	require.Equal(t, []history.EventType{
		history.EventType_Created,
		history.EventType_Started,
		history.EventType_Completed,
	}, eventTypes(t, b, id))
}

func Test_Worker_FailingTask(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	b := memory.NewMemoryBackend()
	w := startWorker(t, b, nil)

	id, err := w.Submit(context.Background(), task.Func(func(ctx context.Context) (core.Result, error) {
		return "", errors.New("mailbox not found")
	}))
	require.NoError(t, err)

	d := waitForStatus(t, b, id, core.TaskExecutionStatusFailed)
	require.Equal(t, "mailbox not found", *d.ErrorMessage)
}

func Test_Worker_PanickingTask(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	b := memory.NewMemoryBackend()
	w := startWorker(t, b, nil)

	id, err := w.Submit(context.Background(), task.Func(func(ctx context.Context) (core.Result, error) {
		panic("index out of range")
	}))
	require.NoError(t, err)

	d := waitForStatus(t, b, id, core.TaskExecutionStatusFailed)
	require.Equal(t, "panic: index out of range", *d.ErrorMessage)
	require.NotNil(t, d.Stacktrace)
}

func Test_Worker_CancelRunningTask(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	b := memory.NewMemoryBackend()
	w := startWorker(t, b, nil)

	started := make(chan struct{})
	id, err := w.Submit(context.Background(), task.Func(func(ctx context.Context) (core.Result, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}))
	require.NoError(t, err)

	<-started

	status, err := w.RequestCancel(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, core.TaskExecutionStatusCancelRequested, status)

	waitForStatus(t, b, id, core.TaskExecutionStatusCancelled)
	require.Equal(t, []history.EventType{
		history.EventType_Created,
		history.EventType_Started,
		history.EventType_CancelRequested,
		history.EventType_Cancelled,
	}, eventTypes(t, b, id))

	// Cancelling again is a no-op
	status, err = w.RequestCancel(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, core.TaskExecutionStatusCancelled, status)
}

func Test_Worker_TaskIgnoringCancellation(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	b := memory.NewMemoryBackend()
	w := startWorker(t, b, nil)

	started := make(chan struct{})
	proceed := make(chan struct{})
	id, err := w.Submit(context.Background(), task.Func(func(ctx context.Context) (core.Result, error) {
		close(started)
		<-proceed
		return core.ResultCompleted, nil
	}))
	require.NoError(t, err)

	<-started

	status, err := w.RequestCancel(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, core.TaskExecutionStatusCancelRequested, status)
	require.Equal(t, core.TaskExecutionStatusCancelRequested, details(t, b, id).Status)

	close(proceed)

	waitForStatus(t, b, id, core.TaskExecutionStatusCompleted)
}

func Test_Worker_CancelQueuedTask(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	b := memory.NewMemoryBackend()
	w := startWorker(t, b, &Options{MaxParallelTasks: 1})

	release := make(chan struct{})
	first, err := w.Submit(context.Background(), task.Func(func(ctx context.Context) (core.Result, error) {
		<-release
		return core.ResultCompleted, nil
	}))
	require.NoError(t, err)
	waitForStatus(t, b, first, core.TaskExecutionStatusInProgress)

	ran := false
	second, err := w.Submit(context.Background(), task.Func(func(ctx context.Context) (core.Result, error) {
		ran = true
		return core.ResultCompleted, nil
	}))
	require.NoError(t, err)

	status, err := w.RequestCancel(context.Background(), second)
	require.NoError(t, err)
	require.Equal(t, core.TaskExecutionStatusWaiting, status)

	close(release)

	waitForStatus(t, b, first, core.TaskExecutionStatusCompleted)
	waitForStatus(t, b, second, core.TaskExecutionStatusCancelled)
	require.False(t, ran)
}

// stalledReadBackend holds the first history read after being armed until released
type stalledReadBackend struct {
	backend.Backend

	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (b *stalledReadBackend) GetHistory(ctx context.Context, id core.TaskAggregateID) (*history.History, error) {
	h, err := b.Backend.GetHistory(ctx, id)

	if b.armed.CompareAndSwap(true, false) {
		close(b.read)
		<-b.release
	}

	return h, err
}

func Test_Worker_CancelRequestedWhileStarting(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	b := &stalledReadBackend{
		Backend: memory.NewMemoryBackend(),
		read:    make(chan struct{}),
		release: make(chan struct{}),
	}
	w := startWorker(t, b, &Options{MaxParallelTasks: 1})

	releaseFirst := make(chan struct{})
	first, err := w.Submit(context.Background(), task.Func(func(ctx context.Context) (core.Result, error) {
		<-releaseFirst
		return core.ResultCompleted, nil
	}))
	require.NoError(t, err)
	waitForStatus(t, b, first, core.TaskExecutionStatusInProgress)

	started := make(chan struct{})
	second, err := w.Submit(context.Background(), task.Func(func(ctx context.Context) (core.Result, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}))
	require.NoError(t, err)

	// The cancel request sees the task WAITING, then the task starts before the request returns
	b.armed.Store(true)
	statusCh := make(chan core.TaskExecutionStatus, 1)
	errCh := make(chan error, 1)
	go func() {
		status, err := w.RequestCancel(context.Background(), second)
		statusCh <- status
		errCh <- err
	}()

	<-b.read
	close(releaseFirst)
	<-started
	close(b.release)

	require.NoError(t, <-errCh)
	require.Equal(t, core.TaskExecutionStatusWaiting, <-statusCh)

	d := waitForStatus(t, b, second, core.TaskExecutionStatusCancelled)
	require.Nil(t, d.ErrorMessage)
	require.Equal(t, []history.EventType{
		history.EventType_Created,
		history.EventType_Started,
		history.EventType_CancelRequested,
		history.EventType_Cancelled,
	}, eventTypes(t, b, second))
}

type reportingTask struct {
	Mailbox string `json:"mailbox"`

	processed int
}

func (rt *reportingTask) Type() string {
	return "reporting"
}

func (rt *reportingTask) Run(ctx context.Context) (core.Result, error) {
	for i := 1; i <= 3; i++ {
		rt.processed = i
		task.ReportProgress(ctx, &progress{Processed: i, At: time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC)})
	}

	return core.ResultCompleted, nil
}

func (rt *reportingTask) Details() task.AdditionalInformation {
	return &progress{Processed: rt.processed, At: time.Date(2024, 1, 1, 0, 0, rt.processed, 0, time.UTC)}
}

func Test_Worker_ReportsProgress(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	b := memory.NewMemoryBackend()
	w := startWorker(t, b, &Options{ProgressInterval: 0})

	id, err := w.Submit(context.Background(), &reportingTask{Mailbox: "bob@domain.tld"})
	require.NoError(t, err)

	d := waitForStatus(t, b, id, core.TaskExecutionStatusCompleted)
	require.Equal(t, "reporting", d.Type)
	require.JSONEq(t, `{"mailbox":"bob@domain.tld"}`, string(d.Task.Data))

	require.Equal(t, []history.EventType{
		history.EventType_Created,
		history.EventType_Started,
		history.EventType_AdditionalInformationUpdated,
		history.EventType_AdditionalInformationUpdated,
		history.EventType_AdditionalInformationUpdated,
		history.EventType_Completed,
	}, eventTypes(t, b, id))

	info := &progress{}
	require.NoError(t, b.Options().Converter.From(d.Information.Data, info))
	require.Equal(t, 3, info.Processed)
}

func Test_Worker_RemoteCancellation(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	b := memory.NewMemoryBackend()
	bus := eventbus.NewLocalBus()

	owner := startWorker(t, b, &Options{Hostname: "node-1", Bus: bus})
	remote := startWorker(t, b, &Options{Hostname: "node-2", Bus: bus})

	started := make(chan struct{})
	id, err := owner.Submit(context.Background(), task.Func(func(ctx context.Context) (core.Result, error) {
		close(started)
		<-ctx.Done()
		return "", task.ErrCancelled
	}))
	require.NoError(t, err)

	<-started

	status, err := remote.RequestCancel(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, core.TaskExecutionStatusCancelRequested, status)

	d := waitForStatus(t, b, id, core.TaskExecutionStatusCancelled)
	require.Equal(t, core.Hostname("node-2"), d.CancelRequestedBy)
	require.Equal(t, core.Hostname("node-1"), d.RanNode)
}

func Test_Worker_CancelUnknownTask(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	w := startWorker(t, memory.NewMemoryBackend(), nil)

	_, err := w.RequestCancel(context.Background(), core.NewTaskID())
	require.ErrorIs(t, err, backend.ErrAggregateNotFound)
}

func Test_Worker_SubmitAfterStop(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	b := memory.NewMemoryBackend()
	w := New(b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()
	require.NoError(t, w.WaitForCompletion())

	_, err := w.Submit(context.Background(), task.Func(func(ctx context.Context) (core.Result, error) {
		return core.ResultCompleted, nil
	}))
	require.ErrorIs(t, err, ErrWorkerStopped)

	ids, err := b.ListAggregates(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 1)

	d := details(t, b, ids[0].TaskID)
	require.Equal(t, core.TaskExecutionStatusFailed, d.Status)
}
