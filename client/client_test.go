package client

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/backend/memory"
	"github.com/cschleiden/go-tasks/core"
	mi "github.com/cschleiden/go-tasks/internal/metrics"
	"github.com/cschleiden/go-tasks/task"
	"github.com/cschleiden/go-tasks/worker"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func startClient(t *testing.T, b backend.Backend, opts ...Option) *Client {
	t.Helper()

	w := worker.New(b, &worker.Options{Hostname: "node-1"})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	t.Cleanup(func() {
		cancel()
		require.NoError(t, w.WaitForCompletion())
	})

	return New(b, append([]Option{WithWorker(w)}, opts...)...)
}

func mockBackend() *backend.MockBackend {
	options := backend.ApplyOptions()

	b := &backend.MockBackend{}
	b.On("Logger").Return(slog.Default())
	b.On("Tracer").Return(noop.NewTracerProvider().Tracer("test"))
	b.On("Metrics").Return(mi.NewNoopMetricsClient())
	b.On("Options").Return(&options).Maybe()

	return b
}

func blockingTask() task.Task {
	return task.Func(func(ctx context.Context) (core.Result, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
}

func Test_Client_SubmitWithoutWorker(t *testing.T) {
	c := New(memory.NewMemoryBackend())

	_, err := c.SubmitTask(context.Background(), blockingTask())
	require.ErrorIs(t, err, ErrNoWorker)
}

func Test_Client_GetUnknownTask(t *testing.T) {
	c := New(memory.NewMemoryBackend())

	d, err := c.GetTask(context.Background(), core.NewTaskID())
	require.Nil(t, d)
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func Test_Client_SubmitAndAwait(t *testing.T) {
	ctx := context.Background()
	c := startClient(t, memory.NewMemoryBackend())

	id, err := c.SubmitTask(ctx, task.Func(func(ctx context.Context) (core.Result, error) {
		return core.ResultCompleted, nil
	}))
	require.NoError(t, err)

	d, err := c.AwaitTask(ctx, id, time.Second*5)
	require.NoError(t, err)
	require.Equal(t, id, d.ID)
	require.Equal(t, core.TaskExecutionStatusCompleted, d.Status)
	require.Equal(t, core.ResultCompleted, *d.Result)
	require.Equal(t, task.MemoryReferenceTaskType, d.Type)
	require.Equal(t, core.Hostname("node-1"), d.SubmittedFrom)
	require.Equal(t, core.Hostname("node-1"), d.RanNode)
	require.NotNil(t, d.CompletedAt)
	require.Equal(t, d.CompletedAt, d.FinishedAt())
	require.IsType(t, &task.MemoryReferenceTask{}, d.Task)
}

func Test_Client_AwaitTimeout(t *testing.T) {
	ctx := context.Background()
	c := startClient(t, memory.NewMemoryBackend())

	id, err := c.SubmitTask(ctx, blockingTask())
	require.NoError(t, err)

	d, err := c.AwaitTask(ctx, id, time.Millisecond*10)
	require.Nil(t, d)
	require.ErrorIs(t, err, ErrTimeout)

	var terr *TimeoutError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, id, terr.TaskID)
	require.False(t, terr.Status.IsTerminal())

	_, err = c.CancelTask(ctx, id)
	require.NoError(t, err)

	d, err = c.AwaitTask(ctx, id, time.Second*5)
	require.NoError(t, err)
	require.Equal(t, core.TaskExecutionStatusCancelled, d.Status)
	require.Equal(t, core.Hostname("node-1"), d.CancelRequestedBy)
}

func Test_Client_AwaitUnknownTask(t *testing.T) {
	c := New(memory.NewMemoryBackend())

	_, err := c.AwaitTask(context.Background(), core.NewTaskID(), time.Second)
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func Test_Client_AwaitHonorsContext(t *testing.T) {
	c := startClient(t, memory.NewMemoryBackend())

	id, err := c.SubmitTask(context.Background(), blockingTask())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*10)
	defer cancel()

	_, err = c.AwaitTask(ctx, id, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = c.CancelTask(context.Background(), id)
	require.NoError(t, err)
}

func Test_Client_CancelUnknownTask(t *testing.T) {
	c := New(memory.NewMemoryBackend())

	_, err := c.CancelTask(context.Background(), core.NewTaskID())
	require.ErrorIs(t, err, ErrTaskNotFound)
}

func Test_Client_CancelFinishedTaskIsNoop(t *testing.T) {
	ctx := context.Background()
	b := memory.NewMemoryBackend()
	c := startClient(t, b)

	id, err := c.SubmitTask(ctx, task.Func(func(ctx context.Context) (core.Result, error) {
		return core.ResultCompleted, nil
	}))
	require.NoError(t, err)

	_, err = c.AwaitTask(ctx, id, time.Second*5)
	require.NoError(t, err)

	// A client without worker, for example on an admin node
	admin := New(b, WithHostname("admin"))

	status, err := admin.CancelTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, core.TaskExecutionStatusCompleted, status)

	h, err := b.GetHistory(ctx, core.NewTaskAggregateID(id))
	require.NoError(t, err)
	require.Equal(t, 3, h.Len())
}

func Test_Client_CancelFromOtherNode(t *testing.T) {
	ctx := context.Background()
	b := memory.NewMemoryBackend()
	c := startClient(t, b)

	id, err := c.SubmitTask(ctx, blockingTask())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		d, err := c.GetTask(ctx, id)
		return err == nil && d.Status == core.TaskExecutionStatusInProgress
	}, time.Second*5, time.Millisecond*5)

	// Sharing the bus delivers the request to the executing worker
	admin := New(b, WithHostname("admin"), WithBus(c.bus))

	status, err := admin.CancelTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, core.TaskExecutionStatusCancelRequested, status)

	d, err := admin.AwaitTask(ctx, id, time.Second*5)
	require.NoError(t, err)
	require.Equal(t, core.TaskExecutionStatusCancelled, d.Status)
	require.Equal(t, core.Hostname("admin"), d.CancelRequestedBy)
}

func Test_Client_CachesFinishedTasks(t *testing.T) {
	id := core.NewTaskAggregateID(core.NewTaskID())
	now := time.Now()

	h, err := history.Of(
		history.NewEvent(id, 0, now, history.EventType_Created, &history.CreatedAttributes{
			Task: history.TaskPayload{Type: "unregistered"},
		}),
		history.NewEvent(id, 1, now, history.EventType_Started, &history.StartedAttributes{}),
		history.NewEvent(id, 2, now, history.EventType_Completed, &history.CompletedAttributes{Result: core.ResultCompleted}),
	)
	require.NoError(t, err)

	b := mockBackend()
	b.On("GetHistory", mock.Anything, id).Return(h, nil).Once()

	c := New(b)

	for i := 0; i < 3; i++ {
		d, err := c.GetTask(context.Background(), id.TaskID)
		require.NoError(t, err)
		require.Equal(t, core.TaskExecutionStatusCompleted, d.Status)
		require.Equal(t, "unregistered", d.Type)
		require.Nil(t, d.Task)
	}

	b.AssertExpectations(t)
}

func Test_Client_DoesNotCacheActiveTasks(t *testing.T) {
	id := core.NewTaskAggregateID(core.NewTaskID())

	h, err := history.Of(
		history.NewEvent(id, 0, time.Now(), history.EventType_Created, &history.CreatedAttributes{}),
	)
	require.NoError(t, err)

	b := mockBackend()
	b.On("GetHistory", mock.Anything, id).Return(h, nil).Twice()

	c := New(b)

	for i := 0; i < 2; i++ {
		d, err := c.GetTask(context.Background(), id.TaskID)
		require.NoError(t, err)
		require.Equal(t, core.TaskExecutionStatusWaiting, d.Status)
	}

	b.AssertExpectations(t)
}

func Test_Client_GetTaskBackendError(t *testing.T) {
	id := core.NewTaskAggregateID(core.NewTaskID())
	dbErr := errors.New("connection refused")

	b := mockBackend()
	b.On("GetHistory", mock.Anything, id).Return(nil, dbErr).Once()

	c := New(b)

	_, err := c.GetTask(context.Background(), id.TaskID)
	require.ErrorIs(t, err, dbErr)
	b.AssertExpectations(t)
}

func Test_Client_ListTasks(t *testing.T) {
	ctx := context.Background()
	c := startClient(t, memory.NewMemoryBackend())

	done, err := c.SubmitTask(ctx, task.Func(func(ctx context.Context) (core.Result, error) {
		return core.ResultCompleted, nil
	}))
	require.NoError(t, err)

	_, err = c.AwaitTask(ctx, done, time.Second*5)
	require.NoError(t, err)

	running, err := c.SubmitTask(ctx, blockingTask())
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = c.CancelTask(context.Background(), running)
	})

	all, err := c.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, done, all[0].ID)
	require.Equal(t, running, all[1].ID)

	finished, err := c.ListTasks(ctx, WithStatus(core.TaskExecutionStatusCompleted))
	require.NoError(t, err)
	require.Len(t, finished, 1)
	require.Equal(t, done, finished[0].ID)

	byType, err := c.ListTasks(ctx, WithType(task.MemoryReferenceTaskType))
	require.NoError(t, err)
	require.Len(t, byType, 2)

	none, err := c.ListTasks(ctx, WithType("reindex"))
	require.NoError(t, err)
	require.Empty(t, none)
}

func Test_Client_RemoveTasks(t *testing.T) {
	ctx := context.Background()
	mc := clock.NewMock()
	mc.Set(time.Now())

	b := memory.NewMemoryBackend()
	c := startClient(t, b, WithClock(mc))

	id, err := c.SubmitTask(ctx, task.Func(func(ctx context.Context) (core.Result, error) {
		return core.ResultCompleted, nil
	}))
	require.NoError(t, err)

	_, err = c.AwaitTask(ctx, id, time.Second*5)
	require.NoError(t, err)

	running, err := c.SubmitTask(ctx, blockingTask())
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = c.CancelTask(context.Background(), running)
	})

	// Retention not yet elapsed
	require.NoError(t, c.RemoveExpiredTasks(ctx, time.Hour))
	_, err = c.GetTask(ctx, id)
	require.NoError(t, err)

	require.NoError(t, c.RemoveTasks(ctx, time.Now().Add(time.Minute)))

	_, err = c.GetTask(ctx, id)
	require.ErrorIs(t, err, ErrTaskNotFound)

	_, err = c.GetTask(ctx, running)
	require.NoError(t, err)

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.ActiveTasks)
	require.Equal(t, int64(0), stats.FinishedTasks)
}
