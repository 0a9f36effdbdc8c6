package test

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/client"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/worker"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type backendTest struct {
	name string

	// options overrides the worker options used for the test
	options *worker.Options

	f func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend)
}

// EndToEndBackendTest runs tasks through a worker and client on the backend returned by setup.
func EndToEndBackendTest(t *testing.T, setup func() backend.Backend, teardown func(b backend.Backend)) {
	tests := []backendTest{
		{
			name: "SubmitTask_Completes",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				id, err := c.SubmitTask(ctx, &reindexTask{Mailbox: "inbox", Result: core.ResultPartiallyCompleted})
				require.NoError(t, err)

				d := awaitTask(t, ctx, c, id)
				require.Equal(t, core.TaskExecutionStatusCompleted, d.Status)
				require.Equal(t, core.ResultPartiallyCompleted, *d.Result)
				require.Equal(t, "test-reindex", d.Type)
				require.Equal(t, w.Hostname(), d.SubmittedFrom)
				require.Equal(t, w.Hostname(), d.RanNode)
				require.NotNil(t, d.StartedAt)
				require.NotNil(t, d.CompletedAt)

				rt, ok := d.Task.(*reindexTask)
				require.True(t, ok)
				require.Equal(t, "inbox", rt.Mailbox)

				require.Equal(t, []history.EventType{
					history.EventType_Created,
					history.EventType_Started,
					history.EventType_Completed,
				}, eventTypes(t, ctx, b, core.NewTaskAggregateID(id)))
			},
		},
		{
			name: "SubmitTask_EmptyResultCompletes",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				id, err := c.SubmitTask(ctx, &reindexTask{Mailbox: "inbox"})
				require.NoError(t, err)

				d := awaitTask(t, ctx, c, id)
				require.Equal(t, core.ResultCompleted, *d.Result)
			},
		},
		{
			name: "SubmitTask_FailingTaskFails",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				id, err := c.SubmitTask(ctx, &failingTask{Mailbox: "archive"})
				require.NoError(t, err)

				d := awaitTask(t, ctx, c, id)
				require.Equal(t, core.TaskExecutionStatusFailed, d.Status)
				require.NotNil(t, d.ErrorMessage)
				require.Contains(t, *d.ErrorMessage, errMailboxNotFound.Error())
				require.NotNil(t, d.Stacktrace)
				require.NotNil(t, d.FailedAt)
				require.Nil(t, d.Result)
			},
		},
		{
			name: "SubmitTask_PanickingTaskFails",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				id, err := c.SubmitTask(ctx, &panickingTask{})
				require.NoError(t, err)

				d := awaitTask(t, ctx, c, id)
				require.Equal(t, core.TaskExecutionStatusFailed, d.Status)
				require.Contains(t, *d.ErrorMessage, "panic")
				require.NotEmpty(t, *d.Stacktrace)

				// The worker keeps executing tasks
				id, err = c.SubmitTask(ctx, &reindexTask{})
				require.NoError(t, err)
				require.Equal(t, core.TaskExecutionStatusCompleted, awaitTask(t, ctx, c, id).Status)
			},
		},
		{
			name: "CancelTask_CancelsRunningTask",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				bt := newBlockingTask()
				id, err := c.SubmitTask(ctx, bt)
				require.NoError(t, err)

				<-bt.started
				waitForStatus(t, ctx, c, id, core.TaskExecutionStatusInProgress)

				status, err := c.CancelTask(ctx, id)
				require.NoError(t, err)
				require.Equal(t, core.TaskExecutionStatusCancelRequested, status)

				// Requesting again is a no-op
				status, err = c.CancelTask(ctx, id)
				require.NoError(t, err)
				require.Contains(t, []core.TaskExecutionStatus{
					core.TaskExecutionStatusCancelRequested,
					core.TaskExecutionStatusCancelled,
				}, status)

				d := awaitTask(t, ctx, c, id)
				require.Equal(t, core.TaskExecutionStatusCancelled, d.Status)
				require.Equal(t, w.Hostname(), d.CancelRequestedBy)
				require.NotNil(t, d.CancelRequestedAt)
				require.NotNil(t, d.CancelledAt)

				require.Equal(t, []history.EventType{
					history.EventType_Created,
					history.EventType_Started,
					history.EventType_CancelRequested,
					history.EventType_Cancelled,
				}, eventTypes(t, ctx, b, core.NewTaskAggregateID(id)))
			},
		},
		{
			name:    "CancelTask_CancelsQueuedTask",
			options: &worker.Options{MaxParallelTasks: 1},
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				bt := newBlockingTask()
				running, err := c.SubmitTask(ctx, bt)
				require.NoError(t, err)
				<-bt.started

				queued, err := c.SubmitTask(ctx, &reindexTask{})
				require.NoError(t, err)

				status, err := c.CancelTask(ctx, queued)
				require.NoError(t, err)
				require.Equal(t, core.TaskExecutionStatusWaiting, status)

				_, err = c.CancelTask(ctx, running)
				require.NoError(t, err)

				require.Equal(t, core.TaskExecutionStatusCancelled, awaitTask(t, ctx, c, running).Status)

				d := awaitTask(t, ctx, c, queued)
				require.Equal(t, core.TaskExecutionStatusCancelled, d.Status)
				require.Nil(t, d.Result)

				require.Equal(t, []history.EventType{
					history.EventType_Created,
					history.EventType_Started,
					history.EventType_CancelRequested,
					history.EventType_Cancelled,
				}, eventTypes(t, ctx, b, core.NewTaskAggregateID(queued)))
			},
		},
		{
			name: "CancelTask_FinishedTaskIsNoop",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				id, err := c.SubmitTask(ctx, &reindexTask{})
				require.NoError(t, err)
				awaitTask(t, ctx, c, id)

				status, err := c.CancelTask(ctx, id)
				require.NoError(t, err)
				require.Equal(t, core.TaskExecutionStatusCompleted, status)
				require.Len(t, eventTypes(t, ctx, b, core.NewTaskAggregateID(id)), 3)
			},
		},
		{
			name: "CancelTask_UnknownTask",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				_, err := c.CancelTask(ctx, core.NewTaskID())
				require.ErrorIs(t, err, client.ErrTaskNotFound)
			},
		},
		{
			name: "GetTask_UnknownTask",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				_, err := c.GetTask(ctx, core.NewTaskID())
				require.ErrorIs(t, err, client.ErrTaskNotFound)
			},
		},
		{
			name: "ReportProgress_RecordsInformation",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				id, err := c.SubmitTask(ctx, &progressTask{Steps: 3})
				require.NoError(t, err)

				d := awaitTask(t, ctx, c, id)
				require.Equal(t, core.TaskExecutionStatusCompleted, d.Status)

				info, ok := d.Information.(*progressInformation)
				require.True(t, ok)
				require.Equal(t, 3, info.Processed)

				types := eventTypes(t, ctx, b, core.NewTaskAggregateID(id))
				require.Equal(t, 3, countOf(types, history.EventType_AdditionalInformationUpdated))
				require.Equal(t, history.EventType_Completed, types[len(types)-1])
			},
		},
		{
			name: "AwaitTask_Timeout",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				bt := newBlockingTask()
				id, err := c.SubmitTask(ctx, bt)
				require.NoError(t, err)
				<-bt.started

				_, err = c.AwaitTask(ctx, id, time.Millisecond*50)
				require.ErrorIs(t, err, client.ErrTimeout)

				_, err = c.CancelTask(ctx, id)
				require.NoError(t, err)
				awaitTask(t, ctx, c, id)
			},
		},
		{
			name: "ListTasks_FiltersByStatusAndType",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				done, err := c.SubmitTask(ctx, &reindexTask{})
				require.NoError(t, err)
				awaitTask(t, ctx, c, done)

				failed, err := c.SubmitTask(ctx, &failingTask{})
				require.NoError(t, err)
				awaitTask(t, ctx, c, failed)

				tasks, err := c.ListTasks(ctx, client.WithStatus(core.TaskExecutionStatusFailed))
				require.NoError(t, err)
				require.Contains(t, taskIDs(tasks), failed)
				require.NotContains(t, taskIDs(tasks), done)

				tasks, err = c.ListTasks(ctx, client.WithType("test-reindex"))
				require.NoError(t, err)
				require.Contains(t, taskIDs(tasks), done)
				require.NotContains(t, taskIDs(tasks), failed)

				all, err := c.ListTasks(ctx)
				require.NoError(t, err)
				ids := taskIDs(all)
				require.Less(t, slices.Index(ids, done), slices.Index(ids, failed))
			},
		},
		{
			name: "RemoveTasks_RemovesFinishedBefore",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				old, err := c.SubmitTask(ctx, &reindexTask{})
				require.NoError(t, err)
				awaitTask(t, ctx, c, old)

				now := time.Now()
				time.Sleep(50 * time.Millisecond)

				recent, err := c.SubmitTask(ctx, &reindexTask{})
				require.NoError(t, err)
				awaitTask(t, ctx, c, recent)

				require.NoError(t, c.RemoveTasks(ctx, now))

				_, err = c.GetTask(ctx, old)
				require.ErrorIs(t, err, client.ErrTaskNotFound)

				_, err = c.GetTask(ctx, recent)
				require.NoError(t, err)
			},
		},
		{
			name: "GetStats_CountsTasks",
			f: func(t *testing.T, ctx context.Context, c *client.Client, w *worker.Worker, b backend.Backend) {
				before, err := c.GetStats(ctx)
				require.NoError(t, err)

				bt := newBlockingTask()
				id, err := c.SubmitTask(ctx, bt)
				require.NoError(t, err)
				<-bt.started

				s, err := c.GetStats(ctx)
				require.NoError(t, err)
				require.Equal(t, before.ActiveTasks+1, s.ActiveTasks)

				_, err = c.CancelTask(ctx, id)
				require.NoError(t, err)
				awaitTask(t, ctx, c, id)

				s, err = c.GetStats(ctx)
				require.NoError(t, err)
				require.Equal(t, before.ActiveTasks, s.ActiveTasks)
				require.Equal(t, before.FinishedTasks+1, s.FinishedTasks)
			},
		},
		{
			name: "Tracing_TasksHaveSpans",
			f: func(t *testing.T, ctx context.Context, _ *client.Client, _ *worker.Worker, b backend.Backend) {
				exporter := tracetest.NewInMemoryExporter()
				provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
				b.Options().TracerProvider = provider

				// Tracers are resolved when constructing worker and client
				w := worker.New(b, nil)
				ctx, cancel := context.WithCancel(ctx)
				require.NoError(t, w.Start(ctx))
				c := client.New(b, client.WithWorker(w))

				id, err := c.SubmitTask(ctx, &reindexTask{})
				require.NoError(t, err)
				awaitTask(t, ctx, c, id)

				cancel()
				require.NoError(t, w.WaitForCompletion())

				spans := exporter.GetSpans().Snapshots()

				submit := findSpan(spans, "Worker.Submit")
				require.NotNil(t, submit)

				execute := findSpan(spans, "Worker.Execute")
				require.NotNil(t, execute)

				require.NotNil(t, findSpan(spans, "Client.AwaitTask"))
				require.NotNil(t, findSpan(spans, "Dispatcher.Dispatch"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setup()
			ctx, cancel := context.WithCancel(context.Background())

			options := worker.DefaultOptions
			if tt.options != nil {
				options = *tt.options
			}

			w := worker.New(b, &options)
			require.NoError(t, w.Start(ctx))

			c := client.New(b, client.WithWorker(w))

			tt.f(t, ctx, c, w, b)

			cancel()
			require.NoError(t, w.WaitForCompletion(), "worker did not stop")

			if teardown != nil {
				teardown(b)
			}
		})
	}
}

func awaitTask(t *testing.T, ctx context.Context, c *client.Client, id core.TaskID) *client.TaskDetails {
	t.Helper()

	d, err := c.AwaitTask(ctx, id, time.Second*10)
	require.NoError(t, err)

	return d
}

func waitForStatus(t *testing.T, ctx context.Context, c *client.Client, id core.TaskID, status core.TaskExecutionStatus) {
	t.Helper()

	require.Eventually(t, func() bool {
		d, err := c.GetTask(ctx, id)
		return err == nil && d.Status == status
	}, time.Second*10, time.Millisecond*10)
}

func taskIDs(tasks []*client.TaskDetails) []core.TaskID {
	ids := make([]core.TaskID, 0, len(tasks))
	for _, d := range tasks {
		ids = append(ids, d.ID)
	}

	return ids
}

func countOf(types []history.EventType, et history.EventType) int {
	n := 0
	for _, t := range types {
		if t == et {
			n++
		}
	}

	return n
}

func findSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if strings.Contains(s.Name(), name) {
			return s
		}
	}

	return nil
}
