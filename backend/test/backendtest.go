package test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/core"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// BackendTest verifies the event log contract of the backend returned by setup.
func BackendTest(t *testing.T, setup func() backend.Backend, teardown func(b backend.Backend)) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, b backend.Backend)
	}{
		{
			name: "GetHistory_EmptyForUnknownAggregate",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				h, err := b.GetHistory(ctx, newAggregateID())
				require.NoError(t, err)
				require.True(t, h.IsEmpty())
				require.Equal(t, core.FirstEventID, h.NextEventID())
			},
		},
		{
			name: "AppendEvents_CreatesStream",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := newAggregateID()
				events := []*history.Event{createdEvent(id)}

				require.NoError(t, b.AppendEvents(ctx, id, core.FirstEventID, events))

				h, err := b.GetHistory(ctx, id)
				require.NoError(t, err)
				require.Empty(t, cmp.Diff(events, h.Events()))
				require.Equal(t, core.EventID(1), h.NextEventID())
			},
		},
		{
			name: "AppendEvents_RoundtripsAllEventTypes",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := newAggregateID()
				now := time.Now()
				msg := "mailbox not found"
				stack := "goroutine 1 [running]"
				info := &history.InformationPayload{Type: "progress", Data: []byte(`{"processed":42}`)}

				events := []*history.Event{
					createdEvent(id),
					history.NewEvent(id, 1, now, history.EventType_Started, &history.StartedAttributes{Hostname: "node-2"}),
					history.NewEvent(id, 2, now, history.EventType_AdditionalInformationUpdated, &history.AdditionalInformationUpdatedAttributes{
						Information: *info,
						Timestamp:   now,
					}),
					history.NewEvent(id, 3, now, history.EventType_CancelRequested, &history.CancelRequestedAttributes{Hostname: "node-3"}),
					history.NewEvent(id, 4, now, history.EventType_Failed, &history.FailedAttributes{
						ErrorMessage: &msg,
						Stacktrace:   &stack,
						Information:  info,
					}),
				}

				require.NoError(t, b.AppendEvents(ctx, id, core.FirstEventID, events))

				h, err := b.GetHistory(ctx, id)
				require.NoError(t, err)
				require.Empty(t, cmp.Diff(events, h.Events()))
			},
		},
		{
			name: "AppendEvents_ContinuesStream",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := newAggregateID()
				require.NoError(t, b.AppendEvents(ctx, id, core.FirstEventID, []*history.Event{createdEvent(id)}))

				started := history.NewEvent(id, 1, time.Now(), history.EventType_Started, &history.StartedAttributes{Hostname: "node-1"})
				require.NoError(t, b.AppendEvents(ctx, id, 1, []*history.Event{started}))

				completed := history.NewEvent(id, 2, time.Now(), history.EventType_Completed, &history.CompletedAttributes{Result: core.ResultCompleted})
				require.NoError(t, b.AppendEvents(ctx, id, 2, []*history.Event{completed}))

				require.Equal(t, []history.EventType{
					history.EventType_Created,
					history.EventType_Started,
					history.EventType_Completed,
				}, eventTypes(t, ctx, b, id))
			},
		},
		{
			name: "AppendEvents_EmptyIsNoop",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := newAggregateID()
				require.NoError(t, b.AppendEvents(ctx, id, core.FirstEventID, nil))

				h, err := b.GetHistory(ctx, id)
				require.NoError(t, err)
				require.True(t, h.IsEmpty())
			},
		},
		{
			name: "AppendEvents_CreateTwiceConflicts",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := newAggregateID()
				require.NoError(t, b.AppendEvents(ctx, id, core.FirstEventID, []*history.Event{createdEvent(id)}))

				err := b.AppendEvents(ctx, id, core.FirstEventID, []*history.Event{createdEvent(id)})
				require.ErrorIs(t, err, backend.ErrConcurrentModification)
			},
		},
		{
			name: "AppendEvents_StaleExpectedIDConflicts",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := newAggregateID()
				require.NoError(t, b.AppendEvents(ctx, id, core.FirstEventID, []*history.Event{createdEvent(id)}))
				require.NoError(t, b.AppendEvents(ctx, id, 1, []*history.Event{
					history.NewEvent(id, 1, time.Now(), history.EventType_Started, &history.StartedAttributes{}),
				}))

				// Evaluated against a history before Started was appended
				err := b.AppendEvents(ctx, id, 1, []*history.Event{
					history.NewEvent(id, 1, time.Now(), history.EventType_CancelRequested, &history.CancelRequestedAttributes{}),
				})
				require.ErrorIs(t, err, backend.ErrConcurrentModification)

				// Ahead of the stream
				err = b.AppendEvents(ctx, id, 5, []*history.Event{
					history.NewEvent(id, 5, time.Now(), history.EventType_Completed, &history.CompletedAttributes{}),
				})
				require.ErrorIs(t, err, backend.ErrConcurrentModification)

				require.Len(t, eventTypes(t, ctx, b, id), 2)
			},
		},
		{
			name: "AppendEvents_RejectsMismatchedEventIDs",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := newAggregateID()

				err := b.AppendEvents(ctx, id, core.FirstEventID, []*history.Event{
					history.NewEvent(id, 3, time.Now(), history.EventType_Created, &history.CreatedAttributes{}),
				})
				require.Error(t, err)
				require.NotErrorIs(t, err, backend.ErrConcurrentModification)
			},
		},
		{
			name: "AppendEvents_OnlyOneConcurrentAppendWins",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := newAggregateID()
				require.NoError(t, b.AppendEvents(ctx, id, core.FirstEventID, []*history.Event{createdEvent(id)}))
				require.NoError(t, b.AppendEvents(ctx, id, 1, []*history.Event{
					history.NewEvent(id, 1, time.Now(), history.EventType_Started, &history.StartedAttributes{}),
				}))

				const n = 8
				errs := make([]error, n)

				var wg sync.WaitGroup
				for i := 0; i < n; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()

						var e *history.Event
						if i%2 == 0 {
							e = history.NewEvent(id, 2, time.Now(), history.EventType_Completed, &history.CompletedAttributes{Result: core.ResultCompleted})
						} else {
							e = history.NewEvent(id, 2, time.Now(), history.EventType_Failed, &history.FailedAttributes{})
						}

						errs[i] = b.AppendEvents(ctx, id, 2, []*history.Event{e})
					}(i)
				}
				wg.Wait()

				succeeded := 0
				for _, err := range errs {
					if err == nil {
						succeeded++
						continue
					}

					require.ErrorIs(t, err, backend.ErrConcurrentModification)
				}
				require.Equal(t, 1, succeeded)

				types := eventTypes(t, ctx, b, id)
				require.Len(t, types, 3)
				require.True(t, types[2].IsTerminal())
			},
		},
		{
			name: "ListAggregates_InCreationOrder",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				ids := []core.TaskAggregateID{newAggregateID(), newAggregateID(), newAggregateID()}
				for _, id := range ids {
					require.NoError(t, b.AppendEvents(ctx, id, core.FirstEventID, []*history.Event{createdEvent(id)}))
				}

				listed, err := b.ListAggregates(ctx)
				require.NoError(t, err)

				// Other tests might share the same store
				listed = slices.DeleteFunc(listed, func(id core.TaskAggregateID) bool {
					return !slices.Contains(ids, id)
				})
				require.Equal(t, ids, listed)
			},
		},
		{
			name: "RemoveAggregates_RemovesFinishedBefore",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				now := time.Now()

				old := newAggregateID()
				appendFinished(t, ctx, b, old, now.Add(-time.Hour))

				recent := newAggregateID()
				appendFinished(t, ctx, b, recent, now)

				active := newAggregateID()
				require.NoError(t, b.AppendEvents(ctx, active, core.FirstEventID, []*history.Event{
					history.NewEvent(active, core.FirstEventID, now.Add(-2*time.Hour), history.EventType_Created, &history.CreatedAttributes{}),
				}))

				require.NoError(t, b.RemoveAggregates(ctx, backend.RemoveFinishedBefore(now.Add(-time.Minute))))

				require.Empty(t, eventTypes(t, ctx, b, old))
				require.Len(t, eventTypes(t, ctx, b, recent), 3)
				require.Len(t, eventTypes(t, ctx, b, active), 1)

				listed, err := b.ListAggregates(ctx)
				require.NoError(t, err)
				require.NotContains(t, listed, old)
				require.Contains(t, listed, recent)
				require.Contains(t, listed, active)

				// A removed aggregate can be created again
				require.NoError(t, b.AppendEvents(ctx, old, core.FirstEventID, []*history.Event{createdEvent(old)}))
			},
		},
		{
			name: "RemoveAggregates_WithoutOptionsRemovesAllFinished",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				finished := newAggregateID()
				appendFinished(t, ctx, b, finished, time.Now())

				active := newAggregateID()
				require.NoError(t, b.AppendEvents(ctx, active, core.FirstEventID, []*history.Event{createdEvent(active)}))

				require.NoError(t, b.RemoveAggregates(ctx))

				require.Empty(t, eventTypes(t, ctx, b, finished))
				require.Len(t, eventTypes(t, ctx, b, active), 1)
			},
		},
		{
			name: "GetStats_CountsActiveAndFinished",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				before, err := b.GetStats(ctx)
				require.NoError(t, err)

				active := newAggregateID()
				require.NoError(t, b.AppendEvents(ctx, active, core.FirstEventID, []*history.Event{createdEvent(active)}))
				appendFinished(t, ctx, b, newAggregateID(), time.Now())
				appendFinished(t, ctx, b, newAggregateID(), time.Now())

				after, err := b.GetStats(ctx)
				require.NoError(t, err)
				require.Equal(t, before.ActiveTasks+1, after.ActiveTasks)
				require.Equal(t, before.FinishedTasks+2, after.FinishedTasks)
			},
		},
		{
			name: "Options_AreAvailable",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				require.NotNil(t, b.Logger())
				require.NotNil(t, b.Tracer())
				require.NotNil(t, b.Metrics())
				require.NotNil(t, b.Options().Converter)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setup()
			ctx := context.Background()
			tt.f(t, ctx, b)
			if teardown != nil {
				teardown(b)
			}
		})
	}
}

func newAggregateID() core.TaskAggregateID {
	return core.NewTaskAggregateID(core.NewTaskID())
}

func createdEvent(id core.TaskAggregateID) *history.Event {
	return history.NewEvent(id, core.FirstEventID, time.Now(), history.EventType_Created, &history.CreatedAttributes{
		Task:     history.TaskPayload{Type: "reindex", Data: []byte(`{"mailbox":"inbox"}`)},
		Hostname: "node-1",
	})
}

func appendFinished(t *testing.T, ctx context.Context, b backend.Backend, id core.TaskAggregateID, finishedAt time.Time) {
	t.Helper()

	require.NoError(t, b.AppendEvents(ctx, id, core.FirstEventID, []*history.Event{
		history.NewEvent(id, 0, finishedAt, history.EventType_Created, &history.CreatedAttributes{}),
		history.NewEvent(id, 1, finishedAt, history.EventType_Started, &history.StartedAttributes{}),
		history.NewEvent(id, 2, finishedAt, history.EventType_Completed, &history.CompletedAttributes{Result: core.ResultCompleted}),
	}))
}

func eventTypes(t *testing.T, ctx context.Context, b backend.Backend, id core.TaskAggregateID) []history.EventType {
	t.Helper()

	h, err := b.GetHistory(ctx, id)
	require.NoError(t, err)

	types := make([]history.EventType, 0, h.Len())
	for _, e := range h.Events() {
		types = append(types, e.Type)
	}

	return types
}
