package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/core"
	"github.com/stretchr/testify/require"
)

func Test_LocalBus_PublishSubscribe(t *testing.T) {
	b := NewLocalBus()
	id := core.NewTaskAggregateID(core.NewTaskID())

	var received []history.EventType
	unsubscribe := b.Subscribe(func(ctx context.Context, event *history.Event) {
		received = append(received, event.Type)
	})

	err := b.Publish(context.Background(),
		history.NewEvent(id, 0, time.Now(), history.EventType_Created, &history.CreatedAttributes{}),
		history.NewEvent(id, 1, time.Now(), history.EventType_Started, &history.StartedAttributes{}),
	)
	require.NoError(t, err)
	require.Equal(t, []history.EventType{history.EventType_Created, history.EventType_Started}, received)

	unsubscribe()

	require.NoError(t, b.Publish(context.Background(), history.NewEvent(id, 2, time.Now(), history.EventType_Completed, &history.CompletedAttributes{})))
	require.Len(t, received, 2)
}

func Test_LocalBus_Close(t *testing.T) {
	b := NewLocalBus()

	called := false
	b.Subscribe(func(ctx context.Context, event *history.Event) {
		called = true
	})

	require.NoError(t, b.Close())
	require.NoError(t, b.Publish(context.Background(), &history.Event{}))
	require.False(t, called)
}
