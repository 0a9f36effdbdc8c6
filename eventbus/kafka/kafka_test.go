package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/eventbus"
	"github.com/cschleiden/go-tasks/internal/tracing"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

var brokers = []string{"localhost:9092"}

func Test_Headers(t *testing.T) {
	headers := toHeaders("node-a", tracing.Context{"traceparent": "00-1-2-01"})
	require.Len(t, headers, 2)

	origin, tc := fromHeaders(headers)
	require.Equal(t, "node-a", origin)
	require.Equal(t, "00-1-2-01", tc.Get("traceparent"))
}

func newTestBus(origin string) *kafkaBus {
	return &kafkaBus{
		origin: origin,
		logger: testLogger(),
		local:  eventbus.NewLocalBus(),
	}
}

func Test_HandleMessage(t *testing.T) {
	kb := newTestBus("node-a")

	var received []*history.Event
	kb.Subscribe(func(ctx context.Context, event *history.Event) {
		received = append(received, event)
	})

	id := core.NewTaskAggregateID(core.NewTaskID())
	value, err := json.Marshal(history.NewEvent(id, 1, time.Now(), history.EventType_Started, &history.StartedAttributes{
		Hostname: "node-b",
	}))
	require.NoError(t, err)

	// Own events were already delivered locally on publish
	kb.handleMessage(context.Background(), kafka.Message{Value: value, Headers: toHeaders("node-a", nil)})
	require.Empty(t, received)

	kb.handleMessage(context.Background(), kafka.Message{Value: []byte("{"), Headers: toHeaders("node-b", nil)})
	require.Empty(t, received)

	kb.handleMessage(context.Background(), kafka.Message{Value: value, Headers: toHeaders("node-b", nil)})
	require.Len(t, received, 1)
	require.Equal(t, id, received[0].AggregateID)
	require.Equal(t, core.Hostname("node-b"), received[0].Attributes.(*history.StartedAttributes).Hostname)
}

func Test_HandleMessage_ContinuesTrace(t *testing.T) {
	kb := newTestBus("node-a")

	var sc trace.SpanContext
	kb.Subscribe(func(ctx context.Context, event *history.Event) {
		sc = trace.SpanContextFromContext(ctx)
	})

	value, err := json.Marshal(history.NewEvent(core.NewTaskAggregateID(core.NewTaskID()), 0, time.Now(), history.EventType_Created, &history.CreatedAttributes{}))
	require.NoError(t, err)

	kb.handleMessage(context.Background(), kafka.Message{
		Value: value,
		Headers: toHeaders("node-b", tracing.Context{
			"traceparent": "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01",
		}),
	})

	require.True(t, sc.IsRemote())
	require.Equal(t, "0af7651916cd43dd8448eb211c80319c", sc.TraceID().String())
}

func Test_KafkaBus_DeliversToOtherNodes(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	topic := "task-events-" + string(core.NewTaskID())

	a := NewBus(brokers, WithTopic(topic), WithLogger(testLogger()))
	defer a.Close()

	b := NewBus(brokers, WithTopic(topic), WithLogger(testLogger()))
	defer b.Close()

	remote := make(chan *history.Event, 10)
	b.Subscribe(func(ctx context.Context, event *history.Event) {
		remote <- event
	})

	id := core.NewTaskAggregateID(core.NewTaskID())

	// The reader joins the group asynchronously, publish until the event arrives
	require.Eventually(t, func() bool {
		err := a.Publish(context.Background(), history.NewEvent(id, 0, time.Now(), history.EventType_Created, &history.CreatedAttributes{}))
		require.NoError(t, err)

		select {
		case e := <-remote:
			return e.AggregateID == id
		case <-time.After(time.Second):
			return false
		}
	}, 30*time.Second, 100*time.Millisecond)
}
