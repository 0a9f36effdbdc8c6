// Package kafka distributes task events between nodes over a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/eventbus"
	"github.com/cschleiden/go-tasks/internal/tracing"
	"github.com/cschleiden/go-tasks/log"
	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "task-events"

type options struct {
	Topic       string
	GroupPrefix string
	Logger      *slog.Logger
}

type Option func(*options)

func WithTopic(topic string) Option {
	return func(o *options) {
		o.Topic = topic
	}
}

// WithGroupPrefix sets the prefix of the per-node consumer group
func WithGroupPrefix(prefix string) Option {
	return func(o *options) {
		o.GroupPrefix = prefix
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.Logger = logger
	}
}

type kafkaBus struct {
	origin string
	topic  string
	logger *slog.Logger

	local  eventbus.Bus
	writer *kafka.Writer
	reader *kafka.Reader

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var _ eventbus.Bus = (*kafkaBus)(nil)

// NewBus connects to the given brokers. Every node consumes in its own group so each node sees every event.
func NewBus(brokers []string, opts ...Option) *kafkaBus {
	o := &options{
		Topic:       DefaultTopic,
		GroupPrefix: "tasks-",
		Logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(o)
	}

	origin := eventbus.NewOrigin()

	kb := &kafkaBus{
		origin: origin,
		topic:  o.Topic,
		logger: o.Logger.With(log.TopicKey, o.Topic),
		local:  eventbus.NewLocalBus(),
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  o.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			MaxAttempts:            3,
			BatchTimeout:           10 * time.Millisecond,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       o.Topic,
			GroupID:     o.GroupPrefix + origin,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.LastOffset,
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	kb.cancel = cancel

	kb.wg.Add(1)
	go kb.consume(ctx)

	return kb
}

func (kb *kafkaBus) Publish(ctx context.Context, events ...*history.Event) error {
	if err := kb.local.Publish(ctx, events...); err != nil {
		return err
	}

	headers := toHeaders(kb.origin, tracing.Inject(ctx))

	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshaling event: %w", err)
		}

		msgs = append(msgs, kafka.Message{
			Key:     []byte(event.AggregateID.TaskID),
			Value:   value,
			Headers: headers,
			Time:    event.Timestamp,
		})
	}

	if err := kb.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", kb.topic, err)
	}

	return nil
}

func (kb *kafkaBus) Subscribe(handler eventbus.Handler) func() {
	return kb.local.Subscribe(handler)
}

func (kb *kafkaBus) Close() error {
	var err error

	kb.once.Do(func() {
		kb.cancel()
		kb.wg.Wait()

		err = errors.Join(kb.reader.Close(), kb.writer.Close(), kb.local.Close())
	})

	return err
}

func (kb *kafkaBus) consume(ctx context.Context) {
	defer kb.wg.Done()

	for {
		m, err := kb.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			kb.logger.Error("kafka fetch", "error", err)
			continue
		}

		kb.handleMessage(ctx, m)
	}
}

func (kb *kafkaBus) handleMessage(ctx context.Context, m kafka.Message) {
	origin, tc := fromHeaders(m.Headers)
	if origin == kb.origin {
		return
	}

	var event history.Event
	if err := json.Unmarshal(m.Value, &event); err != nil {
		kb.logger.Error("decoding event message", "offset", m.Offset, "error", err)
		return
	}

	if err := kb.local.Publish(tracing.Extract(ctx, tc), &event); err != nil {
		kb.logger.Error("delivering event", log.AggregateIDKey, event.AggregateID.String(), "error", err)
	}
}
