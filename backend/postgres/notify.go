package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/eventbus"
	"github.com/cschleiden/go-tasks/log"
	"github.com/lib/pq"
)

const (
	// EventsChannel is the LISTEN/NOTIFY channel appended events are published on
	EventsChannel = "task_events"

	// Postgres rejects notification payloads of 8000 bytes or more
	maxPayloadSize = 8000

	pingInterval = 90 * time.Second
)

// notificationBus distributes events between nodes sharing a Postgres database via LISTEN/NOTIFY
type notificationBus struct {
	origin string
	db     *sql.DB
	logger *slog.Logger

	local    eventbus.Bus
	listener *pq.Listener

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ eventbus.Bus = (*notificationBus)(nil)

// NewNotificationBus starts listening for events published by other nodes
func NewNotificationBus(dsn string, logger *slog.Logger) (*notificationBus, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	nb := &notificationBus{
		origin: eventbus.NewOrigin(),
		db:     db,
		logger: logger.With(log.TopicKey, EventsChannel),
		local:  eventbus.NewLocalBus(),
	}

	nb.listener = pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			nb.logger.Error("event listener", "event", ev, "error", err)
		}
	})

	if err := nb.listener.Listen(EventsChannel); err != nil {
		nb.listener.Close()
		db.Close()
		return nil, fmt.Errorf("listening to events channel: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	nb.cancel = cancel

	nb.wg.Add(1)
	go nb.handleNotifications(ctx)

	return nb, nil
}

func (nb *notificationBus) Publish(ctx context.Context, events ...*history.Event) error {
	if err := nb.local.Publish(ctx, events...); err != nil {
		return err
	}

	for _, event := range events {
		payload, err := json.Marshal(&eventbus.Envelope{Origin: nb.origin, Event: event})
		if err != nil {
			return fmt.Errorf("marshaling event: %w", err)
		}

		if len(payload) >= maxPayloadSize {
			// Other nodes fall back to polling for this event
			nb.logger.Error("event too large for notification",
				log.AggregateIDKey, event.AggregateID.String(),
				log.EventTypeKey, event.Type.String(),
				"size", len(payload))
			continue
		}

		if _, err := nb.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", EventsChannel, string(payload)); err != nil {
			return fmt.Errorf("notifying: %w", err)
		}
	}

	return nil
}

func (nb *notificationBus) Subscribe(handler eventbus.Handler) func() {
	return nb.local.Subscribe(handler)
}

func (nb *notificationBus) Close() error {
	nb.mu.Lock()
	if nb.closed {
		nb.mu.Unlock()
		return nil
	}
	nb.closed = true
	nb.cancel()
	nb.mu.Unlock()

	nb.wg.Wait()

	var errs []error
	if err := nb.listener.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing listener: %w", err))
	}

	if err := nb.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	if err := nb.local.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing notification bus: %v", errs)
	}

	return nil
}

func (nb *notificationBus) handleNotifications(ctx context.Context) {
	defer nb.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case notification, ok := <-nb.listener.Notify:
			if !ok {
				return
			}

			// nil after the connection was re-established
			if notification == nil {
				continue
			}

			nb.deliver(ctx, notification.Extra)

		case <-time.After(pingInterval):
			if err := nb.listener.Ping(); err != nil {
				nb.logger.Error("event listener ping failed", "error", err)
			}
		}
	}
}

func (nb *notificationBus) deliver(ctx context.Context, payload string) {
	var env eventbus.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		nb.logger.Error("decoding event notification", "error", err)
		return
	}

	if env.Origin == nb.origin || env.Event == nil {
		return
	}

	if err := nb.local.Publish(ctx, env.Event); err != nil {
		nb.logger.Error("delivering event", log.AggregateIDKey, env.Event.AggregateID.String(), "error", err)
	}
}
