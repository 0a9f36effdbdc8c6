// Package sqlstore implements the event log on top of database/sql. The sqlite, mysql, and postgres
// backends share it and only differ in their dialect and schema migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/core"
)

type Dialect struct {
	// NumberedPlaceholders rewrites ? placeholders to $1, $2, ...
	NumberedPlaceholders bool

	// IsDuplicateKey returns true if err is a primary key or unique constraint violation
	IsDuplicateKey func(err error) bool

	TxOptions *sql.TxOptions
}

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
	}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) query(q string) string {
	if !s.dialect.NumberedPlaceholders {
		return q
	}

	var sb strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}

		sb.WriteRune(r)
	}

	return sb.String()
}

func (s *Store) AppendEvents(ctx context.Context, id core.TaskAggregateID, expectedNextEventID core.EventID, events []*history.Event) error {
	if len(events) == 0 {
		return nil
	}

	if err := backend.ValidateAppend(expectedNextEventID, events); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var nextEventID core.EventID
	row := tx.QueryRowContext(ctx, s.query("SELECT COALESCE(MAX(event_id) + 1, 0) FROM events WHERE aggregate_id = ?"), id.String())
	if err := row.Scan(&nextEventID); err != nil {
		return fmt.Errorf("reading next event id: %w", err)
	}

	if nextEventID != expectedNextEventID {
		return backend.ErrConcurrentModification
	}

	if expectedNextEventID == core.FirstEventID {
		if _, err := tx.ExecContext(
			ctx,
			s.query("INSERT INTO aggregates (id, task_id, created_at) VALUES (?, ?, ?)"),
			id.String(),
			id.TaskID.String(),
			events[0].Timestamp.UTC().UnixNano(),
		); err != nil {
			return s.insertError(err, "inserting aggregate")
		}
	}

	for _, e := range events {
		a, err := history.SerializeAttributes(e.Attributes)
		if err != nil {
			return fmt.Errorf("serializing attributes: %w", err)
		}

		if _, err := tx.ExecContext(
			ctx,
			s.query("INSERT INTO events (aggregate_id, event_id, event_type, event_time, attributes) VALUES (?, ?, ?, ?, ?)"),
			id.String(),
			int64(e.EventID),
			int(e.Type),
			e.Timestamp.UTC().UnixNano(),
			string(a),
		); err != nil {
			return s.insertError(err, "inserting event")
		}

		if e.Type.IsTerminal() {
			if _, err := tx.ExecContext(
				ctx,
				s.query("UPDATE aggregates SET finished_at = ? WHERE id = ? AND finished_at IS NULL"),
				e.Timestamp.UTC().UnixNano(),
				id.String(),
			); err != nil {
				return fmt.Errorf("marking aggregate finished: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return s.insertError(err, "committing events")
	}

	return nil
}

// insertError maps constraint violations of concurrent appends to ErrConcurrentModification
func (s *Store) insertError(err error, msg string) error {
	if s.dialect.IsDuplicateKey != nil && s.dialect.IsDuplicateKey(err) {
		return backend.ErrConcurrentModification
	}

	return fmt.Errorf("%s: %w", msg, err)
}

func (s *Store) GetHistory(ctx context.Context, id core.TaskAggregateID) (*history.History, error) {
	rows, err := s.db.QueryContext(
		ctx,
		s.query("SELECT event_id, event_type, event_time, attributes FROM events WHERE aggregate_id = ? ORDER BY event_id ASC"),
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := make([]*history.Event, 0)
	for rows.Next() {
		var (
			eventID    int64
			eventType  int
			timestamp  int64
			attributes string
		)

		if err := rows.Scan(&eventID, &eventType, &timestamp, &attributes); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		et := history.EventType(eventType)
		a, err := history.DeserializeAttributes(et, []byte(attributes))
		if err != nil {
			return nil, fmt.Errorf("deserializing attributes: %w", err)
		}

		events = append(events, history.NewEvent(id, core.EventID(eventID), time.Unix(0, timestamp).UTC(), et, a))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}

	return history.Of(events...)
}

func (s *Store) ListAggregates(ctx context.Context) ([]core.TaskAggregateID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT task_id FROM aggregates ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("querying aggregates: %w", err)
	}
	defer rows.Close()

	ids := make([]core.TaskAggregateID, 0)
	for rows.Next() {
		var taskID string
		if err := rows.Scan(&taskID); err != nil {
			return nil, fmt.Errorf("scanning aggregate: %w", err)
		}

		ids = append(ids, core.NewTaskAggregateID(core.TaskID(taskID)))
	}

	return ids, rows.Err()
}

func (s *Store) RemoveAggregates(ctx context.Context, options ...backend.RemovalOption) error {
	ro := backend.ApplyRemovalOptions(options...)

	q := "SELECT id FROM aggregates WHERE finished_at IS NOT NULL"
	args := []any{}
	if !ro.FinishedBefore.IsZero() {
		q += " AND finished_at < ?"
		args = append(args, ro.FinishedBefore.UTC().UnixNano())
	}

	rows, err := s.db.QueryContext(ctx, s.query(q), args...)
	if err != nil {
		return fmt.Errorf("querying finished aggregates: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning aggregate: %w", err)
		}

		ids = append(ids, id)
	}

	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return fmt.Errorf("reading finished aggregates: %w", err)
	}

	for _, id := range ids {
		if err := s.removeAggregate(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) removeAggregate(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.query("DELETE FROM events WHERE aggregate_id = ?"), id); err != nil {
		return fmt.Errorf("removing events of %v: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, s.query("DELETE FROM aggregates WHERE id = ?"), id); err != nil {
		return fmt.Errorf("removing aggregate %v: %w", id, err)
	}

	return tx.Commit()
}

func (s *Store) GetStats(ctx context.Context) (*backend.Stats, error) {
	stats := &backend.Stats{}

	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM aggregates WHERE finished_at IS NULL")
	if err := row.Scan(&stats.ActiveTasks); err != nil {
		return nil, fmt.Errorf("counting active tasks: %w", err)
	}

	row = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM aggregates WHERE finished_at IS NOT NULL")
	if err := row.Scan(&stats.FinishedTasks); err != nil {
		return nil, fmt.Errorf("counting finished tasks: %w", err)
	}

	return stats, nil
}
