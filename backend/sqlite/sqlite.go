package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/backend/internal/sqlstore"
	"github.com/cschleiden/go-tasks/backend/metrics"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/internal/metrickeys"
	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

// NewInMemoryBackend returns a backend on a private in-memory database
func NewInMemoryBackend(opts ...option) *sqliteBackend {
	return newSqliteBackend("file::memory:", opts...)
}

func NewSqliteBackend(path string, opts ...option) *sqliteBackend {
	return newSqliteBackend(fmt.Sprintf("file:%v?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path), opts...)
}

func newSqliteBackend(dsn string, opts ...option) *sqliteBackend {
	bo := backend.ApplyOptions()
	options := &options{
		Options:         &bo,
		ApplyMigrations: true,
	}

	for _, opt := range opts {
		opt(options)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		panic(err)
	}

	// SQLite allows a single writer, and every connection to an in-memory database is a new database
	db.SetMaxOpenConns(1)

	b := &sqliteBackend{
		db: db,
		store: sqlstore.New(db, sqlstore.Dialect{
			IsDuplicateKey: isDuplicateKey,
		}),
		options: options,
	}

	if options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	return b
}

type sqliteBackend struct {
	db      *sql.DB
	store   *sqlstore.Store
	options *options
}

var _ backend.Backend = (*sqliteBackend)(nil)

// Migrate applies any pending database migrations.
func (sb *sqliteBackend) Migrate() error {
	dbi, err := msqlite.WithInstance(sb.db, &msqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "sqlite", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	return nil
}

func (sb *sqliteBackend) AppendEvents(ctx context.Context, id core.TaskAggregateID, expectedNextEventID core.EventID, events []*history.Event) error {
	return sb.store.AppendEvents(ctx, id, expectedNextEventID, events)
}

func (sb *sqliteBackend) GetHistory(ctx context.Context, id core.TaskAggregateID) (*history.History, error) {
	return sb.store.GetHistory(ctx, id)
}

func (sb *sqliteBackend) ListAggregates(ctx context.Context) ([]core.TaskAggregateID, error) {
	return sb.store.ListAggregates(ctx)
}

func (sb *sqliteBackend) RemoveAggregates(ctx context.Context, options ...backend.RemovalOption) error {
	return sb.store.RemoveAggregates(ctx, options...)
}

func (sb *sqliteBackend) GetStats(ctx context.Context) (*backend.Stats, error) {
	return sb.store.GetStats(ctx)
}

func (sb *sqliteBackend) Logger() *slog.Logger {
	return sb.options.Logger
}

func (sb *sqliteBackend) Tracer() trace.Tracer {
	return sb.options.TracerProvider.Tracer(backend.TracerName)
}

func (sb *sqliteBackend) Metrics() metrics.Client {
	return sb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "sqlite"})
}

func (sb *sqliteBackend) Options() *backend.Options {
	return sb.options.Options
}

func (sb *sqliteBackend) Close() error {
	return sb.db.Close()
}

func isDuplicateKey(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}

	return se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
