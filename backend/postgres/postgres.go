package postgres

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
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/trace"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// DSN builds a connection string usable both by this backend and by the notification bus
func DSN(host string, port int, user, password, database, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", host, port, user, password, database, sslMode)
}

func NewPostgresBackend(host string, port int, user, password, database string, opts ...option) *postgresBackend {
	options := newOptions(true, opts...)

	dsn := DSN(host, port, user, password, database, options.SSLMode)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		panic(err)
	}

	if options.PostgresOptions != nil {
		options.PostgresOptions(db)
	}

	b := newBackend(db, options)
	b.dsn = dsn
	b.ownsConnection = true

	if options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	return b
}

// NewPostgresBackendWithDB creates a new Postgres backend using an existing database connection.
// When using this constructor, the backend will not close the database connection when Close() is called.
func NewPostgresBackendWithDB(db *sql.DB, opts ...option) *postgresBackend {
	options := newOptions(false, opts...)

	if options.PostgresOptions != nil {
		options.PostgresOptions(db)
	}

	b := newBackend(db, options)

	if options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	return b
}

func newOptions(applyMigrations bool, opts ...option) *options {
	bo := backend.ApplyOptions()
	options := &options{
		Options:         &bo,
		ApplyMigrations: applyMigrations,
		AppendIsolation: sql.LevelReadCommitted,
	}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

func newBackend(db *sql.DB, options *options) *postgresBackend {
	return &postgresBackend{
		db: db,
		store:   sqlstore.New(db, dialect(options)),
		options: options,
	}
}

func dialect(o *options) sqlstore.Dialect {
	return sqlstore.Dialect{
		NumberedPlaceholders: true,
		IsDuplicateKey:       isUniqueViolation,
		TxOptions: &sql.TxOptions{
			Isolation: o.AppendIsolation,
		},
	}
}

type postgresBackend struct {
	dsn            string
	db             *sql.DB
	store          *sqlstore.Store
	options        *options
	ownsConnection bool
}

var _ backend.Backend = (*postgresBackend)(nil)

func (pb *postgresBackend) Close() error {
	if !pb.ownsConnection {
		return nil
	}

	return pb.db.Close()
}

// Migrate applies any pending database migrations.
func (pb *postgresBackend) Migrate() error {
	var db *sql.DB
	var needsClose bool

	if pb.dsn != "" {
		var err error
		db, err = sql.Open("pgx", pb.dsn)
		if err != nil {
			return fmt.Errorf("opening schema database: %w", err)
		}
		needsClose = true
	} else {
		db = pb.db
	}

	dbi, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "postgres", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	if needsClose {
		if err := db.Close(); err != nil {
			return fmt.Errorf("closing schema database: %w", err)
		}
	}

	return nil
}

func (pb *postgresBackend) AppendEvents(ctx context.Context, id core.TaskAggregateID, expectedNextEventID core.EventID, events []*history.Event) error {
	return pb.store.AppendEvents(ctx, id, expectedNextEventID, events)
}

func (pb *postgresBackend) GetHistory(ctx context.Context, id core.TaskAggregateID) (*history.History, error) {
	return pb.store.GetHistory(ctx, id)
}

func (pb *postgresBackend) ListAggregates(ctx context.Context) ([]core.TaskAggregateID, error) {
	return pb.store.ListAggregates(ctx)
}

func (pb *postgresBackend) RemoveAggregates(ctx context.Context, options ...backend.RemovalOption) error {
	return pb.store.RemoveAggregates(ctx, options...)
}

func (pb *postgresBackend) GetStats(ctx context.Context) (*backend.Stats, error) {
	return pb.store.GetStats(ctx)
}

func (pb *postgresBackend) Logger() *slog.Logger {
	return pb.options.Logger
}

func (pb *postgresBackend) Tracer() trace.Tracer {
	return pb.options.TracerProvider.Tracer(backend.TracerName)
}

func (pb *postgresBackend) Metrics() metrics.Client {
	return pb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "postgres"})
}

func (pb *postgresBackend) Options() *backend.Options {
	return pb.options.Options
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
