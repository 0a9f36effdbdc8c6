package mysql

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
	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	mmysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.opentelemetry.io/otel/trace"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

const (
	errDuplicateEntry = 1062
	errDeadlock       = 1213
)

func NewMysqlBackend(host string, port int, user, password, database string, opts ...option) *mysqlBackend {
	options := newOptions(opts...)

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&interpolateParams=true", user, password, host, port, database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		panic(err)
	}

	if options.MySQLOptions != nil {
		options.MySQLOptions(db)
	}

	b := &mysqlBackend{
		dsn: dsn,
		db:  db,
		store:   sqlstore.New(db, dialect(options)),
		options: options,
	}

	if options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	return b
}

type mysqlBackend struct {
	dsn     string
	db      *sql.DB
	store   *sqlstore.Store
	options *options
}

var _ backend.Backend = (*mysqlBackend)(nil)

// Migrate applies any pending database migrations.
func (b *mysqlBackend) Migrate() error {
	// Migrations contain multiple statements per file
	schemaDsn := b.dsn + "&multiStatements=true"
	db, err := sql.Open("mysql", schemaDsn)
	if err != nil {
		return fmt.Errorf("opening schema database: %w", err)
	}

	dbi, err := mmysql.WithInstance(db, &mmysql.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "mysql", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("closing schema database: %w", err)
	}

	return nil
}

func (b *mysqlBackend) AppendEvents(ctx context.Context, id core.TaskAggregateID, expectedNextEventID core.EventID, events []*history.Event) error {
	return b.store.AppendEvents(ctx, id, expectedNextEventID, events)
}

func (b *mysqlBackend) GetHistory(ctx context.Context, id core.TaskAggregateID) (*history.History, error) {
	return b.store.GetHistory(ctx, id)
}

func (b *mysqlBackend) ListAggregates(ctx context.Context) ([]core.TaskAggregateID, error) {
	return b.store.ListAggregates(ctx)
}

func (b *mysqlBackend) RemoveAggregates(ctx context.Context, options ...backend.RemovalOption) error {
	return b.store.RemoveAggregates(ctx, options...)
}

func (b *mysqlBackend) GetStats(ctx context.Context) (*backend.Stats, error) {
	return b.store.GetStats(ctx)
}

func (b *mysqlBackend) Logger() *slog.Logger {
	return b.options.Logger
}

func (b *mysqlBackend) Tracer() trace.Tracer {
	return b.options.TracerProvider.Tracer(backend.TracerName)
}

func (b *mysqlBackend) Metrics() metrics.Client {
	return b.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "mysql"})
}

func (b *mysqlBackend) Options() *backend.Options {
	return b.options.Options
}

func (b *mysqlBackend) Close() error {
	return b.db.Close()
}

func newOptions(opts ...option) *options {
	bo := backend.ApplyOptions()
	options := &options{
		Options:            &bo,
		ApplyMigrations:    true,
		AppendIsolation:    sql.LevelReadCommitted,
		DeadlockAsConflict: true,
	}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

func dialect(o *options) sqlstore.Dialect {
	isDuplicateKey := isDuplicateEntry
	if o.DeadlockAsConflict {
		isDuplicateKey = isConflict
	}

	return sqlstore.Dialect{
		IsDuplicateKey: isDuplicateKey,
		TxOptions: &sql.TxOptions{
			Isolation: o.AppendIsolation,
		},
	}
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

// isConflict detects concurrent inserts of the same event. InnoDB reports them as duplicate entries, or as
// deadlocks when both transactions wait on each other's gap locks.
func isConflict(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}

	return me.Number == errDuplicateEntry || me.Number == errDeadlock
}
