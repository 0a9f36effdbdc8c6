package postgres

import (
	"database/sql"

	"github.com/cschleiden/go-tasks/backend"
)

type options struct {
	*backend.Options

	PostgresOptions func(db *sql.DB)

	// ApplyMigrations creates the events table on startup.
	ApplyMigrations bool

	// SSLMode configures the sslmode parameter of the connection. Defaults to "disable".
	SSLMode string

	// AppendIsolation is the isolation level of the transaction appending task events. The primary key
	// on (aggregate_id, event_id) rejects concurrent appends at any level. Defaults to read committed.
	AppendIsolation sql.IsolationLevel
}

type option func(*options)

// WithApplyMigrations automatically applies database migrations on startup.
func WithApplyMigrations(applyMigrations bool) option {
	return func(o *options) {
		o.ApplyMigrations = applyMigrations
	}
}

// WithPostgresOptions allows to configure the connection pool, for example SetMaxOpenConns.
func WithPostgresOptions(f func(db *sql.DB)) option {
	return func(o *options) {
		o.PostgresOptions = f
	}
}

// WithSSLMode configures the sslmode parameter, for example "require" or "verify-full".
func WithSSLMode(sslmode string) option {
	return func(o *options) {
		o.SSLMode = sslmode
	}
}

// WithAppendIsolation sets the isolation level used when appending task events.
func WithAppendIsolation(level sql.IsolationLevel) option {
	return func(o *options) {
		o.AppendIsolation = level
	}
}

// WithBackendOptions allows to pass generic backend options.
func WithBackendOptions(opts ...backend.BackendOption) option {
	return func(o *options) {
		for _, opt := range opts {
			opt(o.Options)
		}
	}
}
