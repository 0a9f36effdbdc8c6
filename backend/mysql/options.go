package mysql

import (
	"database/sql"

	"github.com/cschleiden/go-tasks/backend"
)

type options struct {
	*backend.Options

	MySQLOptions func(db *sql.DB)

	// ApplyMigrations creates the events table on startup.
	ApplyMigrations bool

	// AppendIsolation is the isolation level of the transaction appending task events. Defaults to
	// read committed, which avoids gap locks on the events table.
	AppendIsolation sql.IsolationLevel

	// DeadlockAsConflict treats an InnoDB deadlock during an append as a concurrent modification, so the
	// command is re-evaluated against fresh history instead of failing. Defaults to true.
	DeadlockAsConflict bool
}

type option func(*options)

// WithApplyMigrations automatically applies database migrations on startup.
func WithApplyMigrations(applyMigrations bool) option {
	return func(o *options) {
		o.ApplyMigrations = applyMigrations
	}
}

// WithMySQLOptions allows to configure the connection pool, for example SetMaxOpenConns.
func WithMySQLOptions(f func(db *sql.DB)) option {
	return func(o *options) {
		o.MySQLOptions = f
	}
}

// WithAppendIsolation sets the isolation level used when appending task events.
func WithAppendIsolation(level sql.IsolationLevel) option {
	return func(o *options) {
		o.AppendIsolation = level
	}
}

// WithDeadlockAsConflict configures whether deadlocks during appends are retried as conflicts.
func WithDeadlockAsConflict(retry bool) option {
	return func(o *options) {
		o.DeadlockAsConflict = retry
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
