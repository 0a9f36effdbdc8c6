package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/test"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

const testUser = "postgres"
const testPassword = "root"

// Creating and dropping databases is inefficient, but easiest for complete test isolation

func setup(dbName *string) func() backend.Backend {
	return func() backend.Backend {
		db, err := sql.Open("pgx", DSN("localhost", 5432, testUser, testPassword, "postgres", ""))
		if err != nil {
			panic(err)
		}

		*dbName = "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		if _, err := db.Exec("CREATE DATABASE " + *dbName); err != nil {
			panic(fmt.Errorf("creating database: %w", err))
		}

		if err := db.Close(); err != nil {
			panic(err)
		}

		return NewPostgresBackend("localhost", 5432, testUser, testPassword, *dbName)
	}
}

func teardown(dbName *string) func(b backend.Backend) {
	return func(b backend.Backend) {
		if err := b.Close(); err != nil {
			panic(err)
		}

		db, err := sql.Open("pgx", DSN("localhost", 5432, testUser, testPassword, "postgres", ""))
		if err != nil {
			panic(err)
		}

		if _, err := db.Exec("DROP DATABASE IF EXISTS " + *dbName + " WITH (FORCE)"); err != nil {
			panic(fmt.Errorf("dropping database: %w", err))
		}

		if err := db.Close(); err != nil {
			panic(err)
		}
	}
}

func Test_PostgresBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	var dbName string
	test.BackendTest(t, setup(&dbName), teardown(&dbName))
}

func Test_EndToEndPostgresBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	var dbName string
	test.EndToEndBackendTest(t, setup(&dbName), teardown(&dbName))
}

func Test_DSN(t *testing.T) {
	require.Equal(t, "host=db port=5432 user=u password=p dbname=tasks sslmode=disable", DSN("db", 5432, "u", "p", "tasks", ""))
	require.Equal(t, "host=db port=5432 user=u password=p dbname=tasks sslmode=require", DSN("db", 5432, "u", "p", "tasks", "require"))
}

func Test_IsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(fmt.Errorf("inserting event: %w", &pgconn.PgError{Code: uniqueViolation})))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
	require.False(t, isUniqueViolation(sql.ErrNoRows))
}

func Test_Options(t *testing.T) {
	o := newOptions(false)
	require.False(t, o.ApplyMigrations)

	d := dialect(o)
	require.True(t, d.NumberedPlaceholders)
	require.Equal(t, sql.LevelReadCommitted, d.TxOptions.Isolation)
	require.True(t, d.IsDuplicateKey(&pgconn.PgError{Code: uniqueViolation}))

	o = newOptions(true, WithAppendIsolation(sql.LevelSerializable), WithSSLMode("require"))
	require.True(t, o.ApplyMigrations)
	require.Equal(t, "require", o.SSLMode)
	require.Equal(t, sql.LevelSerializable, dialect(o).TxOptions.Isolation)
}
