package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/backend/test"
	"github.com/cschleiden/go-tasks/core"
	"github.com/stretchr/testify/require"
)

func Test_SqliteBackend(t *testing.T) {
	test.BackendTest(t, func() backend.Backend {
		return NewInMemoryBackend()
	}, func(b backend.Backend) {
		require.NoError(t, b.Close())
	})
}

func Test_EndToEndSqliteBackend(t *testing.T) {
	test.EndToEndBackendTest(t, func() backend.Backend {
		return NewInMemoryBackend()
	}, func(b backend.Backend) {
		require.NoError(t, b.Close())
	})
}

func Test_SqliteBackend_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.sqlite")

	id := core.NewTaskAggregateID(core.NewTaskID())

	b := NewSqliteBackend(path)
	require.NoError(t, b.AppendEvents(ctx, id, core.FirstEventID, []*history.Event{
		history.NewEvent(id, core.FirstEventID, time.Now(), history.EventType_Created, &history.CreatedAttributes{Hostname: "node-1"}),
	}))
	require.NoError(t, b.Close())

	// Migrations are already applied
	b = NewSqliteBackend(path)
	defer b.Close()

	h, err := b.GetHistory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, h.Len())
	require.Equal(t, core.Hostname("node-1"), h.Last().Attributes.(*history.CreatedAttributes).Hostname)
}
