package redis

import (
	"testing"

	"github.com/cschleiden/go-tasks/core"
	"github.com/stretchr/testify/require"
)

func Test_Keys(t *testing.T) {
	id := core.NewTaskAggregateID("a1")

	k := newKeys("")
	require.Equal(t, "history:a1", k.historyKey(id))
	require.Equal(t, "aggregates-by-creation", k.aggregatesByCreation())

	k = newKeys("mail:")
	require.Equal(t, "mail:history:a1", k.historyKey(id))
	require.Equal(t, "mail:aggregates-finished", k.aggregatesFinished())
	require.Equal(t, "mail:aggregate-sequence", k.aggregateSequence())
}

func Test_HistoryID(t *testing.T) {
	require.Equal(t, "1-0", historyID(core.FirstEventID))
	require.Equal(t, "4-0", historyID(3))
}
