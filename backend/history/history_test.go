package history

import (
	"testing"
	"time"

	"github.com/cschleiden/go-tasks/core"
	"github.com/stretchr/testify/require"
)

var id = core.NewTaskAggregateID(core.NewTaskID())

func Test_History_NextEventID(t *testing.T) {
	require.Equal(t, core.FirstEventID, Empty().NextEventID())

	h, err := Of(
		NewEvent(id, core.FirstEventID, time.Now(), EventType_Created, &CreatedAttributes{}),
		NewEvent(id, core.FirstEventID.Next(), time.Now(), EventType_Started, &StartedAttributes{}),
	)
	require.NoError(t, err)
	require.Equal(t, core.EventID(2), h.NextEventID())
	require.Equal(t, EventType_Started, h.Last().Type)
}

func Test_History_RejectsUnorderedEvents(t *testing.T) {
	_, err := Of(
		NewEvent(id, 1, time.Now(), EventType_Created, &CreatedAttributes{}),
		NewEvent(id, 1, time.Now(), EventType_Started, &StartedAttributes{}),
	)
	require.Error(t, err)
}

func Test_EventType_IsTerminal(t *testing.T) {
	require.True(t, EventType_Completed.IsTerminal())
	require.True(t, EventType_Failed.IsTerminal())
	require.True(t, EventType_Cancelled.IsTerminal())
	require.False(t, EventType_CancelRequested.IsTerminal())
	require.False(t, EventType_AdditionalInformationUpdated.IsTerminal())
}
