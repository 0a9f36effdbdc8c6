package backend

import (
	"testing"
	"time"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/core"
	"github.com/stretchr/testify/require"
)

func Test_ValidateAppend(t *testing.T) {
	id := core.NewTaskAggregateID(core.NewTaskID())

	require.NoError(t, ValidateAppend(2, []*history.Event{
		history.NewEvent(id, 2, time.Now(), history.EventType_AdditionalInformationUpdated, nil),
		history.NewEvent(id, 3, time.Now(), history.EventType_Completed, nil),
	}))

	require.Error(t, ValidateAppend(2, []*history.Event{
		history.NewEvent(id, 3, time.Now(), history.EventType_Completed, nil),
	}))

	require.Error(t, ValidateAppend(-1, nil))
}
