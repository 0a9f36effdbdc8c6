package history

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cschleiden/go-tasks/core"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func Test_Event_JSON(t *testing.T) {
	msg := "boom"
	ts := time.Date(2018, 11, 13, 12, 0, 55, 0, time.UTC)

	events := []*Event{
		NewEvent(id, 0, ts, EventType_Created, &CreatedAttributes{
			Task:     TaskPayload{Type: "memory-reference-task", Data: json.RawMessage(`{"reference":1}`)},
			Hostname: "foo",
		}),
		NewEvent(id, 1, ts, EventType_AdditionalInformationUpdated, &AdditionalInformationUpdatedAttributes{
			Information: InformationPayload{Type: "counter", Data: json.RawMessage(`{"count":3}`)},
			Timestamp:   ts,
		}),
		NewEvent(id, 2, ts, EventType_Failed, &FailedAttributes{ErrorMessage: &msg}),
		NewEvent(id, 3, ts, EventType_Completed, &CompletedAttributes{Result: core.ResultPartiallyCompleted}),
	}

	for _, e := range events {
		t.Run(e.Type.String(), func(t *testing.T) {
			b, err := json.Marshal(e)
			require.NoError(t, err)

			var r *Event
			require.NoError(t, json.Unmarshal(b, &r))

			if diff := cmp.Diff(e, r); diff != "" {
				t.Errorf("event mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_DeserializeAttributes_UnknownType(t *testing.T) {
	_, err := DeserializeAttributes(EventType(42), []byte("{}"))
	require.Error(t, err)
}
