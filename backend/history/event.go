package history

import (
	"time"

	"github.com/cschleiden/go-tasks/core"
)

type EventType uint

const (
	_ EventType = iota

	EventType_Created
	EventType_Started
	EventType_CancelRequested
	EventType_AdditionalInformationUpdated

	EventType_Completed
	EventType_Failed
	EventType_Cancelled
)

func (et EventType) String() string {
	switch et {
	case EventType_Created:
		return "Created"
	case EventType_Started:
		return "Started"
	case EventType_CancelRequested:
		return "CancelRequested"
	case EventType_AdditionalInformationUpdated:
		return "AdditionalInformationUpdated"

	case EventType_Completed:
		return "Completed"
	case EventType_Failed:
		return "Failed"
	case EventType_Cancelled:
		return "Cancelled"

	default:
		return "Unknown"
	}
}

// IsTerminal returns true for events after which a task accepts no further commands.
func (et EventType) IsTerminal() bool {
	return et == EventType_Completed || et == EventType_Failed || et == EventType_Cancelled
}

type Event struct {
	AggregateID core.TaskAggregateID `json:"aggregate_id,omitempty"`

	// EventID is the position of this event in the aggregate's stream
	EventID core.EventID `json:"id"`

	Type EventType `json:"t,omitempty"`

	Timestamp time.Time `json:"ts,omitempty"`

	// Attributes are event type specific attributes
	Attributes any `json:"attr,omitempty"`
}

func NewEvent(id core.TaskAggregateID, eventID core.EventID, timestamp time.Time, eventType EventType, attributes any) *Event {
	return &Event{
		AggregateID: id,
		EventID:     eventID,
		Type:        eventType,
		Timestamp:   timestamp,
		Attributes:  attributes,
	}
}

func (e Event) String() string {
	return e.AggregateID.String() + "#" + e.Type.String()
}
