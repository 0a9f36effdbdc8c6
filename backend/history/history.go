package history

import (
	"fmt"

	"github.com/cschleiden/go-tasks/core"
)

// History is the ordered list of events of a single aggregate.
type History struct {
	events []*Event
}

func Empty() *History {
	return &History{}
}

// Of builds a history from the given events. Event ids have to be strictly increasing.
func Of(events ...*Event) (*History, error) {
	for i := 1; i < len(events); i++ {
		if events[i].EventID <= events[i-1].EventID {
			return nil, fmt.Errorf("events are not ordered: %v follows %v", events[i].EventID, events[i-1].EventID)
		}
	}

	return &History{events: events}, nil
}

func (h *History) Events() []*Event {
	return h.events
}

func (h *History) Len() int {
	return len(h.events)
}

func (h *History) IsEmpty() bool {
	return len(h.events) == 0
}

// Last returns the most recent event, or nil for an empty history.
func (h *History) Last() *Event {
	if len(h.events) == 0 {
		return nil
	}

	return h.events[len(h.events)-1]
}

// NextEventID returns the id the next appended event has to use.
func (h *History) NextEventID() core.EventID {
	if last := h.Last(); last != nil {
		return last.EventID.Next()
	}

	return core.FirstEventID
}
