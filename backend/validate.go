package backend

import (
	"fmt"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/core"
)

// ValidateAppend checks that the given events continue a stream at expectedNextEventID without gaps
func ValidateAppend(expectedNextEventID core.EventID, events []*history.Event) error {
	if expectedNextEventID < core.FirstEventID {
		return fmt.Errorf("invalid expected next event id %v", expectedNextEventID)
	}

	next := expectedNextEventID
	for _, e := range events {
		if e.EventID != next {
			return fmt.Errorf("event %v has id %v, expected %v", e.Type, e.EventID, next)
		}

		next = next.Next()
	}

	return nil
}
