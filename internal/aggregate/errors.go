package aggregate

import (
	"errors"
	"fmt"

	"github.com/cschleiden/go-tasks/core"
)

var (
	ErrInvalidAggregateState  = errors.New("invalid aggregate state")
	ErrAggregateAlreadyExists = errors.New("task aggregate already exists")
)

// InvalidAggregateStateError is returned when an aggregate cannot be rebuilt from its history.
type InvalidAggregateStateError struct {
	ID     core.TaskAggregateID
	Reason string
}

func (e *InvalidAggregateStateError) Error() string {
	return fmt.Sprintf("invalid state for %v: %s", e.ID, e.Reason)
}

func (e *InvalidAggregateStateError) Is(target error) bool {
	return target == ErrInvalidAggregateState
}
