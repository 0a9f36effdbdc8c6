package core

import (
	"fmt"

	"github.com/google/uuid"
)

// TaskID is the process-wide unique handle of a submitted task.
type TaskID string

func NewTaskID() TaskID {
	return TaskID(uuid.NewString())
}

// ParseTaskID validates the given string as a task id.
func ParseTaskID(s string) (TaskID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid task id %q: %w", s, err)
	}

	return TaskID(id.String()), nil
}

func (id TaskID) String() string {
	return string(id)
}

// TaskAggregateID identifies the event stream of a task.
type TaskAggregateID struct {
	TaskID TaskID `json:"task_id,omitempty"`
}

func NewTaskAggregateID(id TaskID) TaskAggregateID {
	return TaskAggregateID{TaskID: id}
}

func (id TaskAggregateID) String() string {
	return "Task/" + string(id.TaskID)
}
