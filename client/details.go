package client

import (
	"time"

	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/task"
)

// TaskDetails describes the current state of a task as recorded in its history.
type TaskDetails struct {
	ID     core.TaskID
	Type   string
	Status core.TaskExecutionStatus

	// Task is the decoded task. It is nil if the task type is not registered on this node.
	Task task.Task

	// Information is the latest progress snapshot reported by the task, if any
	Information task.AdditionalInformation

	Result       *core.Result
	ErrorMessage *string
	Stacktrace   *string

	SubmittedAt       time.Time
	SubmittedFrom     core.Hostname
	StartedAt         *time.Time
	RanNode           core.Hostname
	CancelRequestedAt *time.Time
	CancelRequestedBy core.Hostname
	CompletedAt       *time.Time
	FailedAt          *time.Time
	CancelledAt       *time.Time
}

// FinishedAt returns the time the task reached its terminal status, or nil if it is still active.
func (d *TaskDetails) FinishedAt() *time.Time {
	switch {
	case d.CompletedAt != nil:
		return d.CompletedAt
	case d.FailedAt != nil:
		return d.FailedAt
	default:
		return d.CancelledAt
	}
}
