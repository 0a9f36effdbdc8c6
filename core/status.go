package core

import "fmt"

type TaskExecutionStatus string

//	┌───────┐   ┌───────────┐   ┌────────────────┐
//	│Waiting├──►│In progress├──►│Cancel requested│
//	└───────┘   └─────┬─────┘   └───────┬────────┘
//	                  ▼                 ▼
//	         Completed / Failed   Completed / Failed / Cancelled
const (
	TaskExecutionStatusWaiting         TaskExecutionStatus = "WAITING"
	TaskExecutionStatusInProgress      TaskExecutionStatus = "IN_PROGRESS"
	TaskExecutionStatusCancelRequested TaskExecutionStatus = "CANCEL_REQUESTED"
	TaskExecutionStatusCompleted       TaskExecutionStatus = "COMPLETED"
	TaskExecutionStatusFailed          TaskExecutionStatus = "FAILED"
	TaskExecutionStatusCancelled       TaskExecutionStatus = "CANCELLED"
)

// IsTerminal returns true if no further state changing event is accepted in the given status.
func (s TaskExecutionStatus) IsTerminal() bool {
	switch s {
	case TaskExecutionStatusCompleted, TaskExecutionStatusFailed, TaskExecutionStatusCancelled:
		return true
	}

	return false
}

// ParseTaskExecutionStatus parses the string representation of a status.
func ParseTaskExecutionStatus(s string) (TaskExecutionStatus, error) {
	switch st := TaskExecutionStatus(s); st {
	case TaskExecutionStatusWaiting, TaskExecutionStatusInProgress, TaskExecutionStatusCancelRequested,
		TaskExecutionStatusCompleted, TaskExecutionStatusFailed, TaskExecutionStatusCancelled:
		return st, nil
	}

	return "", fmt.Errorf("unknown task execution status %q", s)
}

// Result is the outcome of a task run which did not fail.
type Result string

const (
	ResultCompleted          Result = "COMPLETED"
	ResultPartiallyCompleted Result = "PARTIALLY_COMPLETED"
)
