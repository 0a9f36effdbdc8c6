package aggregate

import (
	"fmt"
	"time"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/internal/command"
)

// TaskAggregate validates commands against the status derived from a task's history. It is rebuilt
// for every command evaluation and never shared.
type TaskAggregate struct {
	id          core.TaskAggregateID
	status      core.TaskExecutionStatus
	nextEventID core.EventID
}

// FromHistory rebuilds the aggregate. The history has to start with a Created event.
func FromHistory(id core.TaskAggregateID, h *history.History) (*TaskAggregate, error) {
	if h == nil || h.IsEmpty() {
		return nil, &InvalidAggregateStateError{ID: id, Reason: "history is empty"}
	}

	if first := h.Events()[0]; first.Type != history.EventType_Created {
		return nil, &InvalidAggregateStateError{
			ID:     id,
			Reason: fmt.Sprintf("history starts with %v instead of %v", first.Type, history.EventType_Created),
		}
	}

	var status core.TaskExecutionStatus
	for _, e := range h.Events() {
		status = apply(status, e)
	}

	return &TaskAggregate{
		id:          id,
		status:      status,
		nextEventID: h.NextEventID(),
	}, nil
}

// Create returns the Created event opening the stream of a new task.
func Create(id core.TaskAggregateID, c *command.Create, now time.Time) []*history.Event {
	return []*history.Event{
		history.NewEvent(id, core.FirstEventID, now, history.EventType_Created, &history.CreatedAttributes{
			Task:     c.Task,
			Hostname: c.Hostname,
		}),
	}
}

func (a *TaskAggregate) ID() core.TaskAggregateID {
	return a.id
}

func (a *TaskAggregate) Status() core.TaskExecutionStatus {
	return a.status
}

// Handle evaluates the given command and returns the events it produces. Commands which are not legal
// in the current status produce no events.
func (a *TaskAggregate) Handle(cmd command.Command, now time.Time) ([]*history.Event, error) {
	switch c := cmd.(type) {
	case *command.Create:
		return nil, ErrAggregateAlreadyExists

	case *command.Start:
		if a.status == core.TaskExecutionStatusWaiting {
			return a.emit(now, history.EventType_Started, &history.StartedAttributes{
				Hostname: c.Hostname,
			}), nil
		}

	case *command.RequestCancel:
		if a.status == core.TaskExecutionStatusInProgress {
			return a.emit(now, history.EventType_CancelRequested, &history.CancelRequestedAttributes{
				Hostname: c.Hostname,
			}), nil
		}

	case *command.UpdateAdditionalInformation:
		if a.running() {
			return a.emit(now, history.EventType_AdditionalInformationUpdated, &history.AdditionalInformationUpdatedAttributes{
				Information: c.Information,
				Timestamp:   c.Timestamp,
			}), nil
		}

	case *command.Complete:
		if a.running() {
			return a.emit(now, history.EventType_Completed, &history.CompletedAttributes{
				Result:      c.Result,
				Information: c.Information,
			}), nil
		}

	case *command.Fail:
		if a.running() {
			return a.emit(now, history.EventType_Failed, &history.FailedAttributes{
				ErrorMessage: c.ErrorMessage,
				Stacktrace:   c.Stacktrace,
				Information:  c.Information,
			}), nil
		}

	case *command.Cancel:
		if a.status == core.TaskExecutionStatusCancelRequested {
			return a.emit(now, history.EventType_Cancelled, &history.CancelledAttributes{
				Information: c.Information,
			}), nil
		}

	default:
		return nil, fmt.Errorf("unknown command %T", cmd)
	}

	return nil, nil
}

func (a *TaskAggregate) running() bool {
	return a.status == core.TaskExecutionStatusInProgress || a.status == core.TaskExecutionStatusCancelRequested
}

func (a *TaskAggregate) emit(now time.Time, eventType history.EventType, attributes any) []*history.Event {
	return []*history.Event{history.NewEvent(a.id, a.nextEventID, now, eventType, attributes)}
}

func apply(status core.TaskExecutionStatus, e *history.Event) core.TaskExecutionStatus {
	if status.IsTerminal() {
		return status
	}

	switch e.Type {
	case history.EventType_Created:
		if status == "" {
			return core.TaskExecutionStatusWaiting
		}
	case history.EventType_Started:
		return core.TaskExecutionStatusInProgress
	case history.EventType_CancelRequested:
		return core.TaskExecutionStatusCancelRequested
	case history.EventType_Completed:
		return core.TaskExecutionStatusCompleted
	case history.EventType_Failed:
		return core.TaskExecutionStatusFailed
	case history.EventType_Cancelled:
		return core.TaskExecutionStatusCancelled
	}

	return status
}
