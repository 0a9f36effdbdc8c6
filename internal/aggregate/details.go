package aggregate

import (
	"time"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/core"
)

// Details is the read model of a task, derived from its history.
type Details struct {
	ID     core.TaskID
	Type   string
	Status core.TaskExecutionStatus

	Task history.TaskPayload

	// Information is the latest progress snapshot, if any was recorded
	Information *history.InformationPayload

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

// FoldDetails replays the given history into the task read model.
func FoldDetails(id core.TaskAggregateID, h *history.History) (*Details, error) {
	a, err := FromHistory(id, h)
	if err != nil {
		return nil, err
	}

	d := &Details{
		ID:     id.TaskID,
		Status: a.Status(),
	}

	var status core.TaskExecutionStatus
	for _, e := range h.Events() {
		// Nothing after a terminal event is part of the task's state
		if status.IsTerminal() {
			break
		}

		ts := e.Timestamp

		switch attr := e.Attributes.(type) {
		case *history.CreatedAttributes:
			if status == "" {
				d.Task = attr.Task
				d.Type = attr.Task.Type
				d.SubmittedAt = ts
				d.SubmittedFrom = attr.Hostname
			}

		case *history.StartedAttributes:
			d.StartedAt = &ts
			d.RanNode = attr.Hostname

		case *history.CancelRequestedAttributes:
			d.CancelRequestedAt = &ts
			d.CancelRequestedBy = attr.Hostname

		case *history.AdditionalInformationUpdatedAttributes:
			if status == core.TaskExecutionStatusInProgress || status == core.TaskExecutionStatusCancelRequested {
				info := attr.Information
				d.Information = &info
			}

		case *history.CompletedAttributes:
			r := attr.Result
			d.Result = &r
			d.CompletedAt = &ts
			d.setInformation(attr.Information)

		case *history.FailedAttributes:
			d.ErrorMessage = attr.ErrorMessage
			d.Stacktrace = attr.Stacktrace
			d.FailedAt = &ts
			d.setInformation(attr.Information)

		case *history.CancelledAttributes:
			d.CancelledAt = &ts
			d.setInformation(attr.Information)
		}

		status = apply(status, e)
	}

	return d, nil
}

func (d *Details) setInformation(info *history.InformationPayload) {
	if info != nil {
		d.Information = info
	}
}
