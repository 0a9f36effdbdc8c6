package diag

import (
	"encoding/json"
	"time"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/client"
	"github.com/cschleiden/go-tasks/core"
)

type SubmitTaskRequest struct {
	Type string          `json:"type"`
	Task json.RawMessage `json:"task,omitempty"`
}

type SubmitTaskResponse struct {
	ID core.TaskID `json:"id"`
}

type CancelTaskResponse struct {
	ID     core.TaskID              `json:"id"`
	Status core.TaskExecutionStatus `json:"status"`
}

type TaskInfo struct {
	ID     core.TaskID              `json:"id"`
	Type   string                   `json:"type"`
	Status core.TaskExecutionStatus `json:"status"`

	Information     any    `json:"information,omitempty"`
	InformationType string `json:"information_type,omitempty"`

	Result       *core.Result `json:"result,omitempty"`
	ErrorMessage *string      `json:"error,omitempty"`
	Stacktrace   *string      `json:"stacktrace,omitempty"`

	SubmittedAt       time.Time     `json:"submitted_at"`
	SubmittedFrom     core.Hostname `json:"submitted_from,omitempty"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	RanNode           core.Hostname `json:"ran_node,omitempty"`
	CancelRequestedAt *time.Time    `json:"cancel_requested_at,omitempty"`
	CancelRequestedBy core.Hostname `json:"cancel_requested_by,omitempty"`
	FinishedAt        *time.Time    `json:"finished_at,omitempty"`
}

func newTaskInfo(d *client.TaskDetails) *TaskInfo {
	info := &TaskInfo{
		ID:                d.ID,
		Type:              d.Type,
		Status:            d.Status,
		Information:       d.Information,
		Result:            d.Result,
		ErrorMessage:      d.ErrorMessage,
		Stacktrace:        d.Stacktrace,
		SubmittedAt:       d.SubmittedAt,
		SubmittedFrom:     d.SubmittedFrom,
		StartedAt:         d.StartedAt,
		RanNode:           d.RanNode,
		CancelRequestedAt: d.CancelRequestedAt,
		CancelRequestedBy: d.CancelRequestedBy,
		FinishedAt:        d.FinishedAt(),
	}

	if d.Information != nil {
		info.InformationType = d.Information.Type()
	}

	return info
}

type Event struct {
	ID         core.EventID `json:"id"`
	Type       string       `json:"type"`
	Timestamp  time.Time    `json:"timestamp"`
	Attributes any          `json:"attributes,omitempty"`
}

type TaskHistory struct {
	ID      core.TaskID `json:"id"`
	History []*Event    `json:"history"`
}

func newTaskHistory(id core.TaskID, h *history.History) *TaskHistory {
	events := make([]*Event, 0, h.Len())
	for _, event := range h.Events() {
		events = append(events, &Event{
			ID:         event.EventID,
			Type:       event.Type.String(),
			Timestamp:  event.Timestamp,
			Attributes: event.Attributes,
		})
	}

	return &TaskHistory{ID: id, History: events}
}

type StatsResponse struct {
	ActiveTasks   int64 `json:"active_tasks"`
	FinishedTasks int64 `json:"finished_tasks"`
}
