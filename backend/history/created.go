package history

import (
	"github.com/cschleiden/go-tasks/backend/payload"
	"github.com/cschleiden/go-tasks/core"
)

// TaskPayload is a serialized task, resolved through the task registry by Type.
type TaskPayload struct {
	Type string          `json:"type,omitempty"`
	Data payload.Payload `json:"data,omitempty"`
}

type CreatedAttributes struct {
	Task     TaskPayload   `json:"task"`
	Hostname core.Hostname `json:"hostname,omitempty"`
}
