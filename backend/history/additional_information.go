package history

import (
	"time"

	"github.com/cschleiden/go-tasks/backend/payload"
)

// InformationPayload is a serialized progress snapshot of a task.
type InformationPayload struct {
	Type string          `json:"type,omitempty"`
	Data payload.Payload `json:"data,omitempty"`
}

type AdditionalInformationUpdatedAttributes struct {
	Information InformationPayload `json:"information"`
	Timestamp   time.Time          `json:"timestamp"`
}
