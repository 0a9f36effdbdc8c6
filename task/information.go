package task

import (
	"time"

	"github.com/cschleiden/go-tasks/backend/payload"
)

// RawInformation is additional information whose type is not registered on this node
type RawInformation struct {
	InformationType string          `json:"type"`
	Data            payload.Payload `json:"data,omitempty"`
	At              time.Time       `json:"timestamp"`
}

var _ AdditionalInformation = (*RawInformation)(nil)

func (ri *RawInformation) Type() string {
	return ri.InformationType
}

func (ri *RawInformation) Timestamp() time.Time {
	return ri.At
}
