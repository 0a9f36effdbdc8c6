package history

import "github.com/cschleiden/go-tasks/core"

type CompletedAttributes struct {
	Result      core.Result         `json:"result"`
	Information *InformationPayload `json:"information,omitempty"`
}

type FailedAttributes struct {
	ErrorMessage *string             `json:"error_message,omitempty"`
	Stacktrace   *string             `json:"stacktrace,omitempty"`
	Information  *InformationPayload `json:"information,omitempty"`
}

type CancelledAttributes struct {
	Information *InformationPayload `json:"information,omitempty"`
}
