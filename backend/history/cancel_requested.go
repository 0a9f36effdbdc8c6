package history

import "github.com/cschleiden/go-tasks/core"

type CancelRequestedAttributes struct {
	Hostname core.Hostname `json:"hostname,omitempty"`
}
