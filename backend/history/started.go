package history

import "github.com/cschleiden/go-tasks/core"

type StartedAttributes struct {
	Hostname core.Hostname `json:"hostname,omitempty"`
}
