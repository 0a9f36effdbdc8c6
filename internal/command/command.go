package command

import (
	"time"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/core"
)

// Command is a request to change the state of a task. The set of commands is closed.
type Command interface {
	Type() string

	command()
}

type Create struct {
	Task     history.TaskPayload
	Hostname core.Hostname
}

type Start struct {
	Hostname core.Hostname
}

type RequestCancel struct {
	Hostname core.Hostname
}

type UpdateAdditionalInformation struct {
	Information history.InformationPayload

	// Timestamp is the time the snapshot was taken
	Timestamp time.Time
}

type Complete struct {
	Result      core.Result
	Information *history.InformationPayload
}

type Fail struct {
	ErrorMessage *string
	Stacktrace   *string
	Information  *history.InformationPayload
}

type Cancel struct {
	Information *history.InformationPayload
}

var (
	_ Command = (*Create)(nil)
	_ Command = (*Start)(nil)
	_ Command = (*RequestCancel)(nil)
	_ Command = (*UpdateAdditionalInformation)(nil)
	_ Command = (*Complete)(nil)
	_ Command = (*Fail)(nil)
	_ Command = (*Cancel)(nil)
)

func (*Create) Type() string                      { return "Create" }
func (*Start) Type() string                       { return "Start" }
func (*RequestCancel) Type() string               { return "RequestCancel" }
func (*UpdateAdditionalInformation) Type() string { return "UpdateAdditionalInformation" }
func (*Complete) Type() string                    { return "Complete" }
func (*Fail) Type() string                        { return "Fail" }
func (*Cancel) Type() string                      { return "Cancel" }

func (*Create) command()                      {}
func (*Start) command()                       {}
func (*RequestCancel) command()               {}
func (*UpdateAdditionalInformation) command() {}
func (*Complete) command()                    {}
func (*Fail) command()                        {}
func (*Cancel) command()                      {}
