package registry

import "errors"

var (
	ErrTaskNotRegistered        = errors.New("task type not registered")
	ErrInformationNotRegistered = errors.New("information type not registered")
)

type ErrInvalidTask struct {
	msg string
}

func (e *ErrInvalidTask) Error() string {
	return e.msg
}

type ErrTaskAlreadyRegistered struct {
	msg string
}

func (e *ErrTaskAlreadyRegistered) Error() string {
	return e.msg
}

type ErrInformationAlreadyRegistered struct {
	msg string
}

func (e *ErrInformationAlreadyRegistered) Error() string {
	return e.msg
}
