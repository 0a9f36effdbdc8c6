package taskerrors

import (
	"errors"
	"fmt"
	"reflect"

	goerrors "github.com/go-errors/errors"
)

// Error is the persisted description of a failed task run
type Error struct {
	Type       string
	Message    string
	Stacktrace string
}

func (e *Error) Error() string {
	return e.Message
}

// FromError describes the given error. The stacktrace is taken from the error when it carries one,
// otherwise it is captured at the call site.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return &Error{
		Type:       errorType(err),
		Message:    err.Error(),
		Stacktrace: stacktrace(err),
	}
}

func stacktrace(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return pe.Stacktrace()
	}

	var goerr *goerrors.Error
	if errors.As(err, &goerr) {
		return string(goerr.Stack())
	}

	if st, ok := err.(interface{ Stacktrace() string }); ok {
		return st.Stacktrace()
	}

	// Skip this frame and FromError
	return string(goerrors.Wrap(err, 2).Stack())
}

func errorType(err error) string {
	t := reflect.TypeOf(err)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Name() == "" {
		return fmt.Sprintf("%T", err)
	}

	return t.Name()
}
