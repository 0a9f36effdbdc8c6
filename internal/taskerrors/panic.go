package taskerrors

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

type PanicError struct {
	message    string
	stacktrace string
}

func (pe *PanicError) Error() string {
	return pe.message
}

func (pe *PanicError) Stacktrace() string {
	return pe.stacktrace
}

// NewPanicError converts a recovered panic value. It has to be called from the deferred function
// which recovered the panic.
func NewPanicError(r any) *PanicError {
	// Skip NewPanicError and the deferred recover function
	goerr := goerrors.Wrap(r, 2)

	return &PanicError{
		message:    fmt.Sprintf("panic: %v", r),
		stacktrace: string(goerr.Stack()),
	}
}
