package taskerrors

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/go-errors/errors"
	"github.com/stretchr/testify/require"
)

type customError struct{}

func (*customError) Error() string {
	return "custom"
}

func Test_FromError(t *testing.T) {
	require.Nil(t, FromError(nil))

	e := FromError(&customError{})
	require.Equal(t, "customError", e.Type)
	require.Equal(t, "custom", e.Message)
	require.Contains(t, e.Stacktrace, "Test_FromError")
}

func Test_FromError_KeepsStack(t *testing.T) {
	err := failDeep()

	e := FromError(fmt.Errorf("wrapped: %w", err))
	require.Equal(t, "wrapped: deep", e.Message)
	require.Contains(t, e.Stacktrace, "failDeep")
}

func Test_FromError_DoesNotWrapTwice(t *testing.T) {
	e := &Error{Message: "test"}
	require.Same(t, e, FromError(fmt.Errorf("outer: %w", e)))
}

func Test_NewPanicError(t *testing.T) {
	var pe *PanicError

	func() {
		defer func() {
			if r := recover(); r != nil {
				pe = NewPanicError(r)
			}
		}()

		panicky()
	}()

	require.NotNil(t, pe)
	require.Equal(t, "panic: oops", pe.Error())
	require.Contains(t, pe.Stacktrace(), "panicky")
	require.NotContains(t, pe.Stacktrace(), "NewPanicError")

	e := FromError(pe)
	require.Equal(t, pe.Stacktrace(), e.Stacktrace)
	require.True(t, errors.As(error(pe), new(*PanicError)))
}

func failDeep() error {
	return goerrors.New("deep")
}

func panicky() {
	panic("oops")
}
