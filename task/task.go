package task

import (
	"context"
	"errors"
	"time"

	"github.com/cschleiden/go-tasks/core"
)

// ErrCancelled can be returned by a task which stopped because cancellation was requested
var ErrCancelled = errors.New("task cancelled")

// Task is a unit of work tracked by the task manager. Implementations are serialized with the configured
// converter when submitted, so any node can inspect them.
type Task interface {
	// Type identifies the task implementation in the registry
	Type() string

	// Run executes the task. The context is cancelled when cancellation of the task is requested.
	Run(ctx context.Context) (core.Result, error)
}

// DetailsProvider is implemented by tasks which expose periodic progress snapshots
type DetailsProvider interface {
	// Details returns the current progress snapshot, or nil if there is none yet
	Details() AdditionalInformation
}

// Canceler is implemented by tasks which need an explicit stop signal in addition to context cancellation
type Canceler interface {
	Cancel()
}

// AdditionalInformation is a progress snapshot of a running task
type AdditionalInformation interface {
	// Type identifies the information in the registry
	Type() string

	// Timestamp is the time the snapshot was taken
	Timestamp() time.Time
}

// Reporter receives progress snapshots pushed by a running task
type Reporter func(info AdditionalInformation)

type reporterKey struct{}

func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// ReportProgress records a progress snapshot for the task running with the given context. Outside of a
// task execution, it does nothing.
func ReportProgress(ctx context.Context, info AdditionalInformation) {
	if info == nil {
		return
	}

	if r, ok := ctx.Value(reporterKey{}).(Reporter); ok {
		r(info)
	}
}
