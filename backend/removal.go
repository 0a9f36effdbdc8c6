package backend

import (
	"time"
)

type RemovalOptions struct {
	// FinishedBefore limits removal to tasks which reached a terminal status before the given time. The zero
	// value removes all finished tasks.
	FinishedBefore time.Time
}

type RemovalOption func(o *RemovalOptions)

func RemoveFinishedBefore(t time.Time) RemovalOption {
	return func(o *RemovalOptions) {
		o.FinishedBefore = t
	}
}

func ApplyRemovalOptions(opts ...RemovalOption) RemovalOptions {
	var options RemovalOptions
	for _, opt := range opts {
		opt(&options)
	}

	return options
}

// ShouldRemove returns true if a task finished at the given time matches the options
func (o RemovalOptions) ShouldRemove(finishedAt time.Time) bool {
	return o.FinishedBefore.IsZero() || finishedAt.Before(o.FinishedBefore)
}
