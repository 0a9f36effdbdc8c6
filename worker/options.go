package worker

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/eventbus"
	"github.com/cschleiden/go-tasks/registry"
)

type Options struct {
	// Hostname is recorded in the events produced by this worker. Defaults to the local hostname.
	Hostname core.Hostname

	// MaxParallelTasks determines the maximum number of concurrently executing tasks. The default is 0 which
	// is no limit. Submitted tasks wait for a free slot in WAITING.
	MaxParallelTasks int

	// ProgressInterval is the interval between progress snapshots of tasks implementing task.DetailsProvider.
	// Defaults to 5 seconds, 0 disables snapshots.
	ProgressInterval time.Duration

	// MaxRetries limits how often a command is re-evaluated after a concurrent modification. Defaults to 10.
	MaxRetries uint64

	// Registry resolves task and information types. If nil, a registry registering types on first use is created.
	Registry *registry.Registry

	// Bus publishes appended events and delivers cancellation requests from other nodes. Defaults to a local bus.
	Bus eventbus.Bus

	Clock clock.Clock
}

var DefaultOptions = Options{
	MaxParallelTasks: 0,
	ProgressInterval: 5 * time.Second,
	MaxRetries:       10,
}
