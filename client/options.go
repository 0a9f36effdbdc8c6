package client

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/eventbus"
	"github.com/cschleiden/go-tasks/registry"
	"github.com/cschleiden/go-tasks/worker"
)

const (
	DefaultCacheTTL      = time.Minute * 5
	DefaultCacheCapacity = 1024
)

type options struct {
	worker   *worker.Worker
	registry *registry.Registry
	bus      eventbus.Bus
	hostname core.Hostname
	clock    clock.Clock

	cacheTTL      time.Duration
	cacheCapacity uint64
}

type Option func(*options)

// WithWorker enables submitting tasks. The worker's registry, bus, and hostname are used unless
// configured explicitly.
func WithWorker(w *worker.Worker) Option {
	return func(o *options) {
		o.worker = w
	}
}

// WithRegistry sets the registry used to decode tasks and their information.
func WithRegistry(r *registry.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithBus sets the bus on which terminal events are observed while awaiting tasks and cancellation
// requests are published.
func WithBus(bus eventbus.Bus) Option {
	return func(o *options) {
		o.bus = bus
	}
}

// WithHostname sets the hostname recorded for cancellation requests without a worker.
func WithHostname(h core.Hostname) Option {
	return func(o *options) {
		o.hostname = h
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithCache configures how long and how many details of finished tasks are kept.
func WithCache(ttl time.Duration, capacity uint64) Option {
	return func(o *options) {
		o.cacheTTL = ttl
		o.cacheCapacity = capacity
	}
}
