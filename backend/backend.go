package backend

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/backend/metrics"
	"github.com/cschleiden/go-tasks/core"
)

var (
	// ErrConcurrentModification is returned when the expected next event id of an append no longer
	// matches the aggregate's stream.
	ErrConcurrentModification = errors.New("concurrent modification of task aggregate")

	ErrAggregateNotFound = errors.New("task aggregate not found")
)

const TracerName = "go-tasks"

//go:generate mockery --name=Backend --inpackage
type Backend interface {
	// AppendEvents appends the given events to the stream of the aggregate. expectedNextEventID has to match the
	// id the stream expects next, otherwise ErrConcurrentModification is returned and no event is appended.
	AppendEvents(ctx context.Context, id core.TaskAggregateID, expectedNextEventID core.EventID, events []*history.Event) error

	// GetHistory returns the full ordered history of the aggregate. Unknown aggregates have an empty history.
	GetHistory(ctx context.Context, id core.TaskAggregateID) (*history.History, error)

	// ListAggregates returns all known aggregates in creation order
	ListAggregates(ctx context.Context) ([]core.TaskAggregateID, error)

	// RemoveAggregates removes the streams of finished tasks
	RemoveAggregates(ctx context.Context, options ...RemovalOption) error

	// GetStats returns stats about the backend
	GetStats(ctx context.Context) (*Stats, error)

	Logger() *slog.Logger

	// Tracer returns the configured trace provider for the backend
	Tracer() trace.Tracer

	// Metrics returns the configured metrics client for the backend
	Metrics() metrics.Client

	// Options returns the configured options for the backend
	Options() *Options

	// Close closes any underlying resources
	Close() error
}
