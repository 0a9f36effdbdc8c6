package task

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cschleiden/go-tasks/core"
	"github.com/google/uuid"
)

const MemoryReferenceTaskType = "memory-reference-task"

var ErrReferenceNotFound = errors.New("task reference not found on this node")

var references sync.Map

// MemoryReferenceTask wraps a task which cannot be serialized, for example a closure. Only a reference is
// persisted; the wrapped task can only be resolved on the node which created the reference.
type MemoryReferenceTask struct {
	Reference string `json:"reference"`
}

var (
	_ Task            = (*MemoryReferenceTask)(nil)
	_ DetailsProvider = (*MemoryReferenceTask)(nil)
	_ Canceler        = (*MemoryReferenceTask)(nil)
)

func NewMemoryReferenceTask(t Task) *MemoryReferenceTask {
	ref := uuid.NewString()
	references.Store(ref, t)

	return &MemoryReferenceTask{Reference: ref}
}

func (m *MemoryReferenceTask) Type() string {
	return MemoryReferenceTaskType
}

// Resolve returns the wrapped task
func (m *MemoryReferenceTask) Resolve() (Task, error) {
	if t, ok := references.Load(m.Reference); ok {
		return t.(Task), nil
	}

	return nil, fmt.Errorf("resolving %q: %w", m.Reference, ErrReferenceNotFound)
}

func (m *MemoryReferenceTask) Run(ctx context.Context) (core.Result, error) {
	t, err := m.Resolve()
	if err != nil {
		return "", err
	}

	return t.Run(ctx)
}

func (m *MemoryReferenceTask) Details() AdditionalInformation {
	t, err := m.Resolve()
	if err != nil {
		return nil
	}

	if dp, ok := t.(DetailsProvider); ok {
		return dp.Details()
	}

	return nil
}

func (m *MemoryReferenceTask) Cancel() {
	t, err := m.Resolve()
	if err != nil {
		return
	}

	if c, ok := t.(Canceler); ok {
		c.Cancel()
	}
}

// Release drops the reference once the task reached a terminal status
func (m *MemoryReferenceTask) Release() {
	references.Delete(m.Reference)
}

// RunFunc is the body of a task created with Func
type RunFunc func(ctx context.Context) (core.Result, error)

type funcTask struct {
	fn RunFunc
}

func (f *funcTask) Type() string {
	return MemoryReferenceTaskType
}

func (f *funcTask) Run(ctx context.Context) (core.Result, error) {
	return f.fn(ctx)
}

// Func creates a task from the given function
func Func(fn RunFunc) *MemoryReferenceTask {
	return NewMemoryReferenceTask(&funcTask{fn: fn})
}
