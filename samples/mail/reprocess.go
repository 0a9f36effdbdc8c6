package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/task"
)

const ReprocessTaskType = "reprocess-mail-repository"

// ReprocessInformation is the progress snapshot of a ReprocessTask
type ReprocessInformation struct {
	Repository     string    `json:"repository"`
	TargetQueue    string    `json:"target_queue"`
	InitialCount   int       `json:"initial_count"`
	RemainingCount int       `json:"remaining_count"`
	Errors         int       `json:"errors"`
	At             time.Time `json:"at"`
}

var _ task.AdditionalInformation = (*ReprocessInformation)(nil)

func (i *ReprocessInformation) Type() string {
	return ReprocessTaskType
}

func (i *ReprocessInformation) Timestamp() time.Time {
	return i.At
}

// ReprocessTask moves all mails of a repository back into a queue. Only the names are serialized, the
// repository and queue are bound when the task is created on the executing node.
type ReprocessTask struct {
	Repository  string `json:"repository"`
	TargetQueue string `json:"target_queue"`

	repo  Repository
	queue Queue

	mu   sync.Mutex
	info *ReprocessInformation
}

var (
	_ task.Task            = (*ReprocessTask)(nil)
	_ task.DetailsProvider = (*ReprocessTask)(nil)
)

func NewReprocessTask(repository string, repo Repository, targetQueue string, queue Queue) *ReprocessTask {
	return &ReprocessTask{
		Repository:  repository,
		TargetQueue: targetQueue,
		repo:        repo,
		queue:       queue,
	}
}

func (t *ReprocessTask) Type() string {
	return ReprocessTaskType
}

func (t *ReprocessTask) Run(ctx context.Context) (core.Result, error) {
	if t.repo == nil || t.queue == nil {
		return "", fmt.Errorf("repository %q is not available on this node", t.Repository)
	}

	keys, err := t.repo.List(ctx)
	if err != nil {
		return "", fmt.Errorf("listing repository %q: %w", t.Repository, err)
	}

	t.update(func(i *ReprocessInformation) {
		i.InitialCount = len(keys)
		i.RemainingCount = len(keys)
	})

	for _, key := range keys {
		if ctx.Err() != nil {
			task.ReportProgress(ctx, t.Details())
			return "", task.ErrCancelled
		}

		err := t.reprocess(ctx, key)
		t.update(func(i *ReprocessInformation) {
			i.RemainingCount--
			if err != nil {
				i.Errors++
			}
		})
	}

	info := t.Details()
	task.ReportProgress(ctx, info)

	if info.(*ReprocessInformation).Errors > 0 {
		return core.ResultPartiallyCompleted, nil
	}

	return core.ResultCompleted, nil
}

func (t *ReprocessTask) reprocess(ctx context.Context, key string) error {
	m, err := t.repo.Retrieve(ctx, key)
	if err != nil {
		// Removed concurrently
		if errors.Is(err, ErrMailNotFound) {
			return nil
		}

		return err
	}

	if err := t.queue.Enqueue(ctx, m); err != nil {
		return err
	}

	return t.repo.Remove(ctx, key)
}

func (t *ReprocessTask) update(f func(i *ReprocessInformation)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.info == nil {
		t.info = &ReprocessInformation{
			Repository:  t.Repository,
			TargetQueue: t.TargetQueue,
		}
	}

	f(t.info)
	t.info.At = time.Now()
}

func (t *ReprocessTask) Details() task.AdditionalInformation {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.info == nil {
		return nil
	}

	info := *t.info
	return &info
}
