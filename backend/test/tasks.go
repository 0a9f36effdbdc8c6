package test

import (
	"context"
	"errors"
	"time"

	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/task"
)

var errMailboxNotFound = errors.New("mailbox not found")

type reindexTask struct {
	Mailbox string      `json:"mailbox"`
	Result  core.Result `json:"result"`
}

func (t *reindexTask) Type() string {
	return "test-reindex"
}

func (t *reindexTask) Run(ctx context.Context) (core.Result, error) {
	return t.Result, nil
}

type failingTask struct {
	Mailbox string `json:"mailbox"`
}

func (t *failingTask) Type() string {
	return "test-failing"
}

func (t *failingTask) Run(ctx context.Context) (core.Result, error) {
	return "", errMailboxNotFound
}

type panickingTask struct{}

func (t *panickingTask) Type() string {
	return "test-panicking"
}

func (t *panickingTask) Run(ctx context.Context) (core.Result, error) {
	var m map[string]int
	m["boom"]++

	return core.ResultCompleted, nil
}

// blockingTask runs until it is cancelled
type blockingTask struct {
	started chan struct{}
}

func newBlockingTask() *blockingTask {
	return &blockingTask{started: make(chan struct{})}
}

func (t *blockingTask) Type() string {
	return "test-blocking"
}

func (t *blockingTask) Run(ctx context.Context) (core.Result, error) {
	close(t.started)
	<-ctx.Done()

	return "", task.ErrCancelled
}

type progressInformation struct {
	Processed int       `json:"processed"`
	At        time.Time `json:"at"`
}

func (p *progressInformation) Type() string {
	return "test-progress"
}

func (p *progressInformation) Timestamp() time.Time {
	return p.At
}

type progressTask struct {
	Steps int `json:"steps"`
}

func (t *progressTask) Type() string {
	return "test-progress"
}

func (t *progressTask) Run(ctx context.Context) (core.Result, error) {
	for i := 1; i <= t.Steps; i++ {
		task.ReportProgress(ctx, &progressInformation{Processed: i, At: time.Now()})
	}

	return core.ResultCompleted, nil
}
