package worker

import "context"

// workQueue bounds the number of concurrently executing tasks
type workQueue[Task any] struct {
	slots chan struct{}
}

func newWorkQueue[Task any](maxParallelTasks int) *workQueue[Task] {
	var slots chan struct{}
	if maxParallelTasks > 0 {
		slots = make(chan struct{}, maxParallelTasks)
	}

	return &workQueue[Task]{
		slots: slots,
	}
}

func (w *workQueue[Task]) reserve(ctx context.Context) error {
	if w.slots == nil {
		return nil // No limit on parallel tasks, no reservation needed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.slots <- struct{}{}:
		return nil
	}
}

func (w *workQueue[Task]) release() {
	if w.slots == nil {
		return
	}

	<-w.slots
}
