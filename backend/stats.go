package backend

type Stats struct {
	// ActiveTasks are tasks which have not reached a terminal status yet
	ActiveTasks int64

	FinishedTasks int64
}
