package metrickeys

const (
	Prefix = "tasks."

	// Tasks
	TaskSubmitted       = Prefix + "task.submitted"
	TaskStarted         = Prefix + "task.started"
	TaskFinished        = Prefix + "task.finished"
	TaskCancelRequested = Prefix + "task.cancel_requested"
	TaskExecutionTime   = Prefix + "task.execution_time"
	TaskQueueDelay      = Prefix + "task.time_in_queue"
	TasksRunning        = Prefix + "task.running"
	ProgressUpdates     = Prefix + "task.progress_updates"

	// Event log
	EventsAppended          = Prefix + "events.appended"
	ConcurrentModifications = Prefix + "events.concurrent_modifications"
	CommandsRejected        = Prefix + "commands.rejected"

	// Client
	DetailsCacheHit  = Prefix + "client.details_cache.hit"
	DetailsCacheMiss = Prefix + "client.details_cache.miss"
	TaskCleanups     = Prefix + "client.cleanups"
)

// Tag names
const (
	// Backend being used
	Backend = "backend"

	TaskType = "type"
	Status   = "status"

	CommandName = "command"
	EventName   = "event"
)
