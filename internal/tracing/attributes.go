package tracing

const (
	TaskID     = "task.id"
	TaskType   = "task.type"
	TaskStatus = "task.status"
	TaskResult = "task.result"

	Command   = "command.name"
	EventType = "event.type"
	EventID   = "event.id"
	Attempt   = "attempt"
)
