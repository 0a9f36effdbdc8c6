package log

const (
	NamespaceKey = "tasks"

	TaskIDKey         = NamespaceKey + ".task.id"
	TaskTypeKey       = NamespaceKey + ".task.type"
	TaskStatusKey     = NamespaceKey + ".task.status"
	TaskResultKey     = NamespaceKey + ".task.result"
	AggregateIDKey    = NamespaceKey + ".aggregate.id"
	HostnameKey       = NamespaceKey + ".hostname"
	CommandKey        = NamespaceKey + ".command"
	EventTypeKey      = NamespaceKey + ".event.type"
	EventIDKey        = NamespaceKey + ".event.id"
	NextEventIDKey    = NamespaceKey + ".event.next_id"
	AttemptKey        = NamespaceKey + ".attempt"
	DurationKey       = NamespaceKey + ".duration_ms"
	TopicKey          = NamespaceKey + ".bus.topic"
	FinishedBeforeKey = NamespaceKey + ".finished_before"
)
