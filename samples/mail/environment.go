package mail

import "github.com/cschleiden/go-tasks/task"

// Environment holds the repositories, queues and remote transport of a node. Tasks decoded on the node,
// for example when submitted over HTTP, are bound to it with Bind.
type Environment struct {
	Repositories map[string]Repository
	Queues       map[string]Queue

	// Outgoing holds mails awaiting remote delivery
	Outgoing  Repository
	Deliverer Deliverer
}

// Bind sets the collaborators of a decoded mail task. Other tasks and already bound tasks are left as is.
func (env *Environment) Bind(t task.Task) error {
	switch t := t.(type) {
	case *ReprocessTask:
		if t.repo == nil {
			t.repo = env.Repositories[t.Repository]
		}

		if t.queue == nil {
			t.queue = env.Queues[t.TargetQueue]
		}

	case *RemoteDeliveryTask:
		if t.repo == nil {
			t.repo = env.Outgoing
		}

		if t.deliverer == nil {
			t.deliverer = env.Deliverer
		}
	}

	return nil
}
