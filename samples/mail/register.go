package mail

import (
	"errors"

	"github.com/cschleiden/go-tasks/registry"
)

// Register adds the sample tasks and their progress information to r
func Register(r *registry.Registry) error {
	return errors.Join(
		r.RegisterTask(&ReprocessTask{}),
		r.RegisterInformation(&ReprocessInformation{}),
		r.RegisterTask(&RemoteDeliveryTask{}),
		r.RegisterInformation(&DeliveryInformation{}),
	)
}
