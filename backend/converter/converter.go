package converter

import "github.com/cschleiden/go-tasks/backend/payload"

// Converter is used to serialize tasks and additional information into event payloads.
type Converter interface {
	To(v any) (payload.Payload, error)
	From(data payload.Payload, vptr any) error
}

var DefaultConverter Converter = &jsonConverter{}
