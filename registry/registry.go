package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/cschleiden/go-tasks/backend/converter"
	"github.com/cschleiden/go-tasks/backend/history"
	"github.com/cschleiden/go-tasks/backend/payload"
	"github.com/cschleiden/go-tasks/task"
)

// Registry maps task and information type names to their Go types, so serialized tasks and progress
// snapshots can be decoded on any node.
type Registry struct {
	sync.Mutex

	taskMap        map[string]reflect.Type
	informationMap map[string]reflect.Type

	autoRegister bool
	decodeHooks  []func(task.Task) error
}

// New creates a new registry instance.
func New(opts ...Option) *Registry {
	r := &Registry{
		taskMap:        make(map[string]reflect.Type),
		informationMap: make(map[string]reflect.Type),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.taskMap[task.MemoryReferenceTaskType] = reflect.TypeOf(&task.MemoryReferenceTask{})

	return r
}

type registerConfig struct {
	Name string
}

func (r *Registry) RegisterTask(t task.Task, opts ...RegisterOption) error {
	cfg := registerOptions(opts).applyRegisterOptions(registerConfig{})
	name := cfg.Name
	if name == "" {
		name = t.Type()
	}

	if name == "" {
		return &ErrInvalidTask{"task type must not be empty"}
	}

	r.Lock()
	defer r.Unlock()

	if _, ok := r.taskMap[name]; ok {
		return &ErrTaskAlreadyRegistered{fmt.Sprintf("task with type %q already registered", name)}
	}
	r.taskMap[name] = reflect.TypeOf(t)

	return nil
}

func (r *Registry) RegisterInformation(info task.AdditionalInformation, opts ...RegisterOption) error {
	cfg := registerOptions(opts).applyRegisterOptions(registerConfig{})
	name := cfg.Name
	if name == "" {
		name = info.Type()
	}

	r.Lock()
	defer r.Unlock()

	if _, ok := r.informationMap[name]; ok {
		return &ErrInformationAlreadyRegistered{fmt.Sprintf("information with type %q already registered", name)}
	}
	r.informationMap[name] = reflect.TypeOf(info)

	return nil
}

// EncodeTask serializes the given task. Its type has to be registered.
func (r *Registry) EncodeTask(c converter.Converter, t task.Task) (history.TaskPayload, error) {
	if err := r.ensureRegistered(r.taskMap, t.Type(), t, ErrTaskNotRegistered); err != nil {
		return history.TaskPayload{}, err
	}

	data, err := c.To(t)
	if err != nil {
		return history.TaskPayload{}, fmt.Errorf("encoding task %q: %w", t.Type(), err)
	}

	return history.TaskPayload{Type: t.Type(), Data: data}, nil
}

func (r *Registry) DecodeTask(c converter.Converter, p history.TaskPayload) (task.Task, error) {
	r.Lock()
	t, ok := r.taskMap[p.Type]
	r.Unlock()

	if !ok {
		return nil, fmt.Errorf("decoding task %q: %w", p.Type, ErrTaskNotRegistered)
	}

	v, err := decode(c, t, p.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding task %q: %w", p.Type, err)
	}

	tt := v.(task.Task)
	for _, hook := range r.decodeHooks {
		if err := hook(tt); err != nil {
			return nil, fmt.Errorf("decoding task %q: %w", p.Type, err)
		}
	}

	return tt, nil
}

func (r *Registry) EncodeInformation(c converter.Converter, info task.AdditionalInformation) (history.InformationPayload, error) {
	if raw, ok := info.(*task.RawInformation); ok {
		return history.InformationPayload{Type: raw.InformationType, Data: raw.Data}, nil
	}

	if err := r.ensureRegistered(r.informationMap, info.Type(), info, ErrInformationNotRegistered); err != nil {
		return history.InformationPayload{}, err
	}

	data, err := c.To(info)
	if err != nil {
		return history.InformationPayload{}, fmt.Errorf("encoding information %q: %w", info.Type(), err)
	}

	return history.InformationPayload{Type: info.Type(), Data: data}, nil
}

// DecodeInformation deserializes a progress snapshot. Snapshots of unknown types are returned as
// *task.RawInformation.
func (r *Registry) DecodeInformation(c converter.Converter, p history.InformationPayload) (task.AdditionalInformation, error) {
	r.Lock()
	t, ok := r.informationMap[p.Type]
	r.Unlock()

	if !ok {
		return &task.RawInformation{InformationType: p.Type, Data: p.Data}, nil
	}

	v, err := decode(c, t, p.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding information %q: %w", p.Type, err)
	}

	return v.(task.AdditionalInformation), nil
}

func (r *Registry) ensureRegistered(m map[string]reflect.Type, name string, v any, notRegistered error) error {
	r.Lock()
	defer r.Unlock()

	if _, ok := m[name]; ok {
		return nil
	}

	if !r.autoRegister {
		return fmt.Errorf("%q: %w", name, notRegistered)
	}

	if name == "" {
		return errors.New("type name must not be empty")
	}

	m[name] = reflect.TypeOf(v)

	return nil
}

func decode(c converter.Converter, t reflect.Type, data payload.Payload) (any, error) {
	if t.Kind() == reflect.Ptr {
		v := reflect.New(t.Elem())
		if err := c.From(data, v.Interface()); err != nil {
			return nil, err
		}

		return v.Interface(), nil
	}

	v := reflect.New(t)
	if err := c.From(data, v.Interface()); err != nil {
		return nil, err
	}

	return v.Elem().Interface(), nil
}
