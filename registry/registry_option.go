package registry

import "github.com/cschleiden/go-tasks/task"

type RegisterOption interface {
	applyRegisterOption(registerConfig) registerConfig
}

type registerOptions []RegisterOption

func (opts registerOptions) applyRegisterOptions(cfg registerConfig) registerConfig {
	for _, opt := range opts {
		cfg = opt.applyRegisterOption(cfg)
	}
	return cfg
}

type registerOptionFunc func(registerConfig) registerConfig

func (f registerOptionFunc) applyRegisterOption(cfg registerConfig) registerConfig {
	return f(cfg)
}

// WithName registers a task or information type under the given name instead of its Type()
func WithName(name string) RegisterOption {
	return registerOptionFunc(func(cfg registerConfig) registerConfig {
		cfg.Name = name
		return cfg
	})
}

type Option func(*Registry)

// WithAutoRegistration registers unknown task and information types when they are first encoded
func WithAutoRegistration() Option {
	return func(r *Registry) {
		r.autoRegister = true
	}
}

// WithDecodeHook calls hook for every decoded task, for example to bind node local resources
// which are not serialized with the task.
func WithDecodeHook(hook func(task.Task) error) Option {
	return func(r *Registry) {
		r.decodeHooks = append(r.decodeHooks, hook)
	}
}
