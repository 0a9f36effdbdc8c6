package redis

import (
	"github.com/cschleiden/go-tasks/backend"
)

type RedisOptions struct {
	*backend.Options

	// KeyPrefix is prepended to every key, allowing multiple deployments to share a database
	KeyPrefix string
}

type RedisBackendOption func(*RedisOptions)

func WithKeyPrefix(keyPrefix string) RedisBackendOption {
	return func(o *RedisOptions) {
		o.KeyPrefix = keyPrefix
	}
}

func WithBackendOptions(opts ...backend.BackendOption) RedisBackendOption {
	return func(o *RedisOptions) {
		for _, opt := range opts {
			opt(o.Options)
		}
	}
}
