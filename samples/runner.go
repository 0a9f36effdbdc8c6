package samples

import (
	"flag"
	"time"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/memory"
	"github.com/cschleiden/go-tasks/backend/mysql"
	"github.com/cschleiden/go-tasks/backend/postgres"
	"github.com/cschleiden/go-tasks/backend/redis"
	"github.com/cschleiden/go-tasks/backend/sqlite"
	redisv9 "github.com/redis/go-redis/v9"
)

// GetBackend returns the backend selected with the -backend flag. name is used as database or file name.
func GetBackend(name string, opt ...backend.BackendOption) backend.Backend {
	b := flag.String("backend", "sqlite", "backend to use: memory, sqlite, mysql, postgres, redis")
	flag.Parse()

	switch *b {
	case "memory":
		return memory.NewMemoryBackend(opt...)

	case "sqlite":
		return sqlite.NewSqliteBackend(name+".sqlite", sqlite.WithBackendOptions(opt...))

	case "mysql":
		return mysql.NewMysqlBackend("localhost", 3306, "root", "root", name, mysql.WithBackendOptions(opt...))

	case "postgres":
		return postgres.NewPostgresBackend("localhost", 5432, "root", "root", name, postgres.WithBackendOptions(opt...))

	case "redis":
		rclient := redisv9.NewUniversalClient(&redisv9.UniversalOptions{
			Addrs:        []string{"localhost:6379"},
			Username:     "",
			Password:     "RedisPassw0rd",
			DB:           0,
			WriteTimeout: time.Second * 30,
			ReadTimeout:  time.Second * 30,
		})

		rb, err := redis.NewRedisBackend(rclient, redis.WithKeyPrefix(name+":"), redis.WithBackendOptions(opt...))
		if err != nil {
			panic(err)
		}

		return rb

	default:
		panic("unknown backend " + *b)
	}
}
