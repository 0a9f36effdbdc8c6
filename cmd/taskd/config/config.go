package config

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the task daemon.
type Config struct {
	LogLevel string
	Hostname string

	Backend        string
	SqlitePath     string
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBIsolation    string
	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string

	Bus          string
	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr    string
	MetricsAddr string

	MaxParallelTasks int
	ProgressInterval time.Duration
	CacheTTL         time.Duration

	Retention       time.Duration
	CleanupSchedule string

	OTelEndpoint string
	OTelStdout   bool
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel: v.GetString("log_level"),
		Hostname: v.GetString("hostname"),

		Backend:        v.GetString("backend"),
		SqlitePath:     v.GetString("sqlite_path"),
		DBHost:         v.GetString("db_host"),
		DBPort:         v.GetInt("db_port"),
		DBUser:         v.GetString("db_user"),
		DBPassword:     v.GetString("db_password"),
		DBName:         v.GetString("db_name"),
		DBIsolation:    v.GetString("db_isolation"),
		RedisAddr:      v.GetString("redis_addr"),
		RedisPassword:  v.GetString("redis_password"),
		RedisKeyPrefix: v.GetString("redis_key_prefix"),

		Bus:          v.GetString("bus"),
		KafkaBrokers: splitList(v.GetString("kafka_brokers")),
		KafkaTopic:   v.GetString("kafka_topic"),

		HTTPAddr:    v.GetString("http_addr"),
		MetricsAddr: v.GetString("metrics_addr"),

		MaxParallelTasks: v.GetInt("max_parallel_tasks"),
		ProgressInterval: v.GetDuration("progress_interval"),
		CacheTTL:         v.GetDuration("cache_ttl"),

		Retention:       v.GetDuration("retention"),
		CleanupSchedule: v.GetString("cleanup_schedule"),

		OTelEndpoint: v.GetString("otel_endpoint"),
		OTelStdout:   v.GetBool("otel_stdout"),
	}
}

// Validate checks the combination of backend and bus.
func (c Config) Validate() error {
	switch c.Backend {
	case "memory", "sqlite", "mysql", "postgres", "redis":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	switch c.Bus {
	case "local":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("bus %q requires kafka_brokers", c.Bus)
		}
	case "postgres":
		if c.Backend != "postgres" {
			return fmt.Errorf("bus %q requires the postgres backend", c.Bus)
		}
	default:
		return fmt.Errorf("unknown bus %q", c.Bus)
	}

	if _, err := c.AppendIsolation(); err != nil {
		return err
	}

	if c.Retention < 0 {
		return fmt.Errorf("retention must not be negative")
	}

	return nil
}

// AppendIsolation maps db_isolation to the isolation level of event appends on MySQL and PostgreSQL.
func (c Config) AppendIsolation() (sql.IsolationLevel, error) {
	switch c.DBIsolation {
	case "", "read-committed":
		return sql.LevelReadCommitted, nil
	case "repeatable-read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return 0, fmt.Errorf("unknown db_isolation %q", c.DBIsolation)
	}
}

func splitList(s string) []string {
	var r []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			r = append(r, p)
		}
	}

	return r
}
