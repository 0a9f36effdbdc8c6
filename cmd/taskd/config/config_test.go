package config

import (
	"database/sql"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func Test_Load(t *testing.T) {
	v := viper.New()
	v.Set("backend", "postgres")
	v.Set("bus", "kafka")
	v.Set("kafka_brokers", "k1:9092, k2:9092,")
	v.Set("retention", "72h")
	v.Set("progress_interval", "2s")
	v.Set("db_port", 5432)

	c := Load(v)

	require.Equal(t, "postgres", c.Backend)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	require.Equal(t, 72*time.Hour, c.Retention)
	require.Equal(t, 2*time.Second, c.ProgressInterval)
	require.Equal(t, 5432, c.DBPort)
	require.NoError(t, c.Validate())
}

func Test_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"local bus", Config{Backend: "sqlite", Bus: "local"}, ""},
		{"postgres notifications", Config{Backend: "postgres", Bus: "postgres"}, ""},
		{"unknown backend", Config{Backend: "mongo", Bus: "local"}, `unknown backend "mongo"`},
		{"unknown bus", Config{Backend: "memory", Bus: "nats"}, `unknown bus "nats"`},
		{"kafka without brokers", Config{Backend: "mysql", Bus: "kafka"}, "requires kafka_brokers"},
		{"notifications need postgres", Config{Backend: "mysql", Bus: "postgres"}, "requires the postgres backend"},
		{"serializable appends", Config{Backend: "postgres", Bus: "local", DBIsolation: "serializable"}, ""},
		{"unknown isolation", Config{Backend: "mysql", Bus: "local", DBIsolation: "snapshot"}, `unknown db_isolation "snapshot"`},
		{"negative retention", Config{Backend: "memory", Bus: "local", Retention: -time.Hour}, "retention"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func Test_AppendIsolation(t *testing.T) {
	l, err := Config{}.AppendIsolation()
	require.NoError(t, err)
	require.Equal(t, sql.LevelReadCommitted, l)

	l, err = Config{DBIsolation: "repeatable-read"}.AppendIsolation()
	require.NoError(t, err)
	require.Equal(t, sql.LevelRepeatableRead, l)
}
