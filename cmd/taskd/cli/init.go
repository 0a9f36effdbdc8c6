package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultYAML = `# taskd config
# Priority: CLI flag > TASKD_* environment > this file > default.

log_level: "info"
# hostname: "mx-1"           # defaults to the machine hostname

backend: "sqlite"            # memory | sqlite | mysql | postgres | redis
sqlite_path: "taskd.sqlite"

# db_host:     "localhost"
# db_port:     5432
# db_user:     "root"
# db_password: "root"
# db_name:     "tasks"
# db_isolation: "read-committed"  # read-committed | repeatable-read | serializable

# redis_addr:       "localhost:6379"
# redis_password:   ""
# redis_key_prefix: "tasks:"

bus: "local"                 # local | kafka | postgres
# kafka_brokers: "localhost:9092"
# kafka_topic:   "task-events"

http_addr:    ":8080"
metrics_addr: ":9090"

max_parallel_tasks: 0        # 0 = unlimited
progress_interval:  "5s"
cache_ttl:          "10m"

retention:        "168h"     # finished tasks older than this are removed
cleanup_schedule: "@every 1h"

# otel_endpoint: "localhost:4318"
# otel_stdout:   false
`

func newInitCmd(serviceName, defaultYAML string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: fmt.Sprintf(`Write default configuration for %s.

If --config is given the file is written to that path.
Otherwise it is written to ~/.go-tasks/%s.yaml.
Fails if the file already exists unless --force is passed.`, serviceName, serviceName),
		RunE: func(_ *cobra.Command, _ []string) error {
			dest := cfgFile
			if dest == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("home dir: %w", err)
				}
				dest = filepath.Join(home, ".go-tasks", serviceName+".yaml")
			}

			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("mkdir: %w", err)
			}

			if !force {
				if _, err := os.Stat(dest); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", dest)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat %s: %w", dest, err)
				}
			}

			if err := os.WriteFile(dest, []byte(defaultYAML), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Printf("config written to %s\n", dest)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")
	return cmd
}
