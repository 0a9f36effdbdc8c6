package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cschleiden/go-tasks/backend"
	"github.com/cschleiden/go-tasks/backend/memory"
	"github.com/cschleiden/go-tasks/backend/mysql"
	"github.com/cschleiden/go-tasks/backend/postgres"
	"github.com/cschleiden/go-tasks/backend/redis"
	"github.com/cschleiden/go-tasks/backend/sqlite"
	"github.com/cschleiden/go-tasks/client"
	"github.com/cschleiden/go-tasks/cmd/taskd/config"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/diag"
	"github.com/cschleiden/go-tasks/eventbus"
	"github.com/cschleiden/go-tasks/eventbus/kafka"
	"github.com/cschleiden/go-tasks/log"
	prommetrics "github.com/cschleiden/go-tasks/metrics/prometheus"
	"github.com/cschleiden/go-tasks/registry"
	"github.com/cschleiden/go-tasks/samples/mail"
	"github.com/cschleiden/go-tasks/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task daemon",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("hostname", "", "hostname recorded in task events (default: machine hostname)")
	serveCmd.Flags().String("backend", "sqlite", "event log backend: memory | sqlite | mysql | postgres | redis")
	serveCmd.Flags().String("sqlite-path", "taskd.sqlite", "SQLite database file")
	serveCmd.Flags().String("db-host", "localhost", "MySQL/PostgreSQL host")
	serveCmd.Flags().Int("db-port", 0, "MySQL/PostgreSQL port (default: 3306 or 5432)")
	serveCmd.Flags().String("db-user", "root", "MySQL/PostgreSQL user")
	serveCmd.Flags().String("db-password", "root", "MySQL/PostgreSQL password")
	serveCmd.Flags().String("db-name", "tasks", "MySQL/PostgreSQL database")
	serveCmd.Flags().String("db-isolation", "read-committed", "isolation of event appends: read-committed | repeatable-read | serializable")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().String("redis-key-prefix", "tasks:", "prefix for all Redis keys")
	serveCmd.Flags().String("bus", "local", "event bus between nodes: local | kafka | postgres")
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("kafka-topic", kafka.DefaultTopic, "Kafka topic for task events")
	serveCmd.Flags().String("http-addr", ":8080", "admin API address")
	serveCmd.Flags().String("metrics-addr", ":9090", "Prometheus metrics server address")
	serveCmd.Flags().Int("max-parallel-tasks", 0, "maximum number of concurrently running tasks, 0 is unlimited")
	serveCmd.Flags().Duration("progress-interval", 5*time.Second, "interval between task progress snapshots")
	serveCmd.Flags().Duration("cache-ttl", 10*time.Minute, "how long details of finished tasks are cached")
	serveCmd.Flags().Duration("retention", 7*24*time.Hour, "finished tasks older than this are removed, 0 disables cleanup")
	serveCmd.Flags().String("cleanup-schedule", "@every 1h", "cron schedule for removing expired tasks")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318)")
	serveCmd.Flags().Bool("otel-stdout", false, "write spans to stderr")

	for _, f := range []string{
		"hostname", "backend", "sqlite-path", "db-host", "db-port", "db-user", "db-password", "db-name",
		"db-isolation", "redis-addr", "redis-password", "redis-key-prefix", "bus", "kafka-brokers", "kafka-topic",
		"http-addr", "metrics-addr", "max-parallel-tasks", "progress-interval", "cache-ttl", "retention",
		"cleanup-schedule", "otel-endpoint", "otel-stdout",
	} {
		bindFlag(flagKey(f), serveCmd.Flags(), f)
	}
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return err
	}

	hostname := core.Hostname(cfg.Hostname)
	if hostname == "" {
		hostname = core.LocalHostname()
	}

	logger := buildLogger(cfg.LogLevel).With(slog.String(log.HostnameKey, hostname.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tp, shutdownTracer, err := initTracer(ctx, hostname.String(), cfg.OTelEndpoint, cfg.OTelStdout)
	if err != nil {
		return err
	}
	defer shutdownTracer()

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	b, err := openBackend(cfg,
		backend.WithLogger(logger),
		backend.WithMetrics(prommetrics.NewClient(reg)),
		backend.WithTracerProvider(tp),
	)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	defer func() { _ = b.Close() }()

	bus, err := openBus(cfg, logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer func() { _ = bus.Close() }()

	r := registry.New(registry.WithDecodeHook(mailEnvironment(logger).Bind))
	if err := mail.Register(r); err != nil {
		return fmt.Errorf("registering tasks: %w", err)
	}

	w := worker.New(b, &worker.Options{
		Hostname:         hostname,
		MaxParallelTasks: cfg.MaxParallelTasks,
		ProgressInterval: cfg.ProgressInterval,
		MaxRetries:       worker.DefaultOptions.MaxRetries,
		Registry:         r,
		Bus:              bus,
	})

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	if err := w.Start(workerCtx); err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	c := client.New(b, client.WithWorker(w), client.WithCache(cfg.CacheTTL, 10_000))

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if cfg.Retention > 0 {
		if _, err := scheduler.AddFunc(cfg.CleanupSchedule, func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			if err := c.RemoveExpiredTasks(cleanupCtx, cfg.Retention); err != nil {
				logger.Error("removing expired tasks", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("parse cleanup schedule %q: %w", cfg.CleanupSchedule, err)
		}
	}
	scheduler.Start()

	metricsSrv := startServer(cfg.MetricsAddr, metricsHandler(reg), logger.With("server", "metrics"))
	apiSrv := startServer(cfg.HTTPAddr, diag.NewRouter(c, logger), logger.With("server", "api"))

	logger.Info("taskd started",
		slog.String("backend", cfg.Backend),
		slog.String("bus", cfg.Bus),
		slog.String("http_addr", cfg.HTTPAddr),
	)

	<-ctx.Done()
	logger.Info("shutting down, waiting for running tasks...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	<-scheduler.Stop().Done()
	_ = apiSrv.Shutdown(shutdownCtx)

	// Running tasks observe cancellation and record their terminal status
	cancelWorker()
	if err := w.WaitForCompletion(); err != nil {
		logger.Error("waiting for tasks", "error", err)
	}

	_ = metricsSrv.Shutdown(shutdownCtx)

	logger.Info("stopped cleanly")
	return nil
}

// mailEnvironment binds tasks submitted over the admin API to in-memory mail repositories. Remote
// delivery hands mails to the local spool.
func mailEnvironment(logger *slog.Logger) *mail.Environment {
	spool := mail.NewMemoryRepository()

	return &mail.Environment{
		Repositories: map[string]mail.Repository{
			"var/mail/error": mail.NewMemoryRepository(),
		},
		Queues: map[string]mail.Queue{
			"spool": spool,
		},
		Outgoing: mail.NewMemoryRepository(),

		Deliverer: mail.DeliverFunc(func(ctx context.Context, m *mail.Mail) error {
			logger.InfoContext(ctx, "Delivering mail", "mail", m.Key, "recipients", len(m.Recipients))
			return spool.Enqueue(ctx, m)
		}),
	}
}

func openBackend(cfg config.Config, opts ...backend.BackendOption) (backend.Backend, error) {
	isolation, err := cfg.AppendIsolation()
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "memory":
		return memory.NewMemoryBackend(opts...), nil

	case "sqlite":
		return sqlite.NewSqliteBackend(cfg.SqlitePath, sqlite.WithBackendOptions(opts...)), nil

	case "mysql":
		return mysql.NewMysqlBackend(cfg.DBHost, portOr(cfg.DBPort, 3306), cfg.DBUser, cfg.DBPassword, cfg.DBName,
			mysql.WithAppendIsolation(isolation), mysql.WithBackendOptions(opts...)), nil

	case "postgres":
		return postgres.NewPostgresBackend(cfg.DBHost, portOr(cfg.DBPort, 5432), cfg.DBUser, cfg.DBPassword, cfg.DBName,
			postgres.WithAppendIsolation(isolation), postgres.WithBackendOptions(opts...)), nil

	case "redis":
		rc := redisv9.NewUniversalClient(&redisv9.UniversalOptions{
			Addrs:        []string{cfg.RedisAddr},
			Password:     cfg.RedisPassword,
			WriteTimeout: 30 * time.Second,
			ReadTimeout:  30 * time.Second,
		})

		return redis.NewRedisBackend(rc, redis.WithKeyPrefix(cfg.RedisKeyPrefix), redis.WithBackendOptions(opts...))

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func openBus(cfg config.Config, logger *slog.Logger) (eventbus.Bus, error) {
	switch cfg.Bus {
	case "local":
		return eventbus.NewLocalBus(), nil

	case "kafka":
		return kafka.NewBus(cfg.KafkaBrokers, kafka.WithTopic(cfg.KafkaTopic), kafka.WithLogger(logger)), nil

	case "postgres":
		dsn := postgres.DSN(cfg.DBHost, portOr(cfg.DBPort, 5432), cfg.DBUser, cfg.DBPassword, cfg.DBName, "")
		return postgres.NewNotificationBus(dsn, logger)

	default:
		return nil, fmt.Errorf("unknown bus %q", cfg.Bus)
	}
}

func metricsHandler(reg *prom.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func startServer(addr string, h http.Handler, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	return srv
}

func portOr(port, def int) int {
	if port == 0 {
		return def
	}

	return port
}
