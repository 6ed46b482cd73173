// Command queue launches the analytics message queue and job scheduler as
// a standalone process: config in, batched deliveries out, until a signal
// asks it to drain and stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revflow-dev/queue/internal/delivery"
	"github.com/revflow-dev/queue/internal/domain/messagestore"
	"github.com/revflow-dev/queue/internal/hostprefs"
	"github.com/revflow-dev/queue/internal/infra/config"
	"github.com/revflow-dev/queue/internal/infra/persistence"
	"github.com/revflow-dev/queue/internal/infra/persistence/memory"
	"github.com/revflow-dev/queue/internal/infra/persistence/sqlite"
	"github.com/revflow-dev/queue/internal/infra/telemetry"
	"github.com/revflow-dev/queue/internal/jobscheduler"
	"github.com/revflow-dev/queue/internal/jobscheduler/persister"
	"github.com/revflow-dev/queue/internal/observability"
	"github.com/revflow-dev/queue/internal/queue"
)

const (
	defaultConfigPath        = "config/queue.yaml"
	queueLoggerPrefix        = "queue "
	shutdownTimeout          = 30 * time.Second
	queueShutdownTimeout     = 5 * time.Second
	schedulerShutdownTimeout = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPathFlag := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := observability.NewStdLogger(os.Stdout, queueLoggerPrefix)
	observability.SetLogger(logger)

	cfg, err := config.Load(resolveConfigPath(cfgPathFlag))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.OptOut {
		logger.Info("optOut is set, exiting without starting the queue")
		return
	}
	logger.Info("configuration loaded", observability.Field{Key: "queue_name", Value: cfg.QueueName}, observability.Field{Key: "storage_backend", Value: string(cfg.Storage.Backend)}, observability.Field{Key: "persister_backend", Value: string(cfg.Persister.Backend)})

	telemetryShutdown, err := initTelemetry(ctx, logger, cfg.Telemetry)
	if err != nil {
		log.Fatalf("initialize telemetry: %v", err)
	}

	store, err := buildMessageStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("initialise message storage: %v", err)
	}

	pgPool, jobPersister, err := buildJobPersister(ctx, cfg)
	if err != nil {
		log.Fatalf("initialise job persister: %v", err)
	}

	anonymousID := resolveAnonymousID(hostprefs.NewMemory())
	logger.Info("anonymous id resolved", observability.Field{Key: "anonymous_id", Value: anonymousID})

	sched := jobscheduler.New(cfg.QueueName,
		jobscheduler.WithPersister(jobPersister),
		jobscheduler.WithLogger(logger),
	)

	deliveryCfg := delivery.Config{ServerURL: cfg.ServerURL, APIKey: cfg.APIKey}
	if err := sched.Restore(ctx, delivery.NewRunnerFactory(deliveryCfg, nil, nil, nil)); err != nil {
		log.Fatalf("restore persisted jobs: %v", err)
	}

	consumer := delivery.New(sched, deliveryCfg, nil, nil, nil)

	q := queue.New(store, consumer, queue.Options{
		BatchingWindow: resolveBatchingWindow(cfg),
	}, logger)
	q.StartRunloop(ctx)

	logger.Info("queue started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		queue:              q,
		scheduler:          sched,
		pgPool:             pgPool,
		telemetry:          telemetryShutdown,
		flushEventsOnClose: cfg.FlushEventsOnClose,
	})
	logger.Info("shutdown completed", observability.Field{Key: "duration", Value: time.Since(shutdownStart)})
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to queue configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return defaultConfigPath
}

// resolveAnonymousID reads the persisted anonymous id from store, minting
// and saving one on first run. A standalone process has no durable host
// preferences store of its own; an embedding SDK would inject a
// platform-backed hostprefs.Store here instead of hostprefs.NewMemory.
func resolveAnonymousID(store hostprefs.Store) string {
	if id, ok := store.Get(hostprefs.KeyAnonymousID); ok {
		return id
	}
	id := uuid.NewString()
	store.Set(hostprefs.KeyAnonymousID, id)
	return id
}

func resolveBatchingWindow(cfg config.Config) queue.BatchingWindow {
	if !cfg.BatchingEnabled() {
		return queue.BatchingWindow{}
	}
	return queue.BatchingWindow{
		TimeWindow: cfg.FlushIntervalDuration(),
		MaxCount:   cfg.FlushQueueSize,
	}
}

func initTelemetry(ctx context.Context, logger observability.Logger, cfg config.TelemetryConfig) (telemetry.Shutdown, error) {
	_, shutdown, err := telemetry.Init(ctx, telemetry.Config{
		OTLPEndpoint: cfg.OTLPEndpoint,
		ServiceName:  cfg.ServiceName,
	})
	if err != nil {
		return nil, err
	}
	if cfg.OTLPEndpoint != "" {
		logger.Info("telemetry initialized", observability.Field{Key: "endpoint", Value: cfg.OTLPEndpoint})
	} else {
		logger.Info("telemetry disabled, no otlpEndpoint configured")
	}
	return shutdown, nil
}

func buildMessageStore(ctx context.Context, cfg config.Config, logger observability.Logger) (messagestore.Store, error) {
	if cfg.Storage.Backend == config.StorageMemory {
		return memory.New(), nil
	}

	dir := cfg.Storage.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	path := dir + string(os.PathSeparator) + cfg.QueueName + ".db"
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		logger.Error("sqlite storage unavailable, falling back to memory", observability.Field{Key: "error", Value: err})
		return memory.New(), nil
	}
	return store, nil
}

func buildJobPersister(ctx context.Context, cfg config.Config) (*pgxpool.Pool, persister.Persister, error) {
	if cfg.Persister.Backend == config.PersisterMemory {
		return nil, persister.NewMemory(), nil
	}

	pool, err := pgxpool.New(ctx, cfg.Persister.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	store := persistence.NewStore(pool)
	return pool, persister.NewPostgres(store.Pool()), nil
}

type gracefulShutdownConfig struct {
	queue              *queue.MessageQueue
	scheduler          *jobscheduler.Scheduler
	pgPool             *pgxpool.Pool
	telemetry          telemetry.Shutdown
	flushEventsOnClose bool
}

func performGracefulShutdown(ctx context.Context, logger observability.Logger, cfg gracefulShutdownConfig) {
	var stepErrs []error
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Info("shutdown step starting", observability.Field{Key: "step", Value: name})
		if err := fn(stepCtx); err != nil {
			stepErrs = append(stepErrs, fmt.Errorf("%s: %w", name, err))
			return
		}
		logger.Info("shutdown step completed", observability.Field{Key: "step", Value: name})
	}

	if cfg.queue != nil {
		shutdownStep("stopping queue", queueShutdownTimeout, func(stepCtx context.Context) error {
			cfg.queue.Stop()
			if cfg.flushEventsOnClose {
				return cfg.queue.Drain(stepCtx)
			}
			return nil
		})
	}

	if cfg.scheduler != nil {
		shutdownStep("shutting down job scheduler", schedulerShutdownTimeout, cfg.scheduler.Shutdown)
	}

	if cfg.pgPool != nil {
		shutdownStep("closing postgres pool", queueShutdownTimeout, func(context.Context) error {
			cfg.pgPool.Close()
			return nil
		})
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, cfg.telemetry)
	}

	if err := observability.AggregateErrors("graceful shutdown", stepErrs); err != nil {
		logger.Error("shutdown finished with errors", observability.Field{Key: "error", Value: err})
	}
}
