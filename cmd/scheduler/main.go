// Command scheduler is the operational entrypoint for every worker role:
// producer, consumer, or cleaner (drainer + rescheduler), selected by the
// SCHEDULER_FLOW environment variable per SPEC_FULL.md §6.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/orbitalpay/scheduler/internal/config"
	"github.com/orbitalpay/scheduler/internal/consumer"
	"github.com/orbitalpay/scheduler/internal/drainer"
	"github.com/orbitalpay/scheduler/internal/health"
	"github.com/orbitalpay/scheduler/internal/logging"
	"github.com/orbitalpay/scheduler/internal/metrics"
	"github.com/orbitalpay/scheduler/internal/producer"
	"github.com/orbitalpay/scheduler/internal/rescheduler"
	"github.com/orbitalpay/scheduler/internal/retry"
	"github.com/orbitalpay/scheduler/internal/shutdown"
	"github.com/orbitalpay/scheduler/internal/store/postgres"
	"github.com/orbitalpay/scheduler/internal/store/redisstore"
	"github.com/orbitalpay/scheduler/internal/tenant"
	"github.com/orbitalpay/scheduler/internal/workflow"

	"github.com/redis/go-redis/v9"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "scheduler",
		Short: "Durable background task scheduler",
		RunE:  runRoot,
	}
	root.PersistentFlags().StringVar(&configPath, "config-path", "", "path to a YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	flow := os.Getenv("SCHEDULER_FLOW")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("scheduler", logging.Config{JSON: cfg.LogJSON})

	switch flow {
	case "Producer":
		return runWithRegistry(cfg, log, func(ctx context.Context, registry *tenant.Registry, m *metrics.Metrics) error {
			p := producer.New(registry, producerConfig(cfg), m, log)
			return p.Run(ctx)
		})
	case "Consumer":
		return runWithRegistry(cfg, log, func(ctx context.Context, registry *tenant.Registry, m *metrics.Metrics) error {
			handlers := workflow.NewRegistry()
			c := consumer.New(registry, handlers, consumerConfig(cfg), retry.DefaultPolicy, m, log)
			return c.Run(ctx)
		})
	case "Cleaner":
		return runWithRegistry(cfg, log, func(ctx context.Context, registry *tenant.Registry, m *metrics.Metrics) error {
			// A single shared applier suffices: every tenant's repository
			// is backed by the same primary-store connection in this
			// deployment shape.
			repo, ok := registry.Sessions()[0].Repo.(*postgres.Repository)
			if !ok {
				return fmt.Errorf("cleaner flow requires a postgres-backed repository")
			}
			applier := postgres.NewApplier(repo.DB())

			d := drainer.New(registry, applier, drainerConfig(cfg), retry.DefaultEntryRetryPolicy, m, log)
			r := rescheduler.New(registry, rescheduler.Config{Interval: cfg.Rescheduler.Interval, TTL: cfg.Rescheduler.TTL}, log)

			var wg sync.WaitGroup
			var dErr, rErr error
			wg.Add(2)
			go func() { defer wg.Done(); dErr = d.Run(ctx) }()
			go func() { defer wg.Done(); rErr = r.Run(ctx) }()
			wg.Wait()

			if dErr != nil {
				return dErr
			}
			return rErr
		})
	default:
		fmt.Fprintf(os.Stderr, "SCHEDULER_FLOW must be one of Producer, Consumer, Cleaner (got %q)\n", flow)
		os.Exit(1)
		return nil
	}
}

// runWithRegistry builds the tenant registry, health server, and shutdown
// source shared by every role, then hands control to fn.
func runWithRegistry(cfg *config.Config, log *logging.Logger, fn func(ctx context.Context, registry *tenant.Registry, m *metrics.Metrics) error) error {
	src := shutdown.NewSource(context.Background())
	defer src.Stop()

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		log.Error("failed to open primary store", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	store := redisstore.New(redisClient, cfg.Redis.Prefix)
	if err := store.LoadScripts(src.Context()); err != nil {
		log.Error("failed to load lua scripts", "error", err)
		os.Exit(1)
	}

	registry := tenant.NewRegistry()
	registry.Register(&tenant.Session{
		Tenant: "default",
		Repo:   postgres.NewRepository(db),
		Fast:   store,
		Log:    log,
	})

	m := metrics.New(prometheus.DefaultRegisterer)

	healthServer := health.New(registry, src, cfg.HealthAddr, log)
	go func() { _ = healthServer.Run(src.Context()) }()

	if err := fn(src.Context(), registry, m); err != nil {
		log.Error("worker exited with error", "error", err)
		os.Exit(2)
	}
	return nil
}

func producerConfig(cfg *config.Config) producer.Config {
	return producer.Config{
		TickInterval:    cfg.Producer.TickInterval,
		UpperFetchLimit: cfg.Producer.UpperFetchLimit,
		LowerFetchLimit: cfg.Producer.LowerFetchLimit,
		BatchSize:       cfg.Producer.BatchSize,
		LockKey:         cfg.Producer.LockKey,
		LockTTL:         cfg.Producer.LockTTL,
		HighWatermark:   cfg.Producer.HighWatermark,
		PartitionWidth:  cfg.Producer.PartitionWidth,
		Flow:            cfg.Producer.Flow,
	}
}

func consumerConfig(cfg *config.Config) consumer.Config {
	return consumer.Config{
		ConsumerGroup:     cfg.Consumer.ConsumerGroup,
		Disabled:          cfg.Consumer.Disabled,
		Flow:              cfg.Producer.Flow,
		PartitionWidth:    cfg.Producer.PartitionWidth,
		PartitionLookback: cfg.Consumer.PartitionLookback,
		BlockTimeout:      cfg.Consumer.BlockTimeout,
		MaxRead:           cfg.Consumer.MaxRead,
		ReclaimerInterval: cfg.Consumer.ReclaimerInterval,
		IdleTimeout:       cfg.Consumer.IdleTimeout,
		Concurrency:       cfg.Consumer.Concurrency,
		GracePeriod:       cfg.GracefulShutdownInterval,
	}
}

func drainerConfig(cfg *config.Config) drainer.Config {
	return drainer.Config{
		StreamCount:     cfg.Drainer.StreamCount,
		NumPartitions:   cfg.Drainer.NumPartitions,
		MaxReadCount:    cfg.Drainer.MaxReadCount,
		ShutdownGrace:   cfg.Drainer.ShutdownGrace,
		LoopInterval:    cfg.Drainer.LoopInterval,
		MinLoopInterval: cfg.Drainer.MinLoopInterval,
		MaxLoopInterval: cfg.Drainer.MaxLoopInterval,
		LockTTL:         cfg.Drainer.LockTTL,
		EntryRetries:    cfg.Drainer.EntryRetries,
	}
}
