// Package main is the entry point of the Arenaboard ranking worker.
//
// The worker owns the whole write path of the ranking system:
//   - consume match result events from the durable queue
//   - run the rating engine and apply score updates to every live view
//   - persist ratings and the match audit trail to Postgres
//   - periodically merge per-country partitions into the global aggregate
//
// Read paths (top-K pages, single-user ranks) are served by the application
// query handlers over the same stores.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/arenaboard/arenaboard/config"
	"github.com/arenaboard/arenaboard/internal/application/aggregator"
	"github.com/arenaboard/arenaboard/internal/application/command"
	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
	"github.com/arenaboard/arenaboard/internal/infrastructure/ingest"
	"github.com/arenaboard/arenaboard/internal/infrastructure/metrics"
	"github.com/arenaboard/arenaboard/internal/infrastructure/persistence/memory"
	"github.com/arenaboard/arenaboard/internal/infrastructure/persistence/postgres"
	"github.com/arenaboard/arenaboard/internal/infrastructure/persistence/redis"
	"github.com/arenaboard/arenaboard/internal/infrastructure/scheduler"
	"github.com/arenaboard/arenaboard/internal/infrastructure/scheduler/jobs"
	"github.com/arenaboard/arenaboard/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})
	log.Info("starting arenaboard worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Any("modes", cfg.Engine.Modes),
	)

	m := metricsOrNil(cfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE (Redis primary + country partitions, or memory fallback)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		primary       leaderboard.ScoreStore
		countryStores = map[string]leaderboard.ScoreStore{}
		guard         leaderboard.IdempotencyGuard
		queueFor      func(consumer string) (leaderboard.EventQueue, error)
		partitions    *redis.CountryPartitions
		combiner      *redis.Aggregate
		primaryClient *redis.Client
	)

	if cfg.Redis.Disabled {
		log.Warn("redis disabled, using in-memory storage (single process, no durability)")

		memStore, err := memory.NewScoreStore(memory.Config{
			NumShards: cfg.Engine.NumShards,
			TopK:      cfg.Engine.TopK,
			DailyTTL:  cfg.Engine.DailyTTL,
		})
		if err != nil {
			return fmt.Errorf("failed to create memory store: %w", err)
		}
		primary = memStore
		guard = memory.NewIdempotencyGuard(cfg.Queue.IdempotencyTTL)

		memQueue := memory.NewQueue(cfg.Queue.Block)
		queueFor = func(string) (leaderboard.EventQueue, error) { return memQueue, nil }
	} else {
		log.Info("connecting to redis...", logger.String("addr", redisAddr(cfg)))

		redisCfg := redis.DefaultConfig()
		redisCfg.URL = cfg.Redis.URL
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		primaryClient, err = redis.NewClient(redisCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer primaryClient.Close()
		log.Info("redis connection established")

		storeCfg := redis.DefaultScoreStoreConfig()
		storeCfg.NumShards = cfg.Engine.NumShards
		storeCfg.TopK = cfg.Engine.TopK
		storeCfg.DailyTTL = cfg.Engine.DailyTTL
		storeCfg.UseAggregate = cfg.Aggregator.Enabled

		primary, err = redis.NewShardedScoreStore(primaryClient, storeCfg)
		if err != nil {
			return fmt.Errorf("failed to create score store: %w", err)
		}

		guard = redis.NewIdempotencyGuard(primaryClient, cfg.Queue.IdempotencyTTL)
		combiner = redis.NewAggregate(primaryClient)

		// Country partitions are dialed lazily; only build stores for the
		// ones we can reach now, and let the rest surface on first write.
		partitions = redis.NewCountryPartitions(cfg.Redis.CountryShards)
		defer partitions.Close()

		partitionCfg := storeCfg
		partitionCfg.UseAggregate = false
		for _, cc := range partitions.Countries() {
			client, err := partitions.ForCountry(cc)
			if err != nil {
				log.Warn("country partition unreachable, skipping",
					logger.String("country", cc), logger.Err(err))
				continue
			}
			store, err := redis.NewShardedScoreStore(client, partitionCfg)
			if err != nil {
				return fmt.Errorf("failed to create %s partition store: %w", cc, err)
			}
			countryStores[cc] = store
		}
		if len(countryStores) > 0 {
			log.Info("country partitions online", logger.Int("count", len(countryStores)))
		}

		queueFor = func(consumer string) (leaderboard.EventQueue, error) {
			queueCfg := redis.StreamQueueConfig{
				Stream:           cfg.Queue.Stream,
				DeadLetterStream: cfg.Queue.DeadLetterStream,
				Group:            cfg.Queue.Group,
				Consumer:         consumer,
				Block:            cfg.Queue.Block,
				MaxLen:           cfg.Queue.MaxLen,
			}
			return redis.NewStreamQueue(ctx, primaryClient, queueCfg)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. POSTGRES (system of record)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		ratings leaderboard.RatingRepository
		results leaderboard.MatchResultRepository
	)

	if cfg.Database.URL != "" {
		log.Info("connecting to database...")
		dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbConn.Close()

		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")

		ratings = postgres.NewRatingRepository(dbConn)
		results = postgres.NewMatchResultRepository(dbConn)
	} else {
		log.Warn("DATABASE_URL not set, ratings will not be persisted")
		ratings = memory.NewRatingRepository()
		results = memory.NewMatchResultRepository()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT PROCESSOR
	// ─────────────────────────────────────────────────────────────────────────
	resolver, err := command.NewStoreResolver(primary, countryStores)
	if err != nil {
		return fmt.Errorf("failed to create store resolver: %w", err)
	}

	processor, err := command.NewProcessor(resolver, guard, ratings, results, command.ProcessorConfig{
		KFactor:  cfg.Engine.KFactor,
		Baseline: cfg.Engine.BaseRating,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. INGEST WORKERS
	// ─────────────────────────────────────────────────────────────────────────
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Queue.Workers; i++ {
		consumer := cfg.Queue.Consumer
		if cfg.Queue.Workers > 1 {
			consumer = fmt.Sprintf("%s-%d", cfg.Queue.Consumer, i)
		}

		queue, err := queueFor(consumer)
		if err != nil {
			return fmt.Errorf("failed to create event queue: %w", err)
		}

		worker, err := ingest.NewWorker(queue, processor, ingest.Config{
			BatchSize:  cfg.Queue.BatchSize,
			MaxRetries: cfg.Queue.MaxRetries,
			Logger:     log.With(logger.String("consumer", consumer)),
			Metrics:    m,
		})
		if err != nil {
			return fmt.Errorf("failed to create ingest worker: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
				log.Error("ingest worker stopped", logger.Err(err))
			}
		}()
	}
	log.Info("ingest workers started", logger.Int("count", cfg.Queue.Workers))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULED JOBS (aggregation, snapshots)
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if !cfg.Redis.Disabled && (cfg.Aggregator.Enabled || cfg.Snapshot.Enabled) {
		sched = scheduler.New(scheduler.Config{Logger: slog.Default()})

		if cfg.Aggregator.Enabled {
			sources := buildPartitions(primaryClient, partitions, countryStores)

			agg, err := aggregator.New(combiner, sources, aggregator.Config{
				Modes:    cfg.Engine.Modes,
				TopK:     cfg.Aggregator.TopK,
				Interval: cfg.Aggregator.Interval,
				Logger:   log,
				Metrics:  m,
			})
			if err != nil {
				return fmt.Errorf("failed to create aggregator: %w", err)
			}
			if err := sched.Register(
				jobs.NewAggregateLeaderboards(agg),
				scheduler.NewIntervalSchedule(cfg.Aggregator.Interval),
			); err != nil {
				return fmt.Errorf("failed to register aggregation job: %w", err)
			}
			log.Info("aggregation scheduled",
				logger.Duration("interval", cfg.Aggregator.Interval),
				logger.Int("partitions", len(sources)),
			)
		}

		if cfg.Snapshot.Enabled {
			snapshots := redis.NewSnapshots(primaryClient, cfg.Snapshot.Retention)
			if err := sched.Register(
				jobs.NewSnapshotLeaderboards(snapshots, cfg.Engine.Modes, cfg.Snapshot.TopK),
				scheduler.NewIntervalSchedule(cfg.Snapshot.Interval),
			); err != nil {
				return fmt.Errorf("failed to register snapshot job: %w", err)
			}
			log.Info("top-K snapshots scheduled",
				logger.Duration("interval", cfg.Snapshot.Interval),
			)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. METRICS ENDPOINT
	// ─────────────────────────────────────────────────────────────────────────
	var metricsSrv *http.Server
	if m != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Observability.MetricsPort),
			Handler: mux,
		}
		go func() {
			log.Info("metrics endpoint listening", logger.Int("port", cfg.Observability.MetricsPort))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", logger.Err(err))
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("arenaboard worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Warn("scheduler stop failed", logger.Err(err))
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown failed", logger.Err(err))
		}
	}

	// Stop the ingest loops; in-flight events finish before Run returns.
	stopWorkers()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("shutdown timeout exceeded, abandoning in-flight workers")
	}

	log.Info("shutdown completed")
	return nil
}

// metricsOrNil returns instrumentation when enabled; all metric methods are
// nil-safe so a nil here disables recording everywhere.
func metricsOrNil(cfg *config.Config) *metrics.Metrics {
	if !cfg.Observability.MetricsEnabled {
		return nil
	}
	return metrics.New()
}

func redisAddr(cfg *config.Config) string {
	if cfg.Redis.URL != "" {
		return cfg.Redis.URL
	}
	return fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
}

// clientPartition adapts one Redis instance to an aggregation source.
type clientPartition struct {
	name   string
	client *redis.Client
}

func (p clientPartition) Name() string { return p.name }

func (p clientPartition) Top(ctx context.Context, mode string, limit int64) ([]leaderboard.Entry, error) {
	return redis.TopOfPartition(ctx, p.client, mode, limit)
}

// syncedPartition is a country partition that also holds a copy of the
// merged view; the aggregator pushes it back after every run.
type syncedPartition struct {
	clientPartition
}

func (p syncedPartition) ReplaceMerged(ctx context.Context, mode string, entries []leaderboard.Entry) error {
	return redis.ReplaceAggregate(ctx, p.client, mode, entries)
}

// buildPartitions lists the aggregation sources: the primary instance plus
// every reachable country partition. The aggregate view itself lives on the
// primary, so only country partitions receive the fan-out copy.
func buildPartitions(primary *redis.Client, registry *redis.CountryPartitions, online map[string]leaderboard.ScoreStore) []aggregator.Partition {
	sources := []aggregator.Partition{clientPartition{name: "primary", client: primary}}
	for _, cc := range registry.Countries() {
		if _, ok := online[cc]; !ok {
			continue
		}
		client, err := registry.ForCountry(cc)
		if err != nil {
			continue
		}
		sources = append(sources, syncedPartition{clientPartition{name: cc, client: client}})
	}
	return sources
}
