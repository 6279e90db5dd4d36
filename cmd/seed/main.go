// Package main is a development seeding tool. It publishes synthetic match
// result events onto the ingest stream so a local worker has traffic to chew
// on, or applies them synchronously against an in-memory pipeline when run
// with -direct.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/arenaboard/arenaboard/config"
	"github.com/arenaboard/arenaboard/internal/application/command"
	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
	"github.com/arenaboard/arenaboard/internal/infrastructure/persistence/memory"
	"github.com/arenaboard/arenaboard/internal/infrastructure/persistence/redis"
	"github.com/arenaboard/arenaboard/pkg/logger"
)

var countries = []string{"KZ", "US", "DE", "BR", "JP", "IN"}

func main() {
	var (
		count   = flag.Int("count", 100, "number of match events to generate")
		players = flag.Int("players", 50, "size of the synthetic player pool")
		mode    = flag.String("mode", "ranked", "game mode to seed")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		direct  = flag.Bool("direct", false, "apply events in process instead of publishing to the stream")
	)
	flag.Parse()

	if err := run(context.Background(), *count, *players, *mode, *seed, *direct); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, count, players int, mode string, seed int64, direct bool) error {
	log := logger.Default()
	rng := rand.New(rand.NewSource(seed))

	if direct {
		return seedDirect(ctx, log, rng, count, players, mode)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Redis.Disabled {
		return fmt.Errorf("REDIS_DISABLED is set; use -direct for a redis-free run")
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.URL = cfg.Redis.URL
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB

	client, err := redis.NewClient(redisCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer client.Close()

	queue, err := redis.NewStreamQueue(ctx, client, redis.StreamQueueConfig{
		Stream:           cfg.Queue.Stream,
		DeadLetterStream: cfg.Queue.DeadLetterStream,
		Group:            cfg.Queue.Group,
		Consumer:         "seed",
		Block:            cfg.Queue.Block,
		MaxLen:           cfg.Queue.MaxLen,
	})
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}

	for i := 0; i < count; i++ {
		event := randomEvent(rng, players, mode)
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		if _, err := queue.Publish(ctx, leaderboard.EventTypeMatchResult, payload, 0); err != nil {
			return fmt.Errorf("failed to publish event %d: %w", i, err)
		}
	}

	log.Info("seeded event stream",
		logger.Int("events", count),
		logger.String("stream", cfg.Queue.Stream),
		logger.String("mode", mode),
	)
	return nil
}

// seedDirect runs the events through an in-memory pipeline and prints the
// resulting top 10, useful for eyeballing the rating engine.
func seedDirect(ctx context.Context, log *logger.Logger, rng *rand.Rand, count, players int, mode string) error {
	store, err := memory.NewScoreStore(memory.DefaultConfig())
	if err != nil {
		return err
	}
	resolver, err := command.NewStoreResolver(store, nil)
	if err != nil {
		return err
	}
	processor, err := command.NewProcessor(
		resolver,
		memory.NewIdempotencyGuard(time.Hour),
		memory.NewRatingRepository(),
		memory.NewMatchResultRepository(),
		command.ProcessorConfig{Logger: log},
	)
	if err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		event := randomEvent(rng, players, mode)
		if _, err := processor.Process(ctx, event); err != nil {
			return fmt.Errorf("failed to process event %d: %w", i, err)
		}
	}

	mgr, err := resolver.Primary(mode)
	if err != nil {
		return err
	}
	top, err := mgr.TopK(ctx, leaderboard.TopQuery{Limit: 10})
	if err != nil {
		return err
	}
	fmt.Printf("top %d after %d matches:\n", len(top), count)
	for i, entry := range top {
		fmt.Printf("%3d. %-12s %7.1f\n", i+1, entry.UserID, entry.Score)
	}
	return nil
}

// randomEvent pairs two distinct players from the pool. Roughly one event in
// five is submitted without an id, matching producers that cannot supply one.
func randomEvent(rng *rand.Rand, players int, mode string) *leaderboard.MatchEvent {
	a := rng.Intn(players)
	b := rng.Intn(players - 1)
	if b >= a {
		b++
	}

	event := &leaderboard.MatchEvent{
		Mode: mode,
		Players: []leaderboard.PlayerScore{
			{UserID: leaderboard.FlexibleID(fmt.Sprintf("player-%03d", a)), Score: float64(rng.Intn(100))},
			{UserID: leaderboard.FlexibleID(fmt.Sprintf("player-%03d", b)), Score: float64(rng.Intn(100))},
		},
		CountryCode: countries[rng.Intn(len(countries))],
	}
	if rng.Intn(5) != 0 {
		event.EventID = uuid.NewString()
	}
	return event
}
