// Package aggregator periodically merges per-partition leaderboard slices
// into one global top-K view. Partitions are independent Redis instances;
// one slow or dead partition degrades the merged view instead of blocking it.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
	"github.com/arenaboard/arenaboard/internal/infrastructure/metrics"
	"github.com/arenaboard/arenaboard/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("aggregator: run already in progress")

// Partition is one source of locally ranked entries, typically the top-K view
// of a per-country Redis instance.
type Partition interface {
	// Name identifies the partition in staging keys and logs.
	Name() string

	// Top returns the partition's best limit entries in descending order.
	Top(ctx context.Context, mode string, limit int64) ([]leaderboard.Entry, error)
}

// Combiner stages partition slices and merges them into the aggregate view.
// redis.Aggregate implements it.
type Combiner interface {
	Stage(ctx context.Context, mode, partition string, runStamp int64, entries []leaderboard.Entry) (string, error)
	Merge(ctx context.Context, mode string, stagedKeys []string, topK int64) error

	// Merged reads the current merged view in the raw form fanned back out
	// to partitions.
	Merged(ctx context.Context, mode string, limit int64) ([]leaderboard.Entry, error)
}

// Sink is an optional Partition capability. Partitions that implement it
// receive a copy of the merged view after each run, so every instance serves
// the same global board.
type Sink interface {
	ReplaceMerged(ctx context.Context, mode string, entries []leaderboard.Entry) error
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the aggregator parameters.
type Config struct {
	// Modes are the game modes to aggregate each run.
	Modes []string

	// TopK is how many entries each partition contributes and how large the
	// merged view is kept.
	TopK int64

	// Interval is the period between runs when driven by Run.
	Interval time.Duration

	// Logger is the structured logger; nil means the default logger.
	Logger *logger.Logger

	// Metrics is optional instrumentation.
	Metrics *metrics.Metrics

	// Clock overrides time.Now (tests).
	Clock func() time.Time
}

// DefaultConfig returns the default aggregation parameters.
func DefaultConfig() Config {
	return Config{
		TopK:     100,
		Interval: time.Minute,
	}
}

// Aggregator drives the periodic cross-partition merge. Runs never overlap:
// a tick landing while a run is active is skipped.
type Aggregator struct {
	combiner   Combiner
	partitions []Partition
	config     Config
	log        *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	running    atomic.Bool
}

// New creates an Aggregator.
func New(combiner Combiner, partitions []Partition, cfg Config) (*Aggregator, error) {
	if combiner == nil {
		return nil, errors.New("aggregator: combiner is required")
	}
	if len(cfg.Modes) == 0 {
		return nil, errors.New("aggregator: at least one mode is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Aggregator{
		combiner:   combiner,
		partitions: partitions,
		config:     cfg,
		log:        log.With(logger.Component("aggregator")),
		metrics:    cfg.Metrics,
		now:        now,
	}, nil
}

// Run aggregates on the configured interval until ctx is cancelled. The first
// run happens after one interval, not immediately.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				a.log.Error("aggregation run failed", logger.Err(err))
			}
		}
	}
}

// RunOnce performs one aggregation pass over every configured mode. Partition
// failures are tolerated: the merged view is built from the partitions that
// answered. Returns ErrRunInProgress when a previous run is still active.
func (a *Aggregator) RunOnce(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer a.running.Store(false)

	started := a.now()
	runStamp := started.UnixMilli()

	var firstErr error
	partial := false
	for _, mode := range a.config.Modes {
		modePartial, err := a.aggregateMode(ctx, mode, runStamp)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		partial = partial || modePartial
	}

	elapsed := a.now().Sub(started)
	switch {
	case firstErr != nil:
		a.metrics.AggregatorRun("error", elapsed)
	case partial:
		a.metrics.AggregatorRun("partial", elapsed)
	default:
		a.metrics.AggregatorRun("ok", elapsed)
	}

	a.log.Info("aggregation run finished",
		logger.Duration("elapsed", elapsed),
		logger.Bool("partial", partial),
	)
	return firstErr
}

// aggregateMode stages every reachable partition and merges. Reports whether
// any partition was skipped.
func (a *Aggregator) aggregateMode(ctx context.Context, mode string, runStamp int64) (partial bool, err error) {
	staged := make([]string, 0, len(a.partitions))

	for _, partition := range a.partitions {
		entries, err := partition.Top(ctx, mode, a.config.TopK)
		if err != nil {
			a.log.Warn("partition unavailable, skipping",
				logger.Mode(mode),
				logger.String("partition", partition.Name()),
				logger.Err(err),
			)
			partial = true
			continue
		}
		key, err := a.combiner.Stage(ctx, mode, partition.Name(), runStamp, entries)
		if err != nil {
			return partial, fmt.Errorf("aggregator: stage %s/%s: %w", mode, partition.Name(), err)
		}
		staged = append(staged, key)
	}

	if len(staged) == 0 {
		// Every partition failed; keep the previous merged view.
		return partial, nil
	}
	if err := a.combiner.Merge(ctx, mode, staged, a.config.TopK); err != nil {
		return partial, fmt.Errorf("aggregator: merge %s: %w", mode, err)
	}

	return a.fanOut(ctx, mode, partial)
}

// fanOut pushes the merged view back to every partition that can hold a
// copy. A partition that fails here degrades the run the same way a failed
// read does.
func (a *Aggregator) fanOut(ctx context.Context, mode string, partial bool) (bool, error) {
	hasSink := false
	for _, partition := range a.partitions {
		if _, ok := partition.(Sink); ok {
			hasSink = true
			break
		}
	}
	if !hasSink {
		return partial, nil
	}

	merged, err := a.combiner.Merged(ctx, mode, a.config.TopK)
	if err != nil {
		return partial, fmt.Errorf("aggregator: read merged %s: %w", mode, err)
	}
	for _, partition := range a.partitions {
		sink, ok := partition.(Sink)
		if !ok {
			continue
		}
		if err := sink.ReplaceMerged(ctx, mode, merged); err != nil {
			a.log.Warn("fan-out to partition failed",
				logger.Mode(mode),
				logger.String("partition", partition.Name()),
				logger.Err(err),
			)
			partial = true
		}
	}
	return partial, nil
}
