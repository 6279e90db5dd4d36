// Package command contains the write operations of the ranking pipeline.
// Commands change system state; each handler owns one state machine.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
	"github.com/arenaboard/arenaboard/internal/domain/rating"
	"github.com/arenaboard/arenaboard/pkg/circuitbreaker"
	"github.com/arenaboard/arenaboard/pkg/logger"
	"github.com/arenaboard/arenaboard/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS MATCH RESULT
// One event in, one rating transition out. The handler is the only writer of
// rating state; everything upstream is delivery plumbing.
// ══════════════════════════════════════════════════════════════════════════════

// ErrNilDependency is returned when the processor is constructed incompletely.
var ErrNilDependency = errors.New("process_match_result: missing dependency")

// ManagerResolver hands out the leaderboard manager a match event writes to.
// An event for a country with a dedicated partition is served entirely by
// that partition; the primary holds everyone else. One user, one instance —
// the aggregator is what stitches the partitions into the global view.
type ManagerResolver interface {
	// Primary returns the manager for the central instance of a mode.
	Primary(mode string) (*leaderboard.Manager, error)

	// ForCountry returns the manager for a country's dedicated partition, or
	// nil when the country has none and the primary owns its users.
	ForCountry(mode, countryCode string) (*leaderboard.Manager, error)
}

// Result reports what processing one event did.
type Result struct {
	// Skipped is true when the event id was already claimed and nothing ran.
	Skipped bool

	// Record is the audit row of an applied event; nil when Skipped.
	Record *leaderboard.MatchResultRecord
}

// Processor applies a validated match event: claim the event id, compute the
// rating transition, fan the new ratings out to the ranking views, persist
// the durable copies, and append the audit row.
//
// The dedup marker is claimed before any write. A crash mid-apply therefore
// loses that event's updates rather than risking a double apply on redelivery;
// the next event for the same users repairs the views.
type Processor struct {
	resolver ManagerResolver
	guard    leaderboard.IdempotencyGuard
	ratings  leaderboard.RatingRepository
	results  leaderboard.MatchResultRepository
	kFactor  float64
	baseline float64
	log      *logger.Logger
	now      func() time.Time

	persistRetry   *retry.Retrier
	persistBreaker *circuitbreaker.CircuitBreaker
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	// KFactor is the Elo K factor; zero means rating.DefaultK.
	KFactor float64

	// Baseline is the rating for first-seen users; zero means rating.DefaultBase.
	Baseline float64

	// Logger is the structured logger; nil means the default logger.
	Logger *logger.Logger

	// Clock overrides time.Now (tests).
	Clock func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(
	resolver ManagerResolver,
	guard leaderboard.IdempotencyGuard,
	ratings leaderboard.RatingRepository,
	results leaderboard.MatchResultRepository,
	cfg ProcessorConfig,
) (*Processor, error) {
	if resolver == nil || guard == nil || ratings == nil || results == nil {
		return nil, ErrNilDependency
	}

	if cfg.KFactor == 0 {
		cfg.KFactor = rating.DefaultK
	}
	if cfg.Baseline == 0 {
		cfg.Baseline = rating.DefaultBase
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.Component("match_processor"))
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Processor{
		resolver:     resolver,
		guard:        guard,
		ratings:      ratings,
		results:      results,
		kFactor:      cfg.KFactor,
		baseline:     cfg.Baseline,
		log:          log,
		now:          now,
		persistRetry: retry.RecordStoreRetrier(),
		persistBreaker: circuitbreaker.RecordStoreBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	}, nil
}

// Process runs one event through the state machine. The event must already
// be validated; Process revalidates defensively and treats a failure as a
// permanent error.
func (p *Processor) Process(ctx context.Context, event *leaderboard.MatchEvent) (*Result, error) {
	if err := event.Validate(); err != nil {
		return nil, retry.Permanent(err)
	}

	// An event without an id cannot be deduplicated; it gets a fresh id for
	// the audit row and is applied unconditionally.
	eventID := event.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	} else {
		claimed, err := p.guard.MarkIfAbsent(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			p.log.Debug("duplicate event skipped", logger.EventID(eventID))
			return &Result{Skipped: true}, nil
		}
	}

	playerA, playerB := event.Players[0], event.Players[1]
	userA, userB := playerA.UserID.String(), playerB.UserID.String()

	opts := event.ScopeOptions()
	target, err := p.targetManager(event.Mode, opts.Country)
	if err != nil {
		return nil, err
	}

	oldA, err := p.currentRating(ctx, target, event.Mode, userA)
	if err != nil {
		return nil, err
	}
	oldB, err := p.currentRating(ctx, target, event.Mode, userB)
	if err != nil {
		return nil, err
	}

	newA, newB, err := rating.Compute(oldA, oldB, playerA.Score, playerB.Score, p.kFactor)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	if err := target.UpdateUserRating(ctx, userA, newA, opts); err != nil {
		return nil, err
	}
	if err := target.UpdateUserRating(ctx, userB, newB, opts); err != nil {
		return nil, err
	}

	record := &leaderboard.MatchResultRecord{
		ID:   eventID,
		Mode: event.Mode,
		Players: [2]leaderboard.PlayerOutcome{
			{UserID: userA, Score: playerA.Score, OldRating: oldA, NewRating: newA},
			{UserID: userB, Score: playerB.Score, OldRating: oldB, NewRating: newB},
		},
		Country:   opts.Country,
		Region:    opts.Region,
		CreatedAt: p.now().UTC(),
	}

	if err := p.persist(ctx, record); err != nil {
		return nil, err
	}

	p.log.Info("match result applied",
		logger.EventID(eventID),
		logger.Mode(event.Mode),
		logger.String("user_a", userA),
		logger.Float64("rating_a", newA),
		logger.String("user_b", userB),
		logger.Float64("rating_b", newB),
	)
	return &Result{Record: record}, nil
}

// targetManager picks the single instance that owns this event's users: the
// country's dedicated partition when one exists, the primary otherwise.
// Writing exactly one instance keeps each user under one identity in the
// aggregated view.
func (p *Processor) targetManager(mode, country string) (*leaderboard.Manager, error) {
	if country != "" {
		partition, err := p.resolver.ForCountry(mode, country)
		if err != nil {
			return nil, err
		}
		if partition != nil {
			return partition, nil
		}
	}
	return p.resolver.Primary(mode)
}

// currentRating reads the live rating from the event's target instance,
// falling back to the durable row (the live views may have been rebuilt or
// flushed) and finally to the baseline for first-seen users.
func (p *Processor) currentRating(ctx context.Context, mgr *leaderboard.Manager, mode, userID string) (float64, error) {
	value, err := mgr.UserRating(ctx, userID)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, leaderboard.ErrUserNotFound) {
		return 0, err
	}

	value, err = p.ratings.Get(ctx, mode, userID)
	if err == nil {
		return value, nil
	}
	if errors.Is(err, leaderboard.ErrUserNotFound) {
		return p.baseline, nil
	}
	return 0, err
}

// persist writes the durable rating rows and the audit row, with retries and
// a breaker in front of the record store.
func (p *Processor) persist(ctx context.Context, record *leaderboard.MatchResultRecord) error {
	return p.persistBreaker.Execute(ctx, func(ctx context.Context) error {
		return p.persistRetry.Do(ctx, func(ctx context.Context) error {
			for _, player := range record.Players {
				if err := p.ratings.Upsert(ctx, record.Mode, player.UserID, player.NewRating); err != nil {
					return err
				}
			}
			return p.results.Insert(ctx, record)
		})
	})
}
