package leaderboard

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════
//
// Implementations live in the infrastructure layer (Redis, Postgres, memory).
// The interfaces hide the storage technology and expose exactly the operations
// the ranking pipeline needs.

// ScoreStore is the partitioned ordered score structure behind a leaderboard:
// N independent global shards plus bounded top-K, per-country, per-region and
// per-day ordered views.
type ScoreStore interface {
	// SetScore writes a user's rating to the live rating view, the assigned
	// global shard, the bounded top-K view (trimmed to K), the current UTC
	// daily view, and - when present in opts - the country and region views.
	// The writes form one best-effort batch, not a transaction: a partial
	// failure may leave views inconsistent until the next successful write
	// for the same user.
	SetScore(ctx context.Context, mode, userID string, rating float64, opts ScopeOptions) error

	// UserRating returns the user's current live rating.
	// Returns ErrUserNotFound when the user has no rating in this mode.
	UserRating(ctx context.Context, mode, userID string) (float64, error)

	// UserRank returns the user's 1-based rank within a scope: the count of
	// entries with a strictly greater rating, plus one. Ties share a rank.
	// Returns ErrUserNotFound when the user has no rating in this mode, or
	// has never appeared in the requested scoped view.
	UserRank(ctx context.Context, mode, userID string, scope Scope) (int64, error)

	// TopK returns up to limit entries of a scope in descending score order,
	// starting at offset. An empty or unknown scope yields an empty slice.
	TopK(ctx context.Context, mode string, scope Scope, offset, limit int64) ([]Entry, error)
}

// RatingRepository is the durable home of rating rows: one row per
// (mode, user), last write wins.
type RatingRepository interface {
	// Upsert creates or replaces the rating row for (mode, userID).
	Upsert(ctx context.Context, mode, userID string, ratingValue float64) error

	// Get returns the durable rating for (mode, userID).
	// Returns ErrUserNotFound when no row exists.
	Get(ctx context.Context, mode, userID string) (float64, error)
}

// MatchResultRepository appends immutable audit rows, one per processed event.
type MatchResultRepository interface {
	Insert(ctx context.Context, record *MatchResultRecord) error
}

// IdempotencyGuard is the dedup barrier in front of event processing.
type IdempotencyGuard interface {
	// MarkIfAbsent atomically records an event id for the dedup window.
	// It returns true when the id was unseen (the caller owns processing)
	// and false when the id was already marked (the caller must skip).
	MarkIfAbsent(ctx context.Context, eventID string) (bool, error)
}
