package leaderboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/arenaboard/arenaboard/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD MANAGER
// ══════════════════════════════════════════════════════════════════════════════

// DefaultMaxPageLimit caps the number of entries a single TopK call returns.
const DefaultMaxPageLimit = 1000

// RankQuery selects the scope of a rank lookup. Region wins over Country,
// Country over Day; all empty means global.
type RankQuery struct {
	Country string
	Region  string
	Day     string // YYYYMMDD; the current UTC day is timeutil.TodayKey()
}

// TopQuery selects the scope and page of a top-K read.
type TopQuery struct {
	Country string
	Region  string
	Day     string
	Offset  int64
	Limit   int64
}

// Manager binds one game mode to a ScoreStore and owns scope dispatch, rank
// computation and pagination. A Manager may target an alternate store for
// per-country physical isolation; construct one Manager per (mode, store).
//
// Repeating an identical (userID, rating) write is naturally idempotent.
// No ordering is enforced between concurrent updates for the same user:
// last write wins.
type Manager struct {
	mode     string
	store    ScoreStore
	maxLimit int64
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxPageLimit overrides the maximum TopK page size.
func WithMaxPageLimit(n int64) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxLimit = n
		}
	}
}

// WithClock overrides the time source used to resolve the current daily scope.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager for a mode over the given store.
func NewManager(mode string, store ScoreStore, opts ...ManagerOption) (*Manager, error) {
	if mode == "" {
		return nil, ErrEmptyMode
	}
	if store == nil {
		return nil, fmt.Errorf("leaderboard: manager requires a score store")
	}
	m := &Manager{
		mode:     mode,
		store:    store,
		maxLimit: DefaultMaxPageLimit,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Mode returns the mode this manager serves.
func (m *Manager) Mode() string {
	return m.mode
}

// UpdateUserRating writes a user's new rating across all views of the mode.
func (m *Manager) UpdateUserRating(ctx context.Context, userID string, ratingValue float64, opts ScopeOptions) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if math.IsNaN(ratingValue) || math.IsInf(ratingValue, 0) {
		return fmt.Errorf("leaderboard: rating must be finite")
	}
	return m.store.SetScore(ctx, m.mode, userID, ratingValue, opts)
}

// UserRating returns the user's current live rating.
func (m *Manager) UserRating(ctx context.Context, userID string) (float64, error) {
	if userID == "" {
		return 0, ErrEmptyUserID
	}
	return m.store.UserRating(ctx, m.mode, userID)
}

// UserRank resolves the query scope and returns the user's rank and rounded
// score. Returns ErrUserNotFound for a user with no rating in this mode.
func (m *Manager) UserRank(ctx context.Context, userID string, q RankQuery) (RankResult, error) {
	if userID == "" {
		return RankResult{}, ErrEmptyUserID
	}

	ratingValue, err := m.store.UserRating(ctx, m.mode, userID)
	if err != nil {
		return RankResult{}, err
	}

	rank, err := m.store.UserRank(ctx, m.mode, userID, m.rankScope(q))
	if err != nil {
		return RankResult{}, err
	}

	return RankResult{
		UserID: userID,
		Rank:   rank,
		Score:  Entry{UserID: userID, Score: ratingValue}.Rounded(),
	}, nil
}

// TopK returns a page of the scope's leaderboard in descending score order.
// The limit is capped at the configured maximum; a negative offset or
// non-positive limit is rejected.
func (m *Manager) TopK(ctx context.Context, q TopQuery) ([]Entry, error) {
	if q.Offset < 0 || q.Limit <= 0 {
		return nil, ErrInvalidPage
	}
	limit := q.Limit
	if limit > m.maxLimit {
		limit = m.maxLimit
	}

	scope := m.rankScope(RankQuery{Country: q.Country, Region: q.Region, Day: q.Day})
	return m.store.TopK(ctx, m.mode, scope, q.Offset, limit)
}

// rankScope resolves query fields to a single scope. Precedence follows the
// request shape: region, then country, then day, else global.
func (m *Manager) rankScope(q RankQuery) Scope {
	switch {
	case q.Region != "":
		return RegionScope(q.Region)
	case q.Country != "":
		return CountryScope(q.Country)
	case q.Day != "":
		return DailyScope(q.Day)
	default:
		return GlobalScope
	}
}

// TodayScope returns the daily scope for the manager's current UTC day.
func (m *Manager) TodayScope() Scope {
	return DailyScope(timeutil.DayKey(m.now()))
}
