// Package memory provides in-memory implementations of the leaderboard
// storage contracts. They back unit tests and the redis-disabled development
// mode; semantics mirror the Redis implementations, including top-K trimming
// and daily-view expiry.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
	"github.com/arenaboard/arenaboard/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE STORE
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the in-memory score store parameters.
type Config struct {
	// NumShards is the fixed global shard count N.
	NumShards int

	// TopK bounds the top-K view.
	TopK int

	// DailyTTL is the retention window of daily views.
	DailyTTL time.Duration

	// Clock overrides the time source (tests); nil means time.Now.
	Clock func() time.Time
}

// DefaultConfig returns defaults matching the production configuration.
func DefaultConfig() Config {
	return Config{
		NumShards: 10,
		TopK:      1000,
		DailyTTL:  24 * time.Hour,
	}
}

// modeState holds every view of one game mode.
type modeState struct {
	ratings map[string]float64               // live rating per user
	shards  []map[string]float64             // N global shards
	topK    map[string]float64               // bounded top-K view
	scoped  map[scopedKey]map[string]float64 // country/region/daily views
	expiry  map[scopedKey]time.Time          // daily view expiry, set on first write
}

type scopedKey struct {
	kind  leaderboard.ScopeKind
	value string
}

// ScoreStore is an in-memory leaderboard.ScoreStore.
type ScoreStore struct {
	mu     sync.RWMutex
	cfg    Config
	assign leaderboard.Assignment
	modes  map[string]*modeState
	now    func() time.Time
}

// NewScoreStore creates an in-memory score store.
func NewScoreStore(cfg Config) (*ScoreStore, error) {
	if cfg.NumShards <= 0 {
		cfg.NumShards = DefaultConfig().NumShards
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.DailyTTL <= 0 {
		cfg.DailyTTL = DefaultConfig().DailyTTL
	}
	assign, err := leaderboard.NewAssignment(cfg.NumShards)
	if err != nil {
		return nil, err
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &ScoreStore{
		cfg:    cfg,
		assign: assign,
		modes:  make(map[string]*modeState),
		now:    now,
	}, nil
}

func (s *ScoreStore) mode(mode string) *modeState {
	st, ok := s.modes[mode]
	if !ok {
		st = &modeState{
			ratings: make(map[string]float64),
			shards:  make([]map[string]float64, s.cfg.NumShards),
			topK:    make(map[string]float64),
			scoped:  make(map[scopedKey]map[string]float64),
			expiry:  make(map[scopedKey]time.Time),
		}
		for i := range st.shards {
			st.shards[i] = make(map[string]float64)
		}
		s.modes[mode] = st
	}
	return st
}

// SetScore implements leaderboard.ScoreStore.
func (s *ScoreStore) SetScore(ctx context.Context, mode, userID string, rating float64, opts leaderboard.ScopeOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mode == "" {
		return leaderboard.ErrEmptyMode
	}
	if userID == "" {
		return leaderboard.ErrEmptyUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.mode(mode)
	now := s.now()

	st.ratings[userID] = rating
	st.shards[s.assign.Shard(userID)][userID] = rating

	// Top-K view: insert then trim to K.
	st.topK[userID] = rating
	s.trimTopK(st)

	// Daily view: TTL starts at the first write of the UTC day.
	day := scopedKey{kind: leaderboard.ScopeDaily, value: timeutil.DayKey(now)}
	s.scopedSet(st, day, userID, rating)
	if _, ok := st.expiry[day]; !ok {
		st.expiry[day] = now.Add(s.cfg.DailyTTL)
	}

	if opts.Country != "" {
		s.scopedSet(st, scopedKey{leaderboard.ScopeCountry, opts.Country}, userID, rating)
	}
	if opts.Region != "" {
		s.scopedSet(st, scopedKey{leaderboard.ScopeRegion, opts.Region}, userID, rating)
	}
	return nil
}

func (s *ScoreStore) scopedSet(st *modeState, key scopedKey, userID string, rating float64) {
	view, ok := st.scoped[key]
	if !ok {
		view = make(map[string]float64)
		st.scoped[key] = view
	}
	view[userID] = rating
}

func (s *ScoreStore) trimTopK(st *modeState) {
	for len(st.topK) > s.cfg.TopK {
		lowestID := ""
		lowest := 0.0
		first := true
		for id, score := range st.topK {
			if first || score < lowest || (score == lowest && id > lowestID) {
				lowestID, lowest, first = id, score, false
			}
		}
		delete(st.topK, lowestID)
	}
}

// UserRating implements leaderboard.ScoreStore.
func (s *ScoreStore) UserRating(ctx context.Context, mode, userID string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.modes[mode]
	if !ok {
		return 0, leaderboard.ErrUserNotFound
	}
	rating, ok := st.ratings[userID]
	if !ok {
		return 0, leaderboard.ErrUserNotFound
	}
	return rating, nil
}

// UserRank implements leaderboard.ScoreStore. Rank is the count of strictly
// greater ratings in the scope, plus one, so ties share a rank.
func (s *ScoreStore) UserRank(ctx context.Context, mode, userID string, scope leaderboard.Scope) (int64, error) {
	rating, err := s.UserRating(ctx, mode, userID)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.modes[mode]
	var higher int64
	if scope.Kind == leaderboard.ScopeGlobal {
		for _, shard := range st.shards {
			for _, score := range shard {
				if score > rating {
					higher++
				}
			}
		}
		return higher + 1, nil
	}

	view := s.liveView(st, scope)
	if _, ok := view[userID]; !ok {
		return 0, leaderboard.ErrUserNotFound
	}
	for _, score := range view {
		if score > rating {
			higher++
		}
	}
	return higher + 1, nil
}

// TopK implements leaderboard.ScoreStore.
func (s *ScoreStore) TopK(ctx context.Context, mode string, scope leaderboard.Scope, offset, limit int64) ([]leaderboard.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || limit <= 0 {
		return nil, leaderboard.ErrInvalidPage
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.modes[mode]
	if !ok {
		return []leaderboard.Entry{}, nil
	}

	var view map[string]float64
	if scope.Kind == leaderboard.ScopeGlobal {
		view = st.topK
	} else {
		view = s.liveView(st, scope)
	}

	entries := make([]leaderboard.Entry, 0, len(view))
	for id, score := range view {
		entries = append(entries, leaderboard.Entry{UserID: id, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})

	if offset >= int64(len(entries)) {
		return []leaderboard.Entry{}, nil
	}
	end := offset + limit
	if end > int64(len(entries)) {
		end = int64(len(entries))
	}
	return entries[offset:end], nil
}

// liveView returns a scoped view, treating an expired daily view as absent.
func (s *ScoreStore) liveView(st *modeState, scope leaderboard.Scope) map[string]float64 {
	key := scopedKey{kind: scope.Kind, value: scope.Value}
	if exp, ok := st.expiry[key]; ok && s.now().After(exp) {
		return nil
	}
	return st.scoped[key]
}
