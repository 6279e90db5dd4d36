package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
	"github.com/arenaboard/arenaboard/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE STORE CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ScoreStoreConfig holds the tunables of the sharded score store.
type ScoreStoreConfig struct {
	// NumShards is the number of global leaderboard shards per mode.
	NumShards int

	// TopK is the size of the materialized top-K view.
	TopK int

	// DailyTTL is the retention of the daily leaderboard key.
	DailyTTL time.Duration

	// UseAggregate routes global top-K reads to the aggregated view that the
	// periodic merge maintains, instead of the locally materialized top-K set.
	UseAggregate bool

	// Clock overrides time.Now for daily key computation (tests only).
	Clock func() time.Time
}

// DefaultScoreStoreConfig returns the default score store configuration.
func DefaultScoreStoreConfig() ScoreStoreConfig {
	return ScoreStoreConfig{
		NumShards: 10,
		TopK:      1000,
		DailyTTL:  24 * time.Hour,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// KEY SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

// Key patterns. One mode occupies:
//
//   - Hash    "rating:{mode}"             userID -> rating
//   - ZSet    "lb:{mode}:global:{i}"      shard i of the global board
//   - ZSet    "lb:{mode}:topK"            materialized top-K, trimmed on write
//   - ZSet    "lb:{mode}:day:{YYYYMMDD}"  daily board, expires after DailyTTL
//   - ZSet    "lb:{mode}:country:{CC}"    per-country board
//   - ZSet    "lb:{mode}:region:{R}"      per-region board
//   - ZSet    "lb:{mode}:global:agg"      merged view written by the aggregator

func ratingKey(mode string) string {
	return "rating:" + mode
}

func shardKey(mode string, shard int) string {
	return fmt.Sprintf("lb:%s:global:%d", mode, shard)
}

func topKKey(mode string) string {
	return "lb:" + mode + ":topK"
}

func dailyKey(mode string, t time.Time) string {
	return "lb:" + mode + ":day:" + timeutil.DayKey(t)
}

func countryKey(mode, cc string) string {
	return "lb:" + mode + ":country:" + cc
}

func regionKey(mode, region string) string {
	return "lb:" + mode + ":region:" + region
}

// AggregateKey is the merged global view maintained by the aggregator.
func AggregateKey(mode string) string {
	return "lb:" + mode + ":global:agg"
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARDED SCORE STORE
// ══════════════════════════════════════════════════════════════════════════════

// ShardedScoreStore implements leaderboard.ScoreStore over Redis sorted sets.
//
// Writes hit one shard plus the materialized views in a single pipeline, so
// one match result costs one round trip. Rank reads use ZCOUNT over the
// exclusive score range, which stays O(log N) per shard and makes ties share
// a rank; the global rank sums the per-shard counts.
type ShardedScoreStore struct {
	client     *Client
	assignment leaderboard.Assignment
	config     ScoreStoreConfig
	now        func() time.Time
}

// NewShardedScoreStore creates a score store over the given client.
func NewShardedScoreStore(client *Client, cfg ScoreStoreConfig) (*ShardedScoreStore, error) {
	assignment, err := leaderboard.NewAssignment(cfg.NumShards)
	if err != nil {
		return nil, err
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &ShardedScoreStore{
		client:     client,
		assignment: assignment,
		config:     cfg,
		now:        now,
	}, nil
}

// Shards returns the shard count the store writes across.
func (s *ShardedScoreStore) Shards() int {
	return s.assignment.Count()
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE PATH
// ══════════════════════════════════════════════════════════════════════════════

// SetScore writes a user's score into the shard and every materialized view
// in one pipeline. The write is idempotent: replaying it with the same score
// leaves every key unchanged.
func (s *ShardedScoreStore) SetScore(ctx context.Context, mode, userID string, score float64, opts leaderboard.ScopeOptions) error {
	if mode == "" {
		return leaderboard.ErrEmptyMode
	}
	if userID == "" {
		return leaderboard.ErrEmptyUserID
	}

	member := redis.Z{Score: score, Member: userID}
	pipe := s.client.Redis().Pipeline()

	// 1. Rating hash, the source of truth for the current rating.
	pipe.HSet(ctx, ratingKey(mode), userID, score)

	// 2. Global shard.
	shard := s.assignment.Shard(userID)
	pipe.ZAdd(ctx, shardKey(mode, shard), member)

	// 3. Top-K view, trimmed so it never holds more than K members.
	topKey := topKKey(mode)
	pipe.ZAdd(ctx, topKey, member)
	pipe.ZRemRangeByRank(ctx, topKey, 0, int64(-(s.config.TopK + 1)))

	// 4. Daily view. EXPIRE NX arms the TTL on the first write of the day
	// only, so the key dies DailyTTL after its first entry regardless of
	// later traffic.
	dayKey := dailyKey(mode, s.now().UTC())
	pipe.ZAdd(ctx, dayKey, member)
	pipe.ExpireNX(ctx, dayKey, s.config.DailyTTL)

	// 5. Optional scoped views.
	if opts.Country != "" {
		pipe.ZAdd(ctx, countryKey(mode, opts.Country), member)
	}
	if opts.Region != "" {
		pipe.ZAdd(ctx, regionKey(mode, opts.Region), member)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("score store: set score for %s/%s: %w", mode, userID, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READ PATH
// ══════════════════════════════════════════════════════════════════════════════

// UserRating returns the user's current rating from the rating hash.
func (s *ShardedScoreStore) UserRating(ctx context.Context, mode, userID string) (float64, error) {
	if mode == "" {
		return 0, leaderboard.ErrEmptyMode
	}
	if userID == "" {
		return 0, leaderboard.ErrEmptyUserID
	}

	raw, err := s.client.Redis().HGet(ctx, ratingKey(mode), userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, leaderboard.ErrUserNotFound
		}
		return 0, fmt.Errorf("score store: get rating for %s/%s: %w", mode, userID, err)
	}

	rating, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: rating %q for %s/%s", ErrSerialization, raw, mode, userID)
	}
	return rating, nil
}

// UserRank returns the user's 1-based dense rank in the given scope: one
// plus the number of members with a strictly greater score, so equal scores
// share a rank.
func (s *ShardedScoreStore) UserRank(ctx context.Context, mode, userID string, scope leaderboard.Scope) (int64, error) {
	if mode == "" {
		return 0, leaderboard.ErrEmptyMode
	}
	if userID == "" {
		return 0, leaderboard.ErrEmptyUserID
	}

	score, err := s.UserRating(ctx, mode, userID)
	if err != nil {
		return 0, err
	}

	min := "(" + strconv.FormatFloat(score, 'f', -1, 64)

	if scope.Kind == leaderboard.ScopeGlobal {
		count, err := s.countGlobalAbove(ctx, mode, min)
		if err != nil {
			return 0, err
		}
		return count + 1, nil
	}

	key, err := s.scopeKey(mode, scope)
	if err != nil {
		return 0, err
	}
	// Membership check first: the rating hash covers all scopes, but a user
	// may never have played inside this one.
	if _, err := s.client.Redis().ZScore(ctx, key, userID).Result(); err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, leaderboard.ErrUserNotFound
		}
		return 0, fmt.Errorf("score store: membership for %s/%s: %w", mode, userID, err)
	}
	count, err := s.client.Redis().ZCount(ctx, key, min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("score store: rank count for %s/%s: %w", mode, userID, err)
	}
	return count + 1, nil
}

// countGlobalAbove sums the per-shard counts of scores above min. The counts
// are issued in one pipeline, one ZCOUNT per shard.
func (s *ShardedScoreStore) countGlobalAbove(ctx context.Context, mode, min string) (int64, error) {
	pipe := s.client.Redis().Pipeline()
	counts := make([]*redis.IntCmd, s.assignment.Count())
	for i := range counts {
		counts[i] = pipe.ZCount(ctx, shardKey(mode, i), min, "+inf")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("score store: global rank count for %s: %w", mode, err)
	}

	var total int64
	for _, cmd := range counts {
		total += cmd.Val()
	}
	return total, nil
}

// TopK returns a descending page of the scoped leaderboard. The global scope
// reads from the materialized top-K view (or the aggregated view when the
// aggregator is enabled), so offset+limit must stay within the configured K.
func (s *ShardedScoreStore) TopK(ctx context.Context, mode string, scope leaderboard.Scope, offset, limit int64) ([]leaderboard.Entry, error) {
	if mode == "" {
		return nil, leaderboard.ErrEmptyMode
	}
	if offset < 0 || limit <= 0 {
		return nil, leaderboard.ErrInvalidPage
	}

	key, err := s.scopeKey(mode, scope)
	if err != nil {
		return nil, err
	}

	start := offset
	stop := start + limit - 1
	members, err := s.client.Redis().ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("score store: top page for %s: %w", mode, err)
	}

	entries := make([]leaderboard.Entry, 0, len(members))
	for _, m := range members {
		userID, ok := m.Member.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected member type %T", ErrSerialization, m.Member)
		}
		entries = append(entries, leaderboard.Entry{UserID: userID, Score: m.Score})
	}
	return entries, nil
}

// scopeKey resolves a scope to its Redis key.
func (s *ShardedScoreStore) scopeKey(mode string, scope leaderboard.Scope) (string, error) {
	switch scope.Kind {
	case leaderboard.ScopeGlobal:
		if s.config.UseAggregate {
			return AggregateKey(mode), nil
		}
		return topKKey(mode), nil
	case leaderboard.ScopeCountry:
		return countryKey(mode, scope.Value), nil
	case leaderboard.ScopeRegion:
		return regionKey(mode, scope.Value), nil
	case leaderboard.ScopeDaily:
		day, err := timeutil.ParseDayKey(scope.Value)
		if err != nil {
			return "", fmt.Errorf("score store: %w", err)
		}
		return dailyKey(mode, day), nil
	default:
		return "", fmt.Errorf("score store: unknown scope kind %q", scope.Kind)
	}
}

var _ leaderboard.ScoreStore = (*ShardedScoreStore)(nil)
