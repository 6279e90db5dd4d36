package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE STAGING
// ══════════════════════════════════════════════════════════════════════════════

// stageTTL bounds the lifetime of staging keys so an aborted aggregation run
// cannot leak them.
const stageTTL = 5 * time.Minute

// stageKey names a per-partition staging zset for one aggregation run.
func stageKey(mode, partition string, runStamp int64) string {
	return fmt.Sprintf("agg:%s:%s:%d", mode, partition, runStamp)
}

// stageMember namespaces a user id by its source partition so users from
// different partitions never collide inside the merged view.
func stageMember(partition, userID string) string {
	return partition + ":" + userID
}

// SplitStageMember is the inverse of the staging member encoding, returning
// the partition code and user id.
func SplitStageMember(member string) (partition, userID string) {
	for i := 0; i < len(member); i++ {
		if member[i] == ':' {
			return member[:i], member[i+1:]
		}
	}
	return "", member
}

// Aggregate implements the cross-partition merge primitives over one Redis
// instance. Partition sources stage their local top slice into a temp zset
// here; Merge unions the stages and replaces the aggregate view.
type Aggregate struct {
	client *Client
}

// NewAggregate creates the staging/merge helper for one central instance.
func NewAggregate(client *Client) *Aggregate {
	return &Aggregate{client: client}
}

// TopOfPartition reads the top-limit slice of a partition's score store.
// Partition reads go against the partition's own client, so this is a free
// function over any client rather than a method of Aggregate.
func TopOfPartition(ctx context.Context, client *Client, mode string, limit int64) ([]leaderboard.Entry, error) {
	members, err := client.Redis().ZRevRangeWithScores(ctx, topKKey(mode), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("aggregate: read partition top for %s: %w", mode, err)
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

// Stage writes one partition's entries into a temp zset for the given run.
// Members are namespaced with the partition code. Returns the staging key.
func (a *Aggregate) Stage(ctx context.Context, mode, partition string, runStamp int64, entries []leaderboard.Entry) (string, error) {
	key := stageKey(mode, partition, runStamp)
	if len(entries) == 0 {
		return key, nil
	}

	members := make([]redis.Z, len(entries))
	for i, e := range entries {
		members[i] = redis.Z{Score: e.Score, Member: stageMember(partition, e.UserID)}
	}

	pipe := a.client.Redis().Pipeline()
	pipe.ZAdd(ctx, key, members...)
	pipe.Expire(ctx, key, stageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("aggregate: stage %s for %s: %w", partition, mode, err)
	}
	return key, nil
}

// Merge unions the staged keys into the mode's aggregate view, trims it to
// topK, and deletes the staging keys. An empty stage list leaves the current
// aggregate untouched.
func (a *Aggregate) Merge(ctx context.Context, mode string, stagedKeys []string, topK int64) error {
	if len(stagedKeys) == 0 {
		return nil
	}

	dest := AggregateKey(mode)
	pipe := a.client.Redis().Pipeline()
	// Members are partition-namespaced, so SUM never actually adds scores;
	// it matches the plain ZUNIONSTORE the view was defined with.
	pipe.ZUnionStore(ctx, dest, &redis.ZStore{Keys: stagedKeys, Aggregate: "SUM"})
	pipe.ZRemRangeByRank(ctx, dest, 0, -(topK + 1))
	pipe.Del(ctx, stagedKeys...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("aggregate: merge %s: %w", mode, err)
	}
	return nil
}

// Merged reads the raw merged view: namespaced members with their scores, in
// descending order. This is the form fanned back out to partitions.
func (a *Aggregate) Merged(ctx context.Context, mode string, limit int64) ([]leaderboard.Entry, error) {
	members, err := a.client.Redis().ZRevRangeWithScores(ctx, AggregateKey(mode), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("aggregate: read merged view for %s: %w", mode, err)
	}
	entries := make([]leaderboard.Entry, 0, len(members))
	for _, m := range members {
		member, ok := m.Member.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected member type %T", ErrSerialization, m.Member)
		}
		entries = append(entries, leaderboard.Entry{UserID: member, Score: m.Score})
	}
	return entries, nil
}

// ReplaceAggregate overwrites a partition's copy of the merged view so every
// instance serves the same global board under the same key.
func ReplaceAggregate(ctx context.Context, client *Client, mode string, entries []leaderboard.Entry) error {
	key := AggregateKey(mode)
	pipe := client.Redis().Pipeline()
	pipe.Del(ctx, key)
	if len(entries) > 0 {
		members := make([]redis.Z, len(entries))
		for i, e := range entries {
			members[i] = redis.Z{Score: e.Score, Member: e.UserID}
		}
		pipe.ZAdd(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("aggregate: replace merged view for %s: %w", mode, err)
	}
	return nil
}

// RunStamp returns a staging namespace for one aggregation run.
func RunStamp(t time.Time) int64 {
	return t.UnixMilli()
}

// TopOfAggregate reads the merged view, decoding the namespaced members back
// into partition-qualified entries.
func (a *Aggregate) TopOfAggregate(ctx context.Context, mode string, limit int64) ([]AggregatedEntry, error) {
	members, err := a.client.Redis().ZRevRangeWithScores(ctx, AggregateKey(mode), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("aggregate: read merged view for %s: %w", mode, err)
	}
	entries := make([]AggregatedEntry, 0, len(members))
	for _, m := range members {
		member, ok := m.Member.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected member type %T", ErrSerialization, m.Member)
		}
		partition, userID := SplitStageMember(member)
		entries = append(entries, AggregatedEntry{
			Partition: partition,
			UserID:    userID,
			Score:     m.Score,
		})
	}
	return entries, nil
}

// AggregatedEntry is one row of the merged cross-partition view.
type AggregatedEntry struct {
	Partition string
	UserID    string
	Score     float64
}
