package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

// snapStampLayout is the UTC second-resolution stamp in snapshot keys.
const snapStampLayout = "20060102150405"

// snapKey names one point-in-time copy of a mode's top-K view.
func snapKey(mode string, at time.Time) string {
	return "lb:" + mode + ":snap:" + at.UTC().Format(snapStampLayout)
}

// Snapshots copies the live top-K view into timestamped history keys, so the
// board's past states can be inspected or diffed offline.
type Snapshots struct {
	client    *Client
	retention time.Duration
}

// NewSnapshots creates the snapshot writer. A zero retention keeps snapshots
// until something else deletes them.
func NewSnapshots(client *Client, retention time.Duration) *Snapshots {
	return &Snapshots{client: client, retention: retention}
}

// Take copies the top limit entries of the mode's live view into a key
// stamped with at. An empty view takes no snapshot. Returns the number of
// entries captured.
func (s *Snapshots) Take(ctx context.Context, mode string, limit int64, at time.Time) (int, error) {
	members, err := s.client.Redis().ZRevRangeWithScores(ctx, topKKey(mode), 0, limit-1).Result()
	if err != nil {
		return 0, fmt.Errorf("snapshot: read top of %s: %w", mode, err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	entries := make([]redis.Z, len(members))
	for i, m := range members {
		member, ok := m.Member.(string)
		if !ok {
			return 0, fmt.Errorf("%w: unexpected member type %T", ErrSerialization, m.Member)
		}
		entries[i] = redis.Z{Score: m.Score, Member: member}
	}

	key := snapKey(mode, at)
	pipe := s.client.Redis().Pipeline()
	pipe.ZAdd(ctx, key, entries...)
	if s.retention > 0 {
		pipe.Expire(ctx, key, s.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("snapshot: write %s: %w", key, err)
	}
	return len(entries), nil
}
