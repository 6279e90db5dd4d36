package leaderboard

import (
	"errors"
	"strconv"
)

// ErrInvalidShardCount is returned when an Assignment is built with N < 1.
var ErrInvalidShardCount = errors.New("leaderboard: shard count must be at least 1")

// Assignment deterministically maps user ids onto one of N fixed shards.
//
// Numeric ids map by modulo; non-numeric ids fall back to a 31-based string
// hash. The mapping is stable as long as N is unchanged; changing N is an
// offline full remap, never a live operation. Assignment is a pure value, so
// a migration tool can hold one per shard count and compute both placements.
type Assignment struct {
	n int
}

// NewAssignment creates an Assignment over n shards.
func NewAssignment(n int) (Assignment, error) {
	if n < 1 {
		return Assignment{}, ErrInvalidShardCount
	}
	return Assignment{n: n}, nil
}

// Count returns the number of shards.
func (a Assignment) Count() int {
	return a.n
}

// Shard returns the shard index for a user id, in [0, Count).
func (a Assignment) Shard(userID string) int {
	if id, err := strconv.ParseInt(userID, 10, 64); err == nil && id >= 0 {
		return int(id % int64(a.n))
	}
	return int(stringHash(userID) % uint32(a.n))
}

// stringHash is the fallback hash for non-numeric user ids: the classic
// 31-multiplier rolling hash over the raw bytes, truncated to uint32.
func stringHash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
