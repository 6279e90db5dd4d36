// Package leaderboard contains the domain model of the ranking engine:
// score entries, rank results, shard assignment, match events, and the
// Manager that orchestrates reads and writes against a ScoreStore.
package leaderboard

import (
	"errors"
	"math"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrUserNotFound is returned when a rank or rating lookup targets a user
	// with no recorded rating in the requested mode.
	ErrUserNotFound = errors.New("leaderboard: user not found")

	// ErrInvalidPage is returned for a negative offset or non-positive limit.
	ErrInvalidPage = errors.New("leaderboard: invalid page parameters")

	// ErrEmptyMode is returned when an operation is attempted without a mode.
	ErrEmptyMode = errors.New("leaderboard: mode cannot be empty")

	// ErrEmptyUserID is returned when an operation is attempted without a user id.
	ErrEmptyUserID = errors.New("leaderboard: user id cannot be empty")
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Entry is a single leaderboard row: a user and their rating-derived score.
type Entry struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
}

// Rounded returns the score rounded to the nearest integer, the form in which
// scores leave the system.
func (e Entry) Rounded() int64 {
	return int64(math.Round(e.Score))
}

// RankResult is the answer to a rank query. Rank is 1-based; ties share a rank.
type RankResult struct {
	UserID string `json:"user_id"`
	Rank   int64  `json:"rank"`
	Score  int64  `json:"score"`
}

// ScopeKind identifies a query dimension over which rank and top-K are
// computed independently.
type ScopeKind string

const (
	// ScopeGlobal spans all N shards of a mode.
	ScopeGlobal ScopeKind = "global"
	// ScopeCountry is a per-country ordered view.
	ScopeCountry ScopeKind = "country"
	// ScopeRegion is a per-region ordered view.
	ScopeRegion ScopeKind = "region"
	// ScopeDaily is the bounded view for one UTC day.
	ScopeDaily ScopeKind = "daily"
)

// Scope is a fully resolved query scope: a kind plus its value (country code,
// region name, or YYYYMMDD day key; empty for global).
type Scope struct {
	Kind  ScopeKind
	Value string
}

// GlobalScope is the scope spanning all shards.
var GlobalScope = Scope{Kind: ScopeGlobal}

// CountryScope returns the scope for a country code.
func CountryScope(cc string) Scope { return Scope{Kind: ScopeCountry, Value: cc} }

// RegionScope returns the scope for a region.
func RegionScope(region string) Scope { return Scope{Kind: ScopeRegion, Value: region} }

// DailyScope returns the scope for a YYYYMMDD day key.
func DailyScope(dayKey string) Scope { return Scope{Kind: ScopeDaily, Value: dayKey} }

// ScopeOptions carries the optional per-write scope values of an update.
// Empty fields mean the corresponding scoped view is not touched.
type ScopeOptions struct {
	Country string
	Region  string
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCH RESULT RECORD
// ══════════════════════════════════════════════════════════════════════════════

// PlayerOutcome is one player's side of a processed match: the literal match
// score and the rating transition it caused.
type PlayerOutcome struct {
	UserID    string  `json:"user_id"`
	Score     float64 `json:"score"`
	OldRating float64 `json:"old_rating"`
	NewRating float64 `json:"new_rating"`
}

// MatchResultRecord is the immutable audit row written once per successfully
// processed event. It is never mutated after creation.
type MatchResultRecord struct {
	ID        string           `json:"id"`
	Mode      string           `json:"mode"`
	Players   [2]PlayerOutcome `json:"players"`
	Country   string           `json:"country,omitempty"`
	Region    string           `json:"region,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
