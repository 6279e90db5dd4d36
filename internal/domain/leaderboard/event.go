package leaderboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH EVENT
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidEvent is the base class for malformed match events. Events
	// failing validation are rejected before entering the pipeline and are
	// never retried.
	ErrInvalidEvent = errors.New("leaderboard: invalid match event")

	// ErrPlayerCount is returned when an event does not carry exactly two players.
	ErrPlayerCount = fmt.Errorf("%w: exactly two players required", ErrInvalidEvent)

	// ErrInvalidCountry is returned for a country code that is not two letters.
	ErrInvalidCountry = fmt.Errorf("%w: country code must be two letters", ErrInvalidEvent)

	// ErrInvalidScore is returned for a NaN or infinite player score.
	ErrInvalidScore = fmt.Errorf("%w: player score must be finite", ErrInvalidEvent)
)

// FlexibleID is a user id that accepts both JSON strings and JSON numbers,
// normalizing to its string form.
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleID(n.String())
		return nil
	}
	return fmt.Errorf("%w: user_id must be a string or number", ErrInvalidEvent)
}

// MarshalJSON implements json.Marshaler; ids always serialize as strings.
func (f FlexibleID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

// String returns the normalized string form of the id.
func (f FlexibleID) String() string {
	return string(f)
}

// PlayerScore is one player's literal score in a match event.
type PlayerScore struct {
	UserID FlexibleID `json:"user_id"`
	Score  float64    `json:"score"`
}

// MatchEvent is a pairwise match result as consumed from the event queue or
// the synchronous submission path.
type MatchEvent struct {
	Mode        string        `json:"mode"`
	Players     []PlayerScore `json:"players"`
	CountryCode string        `json:"countryCode,omitempty"`
	Region      string        `json:"region,omitempty"`
	EventID     string        `json:"event_id,omitempty"`
}

// Validate checks the event shape. A nil error means the event may enter the
// pipeline; any error wraps ErrInvalidEvent.
func (e *MatchEvent) Validate() error {
	if e == nil {
		return ErrInvalidEvent
	}
	if strings.TrimSpace(e.Mode) == "" {
		return fmt.Errorf("%w: mode is required", ErrInvalidEvent)
	}
	if len(e.Players) != 2 {
		return ErrPlayerCount
	}
	for _, p := range e.Players {
		if p.UserID == "" {
			return fmt.Errorf("%w: player user_id is required", ErrInvalidEvent)
		}
		if math.IsNaN(p.Score) || math.IsInf(p.Score, 0) {
			return ErrInvalidScore
		}
	}
	if e.CountryCode != "" && !isCountryCode(e.CountryCode) {
		return ErrInvalidCountry
	}
	return nil
}

// ScopeOptions returns the write-scope values carried by the event.
func (e *MatchEvent) ScopeOptions() ScopeOptions {
	return ScopeOptions{
		Country: strings.ToUpper(e.CountryCode),
		Region:  e.Region,
	}
}

// ParseMatchEvent decodes and validates a JSON-encoded match event.
func ParseMatchEvent(payload []byte) (*MatchEvent, error) {
	var evt MatchEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return &evt, nil
}

func isCountryCode(cc string) bool {
	if len(cc) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		c := cc[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
