package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMatchEvent_Valid(t *testing.T) {
	payload := []byte(`{
		"mode": "blitz",
		"players": [
			{"user_id": "42", "score": 1200},
			{"user_id": "17", "score": 900}
		],
		"countryCode": "kz",
		"region": "central-asia",
		"event_id": "evt-1"
	}`)

	evt, err := ParseMatchEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "blitz", evt.Mode)
	assert.Equal(t, FlexibleID("42"), evt.Players[0].UserID)
	assert.Equal(t, 900.0, evt.Players[1].Score)
	assert.Equal(t, "evt-1", evt.EventID)

	opts := evt.ScopeOptions()
	assert.Equal(t, "KZ", opts.Country)
	assert.Equal(t, "central-asia", opts.Region)
}

func TestParseMatchEvent_NumericUserIDs(t *testing.T) {
	payload := []byte(`{
		"mode": "quiz",
		"players": [
			{"user_id": 42, "score": 3},
			{"user_id": 17, "score": 5}
		]
	}`)

	evt, err := ParseMatchEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, FlexibleID("42"), evt.Players[0].UserID)
	assert.Equal(t, FlexibleID("17"), evt.Players[1].UserID)
}

func TestParseMatchEvent_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    error
	}{
		{"not json", `{`, ErrInvalidEvent},
		{"missing mode", `{"players":[{"user_id":"1","score":1},{"user_id":"2","score":2}]}`, ErrInvalidEvent},
		{"one player", `{"mode":"blitz","players":[{"user_id":"1","score":1}]}`, ErrPlayerCount},
		{"three players", `{"mode":"blitz","players":[{"user_id":"1","score":1},{"user_id":"2","score":2},{"user_id":"3","score":3}]}`, ErrPlayerCount},
		{"bad country", `{"mode":"blitz","players":[{"user_id":"1","score":1},{"user_id":"2","score":2}],"countryCode":"KAZ"}`, ErrInvalidCountry},
		{"empty user id", `{"mode":"blitz","players":[{"user_id":"","score":1},{"user_id":"2","score":2}]}`, ErrInvalidEvent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMatchEvent([]byte(tc.payload))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEntry_Rounded(t *testing.T) {
	assert.Equal(t, int64(1516), Entry{UserID: "u", Score: 1515.7}.Rounded())
	assert.Equal(t, int64(1484), Entry{UserID: "u", Score: 1484.3}.Rounded())
	assert.Equal(t, int64(-2), Entry{UserID: "u", Score: -1.5}.Rounded())
}
