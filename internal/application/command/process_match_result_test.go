package command_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenaboard/arenaboard/internal/application/command"
	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
	"github.com/arenaboard/arenaboard/internal/infrastructure/persistence/memory"
)

type fixture struct {
	processor *command.Processor
	resolver  *command.StoreResolver
	store     *memory.ScoreStore
	kzStore   *memory.ScoreStore
	guard     *memory.IdempotencyGuard
	ratings   *memory.RatingRepository
	results   *memory.MatchResultRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := memory.NewScoreStore(memory.Config{NumShards: 4, TopK: 100})
	require.NoError(t, err)
	kzStore, err := memory.NewScoreStore(memory.Config{NumShards: 4, TopK: 100})
	require.NoError(t, err)

	resolver, err := command.NewStoreResolver(store, map[string]leaderboard.ScoreStore{"KZ": kzStore})
	require.NoError(t, err)

	guard := memory.NewIdempotencyGuard(time.Hour)
	ratings := memory.NewRatingRepository()
	results := memory.NewMatchResultRepository()

	processor, err := command.NewProcessor(resolver, guard, ratings, results, command.ProcessorConfig{})
	require.NoError(t, err)

	return &fixture{
		processor: processor,
		resolver:  resolver,
		store:     store,
		kzStore:   kzStore,
		guard:     guard,
		ratings:   ratings,
		results:   results,
	}
}

func matchEvent(id string) *leaderboard.MatchEvent {
	return &leaderboard.MatchEvent{
		Mode:    "ranked",
		EventID: id,
		Players: []leaderboard.PlayerScore{
			{UserID: "alice", Score: 1200},
			{UserID: "bob", Score: 900},
		},
	}
}

func TestProcessor_FirstSeenPlayersStartAtBaseline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.processor.Process(ctx, matchEvent("evt-1"))
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.NotNil(t, res.Record)

	// 1500 vs 1500, K=32: the winner gains exactly 16.
	assert.InDelta(t, 1516, res.Record.Players[0].NewRating, 1e-9)
	assert.InDelta(t, 1484, res.Record.Players[1].NewRating, 1e-9)
	assert.InDelta(t, 1500, res.Record.Players[0].OldRating, 1e-9)

	mgr, err := f.resolver.Primary("ranked")
	require.NoError(t, err)
	got, err := mgr.UserRating(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 1516, got, 1e-9)

	durable, err := f.ratings.Get(ctx, "ranked", "bob")
	require.NoError(t, err)
	assert.InDelta(t, 1484, durable, 1e-9)
}

func TestProcessor_FallsBackToDurableRatingWhenViewsAreCold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Durable rows exist but the live store is empty, as after a Redis flush.
	require.NoError(t, f.ratings.Upsert(ctx, "ranked", "alice", 1800))
	require.NoError(t, f.ratings.Upsert(ctx, "ranked", "bob", 1800))

	res, err := f.processor.Process(ctx, matchEvent("evt-cold"))
	require.NoError(t, err)

	assert.InDelta(t, 1800, res.Record.Players[0].OldRating, 1e-9)
	assert.InDelta(t, 1816, res.Record.Players[0].NewRating, 1e-9)
	assert.InDelta(t, 1784, res.Record.Players[1].NewRating, 1e-9)
}

func TestProcessor_DuplicateEventIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.processor.Process(ctx, matchEvent("evt-dup"))
	require.NoError(t, err)
	require.False(t, first.Skipped)

	second, err := f.processor.Process(ctx, matchEvent("evt-dup"))
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Nil(t, second.Record)

	// Ratings moved exactly once.
	mgr, err := f.resolver.Primary("ranked")
	require.NoError(t, err)
	got, err := mgr.UserRating(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 1516, got, 1e-9)

	assert.Len(t, f.results.Records(), 1)
}

func TestProcessor_EventWithoutIDIsNeverDeduplicated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	evt := matchEvent("")
	_, err := f.processor.Process(ctx, evt)
	require.NoError(t, err)
	_, err = f.processor.Process(ctx, evt)
	require.NoError(t, err)

	records := f.results.Records()
	require.Len(t, records, 2)
	assert.NotEmpty(t, records[0].ID)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestProcessor_TieLeavesEqualRatingsUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	evt := matchEvent("evt-tie")
	evt.Players[0].Score = 700
	evt.Players[1].Score = 700

	res, err := f.processor.Process(ctx, evt)
	require.NoError(t, err)
	assert.InDelta(t, 1500, res.Record.Players[0].NewRating, 1e-9)
	assert.InDelta(t, 1500, res.Record.Players[1].NewRating, 1e-9)
}

func TestProcessor_PartitionedCountryWritesItsPartitionExclusively(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	evt := matchEvent("evt-kz")
	evt.CountryCode = "kz"

	_, err := f.processor.Process(ctx, evt)
	require.NoError(t, err)

	// The KZ partition owns both players; a copy on the primary would give
	// each user a second identity in the aggregated global view.
	got, err := f.kzStore.UserRating(ctx, "ranked", "alice")
	require.NoError(t, err)
	assert.InDelta(t, 1516, got, 1e-9)
	got, err = f.kzStore.UserRating(ctx, "ranked", "bob")
	require.NoError(t, err)
	assert.InDelta(t, 1484, got, 1e-9)

	_, err = f.store.UserRating(ctx, "ranked", "alice")
	assert.ErrorIs(t, err, leaderboard.ErrUserNotFound)
	_, err = f.store.UserRating(ctx, "ranked", "bob")
	assert.ErrorIs(t, err, leaderboard.ErrUserNotFound)

	assert.Equal(t, "KZ", f.results.Records()[0].Country)
}

func TestProcessor_PartitionedRatingsAccumulateOnThePartition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	evt := matchEvent("evt-kz-1")
	evt.CountryCode = "KZ"
	_, err := f.processor.Process(ctx, evt)
	require.NoError(t, err)

	// The second match must read 1516/1484 back from the partition, not
	// restart both players at the baseline via the primary.
	evt = matchEvent("evt-kz-2")
	evt.CountryCode = "KZ"
	res, err := f.processor.Process(ctx, evt)
	require.NoError(t, err)

	assert.InDelta(t, 1516, res.Record.Players[0].OldRating, 1e-9)
	assert.InDelta(t, 1484, res.Record.Players[1].OldRating, 1e-9)
}

func TestProcessor_UnpartitionedCountryWritesPrimaryOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	evt := matchEvent("evt-de")
	evt.CountryCode = "DE"

	_, err := f.processor.Process(ctx, evt)
	require.NoError(t, err)

	_, err = f.store.UserRating(ctx, "ranked", "alice")
	require.NoError(t, err)
	_, err = f.kzStore.UserRating(ctx, "ranked", "alice")
	assert.ErrorIs(t, err, leaderboard.ErrUserNotFound)
}

func TestProcessor_InvalidEventIsPermanent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	evt := matchEvent("evt-bad")
	evt.Players = evt.Players[:1]

	_, err := f.processor.Process(ctx, evt)
	require.Error(t, err)
	assert.ErrorIs(t, err, leaderboard.ErrPlayerCount)
	assert.Empty(t, f.results.Records())
}

// failingResults rejects every insert; used to observe marker semantics on
// partial failure.
type failingResults struct{}

func (failingResults) Insert(ctx context.Context, record *leaderboard.MatchResultRecord) error {
	return errors.New("record store down")
}

func TestProcessor_MarkerStaysClaimedOnPersistFailure(t *testing.T) {
	ctx := context.Background()

	store, err := memory.NewScoreStore(memory.Config{NumShards: 2, TopK: 10})
	require.NoError(t, err)
	resolver, err := command.NewStoreResolver(store, nil)
	require.NoError(t, err)
	guard := memory.NewIdempotencyGuard(time.Hour)

	processor, err := command.NewProcessor(resolver, guard, memory.NewRatingRepository(), failingResults{}, command.ProcessorConfig{})
	require.NoError(t, err)

	_, err = processor.Process(ctx, matchEvent("evt-fail"))
	require.Error(t, err)

	// The event id stays claimed: redelivery skips instead of double applying.
	claimed, err := guard.MarkIfAbsent(ctx, "evt-fail")
	require.NoError(t, err)
	assert.False(t, claimed)
}
