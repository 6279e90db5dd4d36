package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenaboard/arenaboard/internal/application/command"
	"github.com/arenaboard/arenaboard/internal/application/query"
	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
	"github.com/arenaboard/arenaboard/internal/infrastructure/persistence/memory"
)

func seededResolver(t *testing.T) *command.StoreResolver {
	t.Helper()

	store, err := memory.NewScoreStore(memory.Config{NumShards: 4, TopK: 100})
	require.NoError(t, err)
	resolver, err := command.NewStoreResolver(store, nil)
	require.NoError(t, err)

	ctx := context.Background()
	mgr, err := resolver.Primary("ranked")
	require.NoError(t, err)
	for _, row := range []struct {
		user   string
		rating float64
	}{
		{"alice", 1900.4},
		{"bob", 1700},
		{"carol", 1700},
		{"dave", 1500},
	} {
		require.NoError(t, mgr.UpdateUserRating(ctx, row.user, row.rating, leaderboard.ScopeOptions{}))
	}
	return resolver
}

func TestGetTopHandler_PositionsAndRounding(t *testing.T) {
	ctx := context.Background()
	handler, err := query.NewGetTopHandler(seededResolver(t))
	require.NoError(t, err)

	page, err := handler.Handle(ctx, query.GetTopQuery{Mode: "ranked", Offset: 0, Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)

	assert.Equal(t, query.TopEntry{Position: 1, UserID: "alice", Score: 1900}, page[0])
	assert.Equal(t, int64(2), page[1].Position)

	tail, err := handler.Handle(ctx, query.GetTopQuery{Mode: "ranked", Offset: 3, Limit: 3})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, query.TopEntry{Position: 4, UserID: "dave", Score: 1500}, tail[0])
}

func TestGetRankHandler_TiesShareARank(t *testing.T) {
	ctx := context.Background()
	handler, err := query.NewGetRankHandler(seededResolver(t))
	require.NoError(t, err)

	bob, err := handler.Handle(ctx, query.GetRankQuery{Mode: "ranked", UserID: "bob"})
	require.NoError(t, err)
	carol, err := handler.Handle(ctx, query.GetRankQuery{Mode: "ranked", UserID: "carol"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), bob.Rank)
	assert.Equal(t, bob.Rank, carol.Rank)

	dave, err := handler.Handle(ctx, query.GetRankQuery{Mode: "ranked", UserID: "dave"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), dave.Rank)

	_, err = handler.Handle(ctx, query.GetRankQuery{Mode: "ranked", UserID: "ghost"})
	assert.ErrorIs(t, err, leaderboard.ErrUserNotFound)
}
