package leaderboard_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
	"github.com/arenaboard/arenaboard/internal/infrastructure/persistence/memory"
)

func newManager(t *testing.T, cfg memory.Config, opts ...leaderboard.ManagerOption) *leaderboard.Manager {
	t.Helper()
	store, err := memory.NewScoreStore(cfg)
	require.NoError(t, err)
	mgr, err := leaderboard.NewManager("blitz", store, opts...)
	require.NoError(t, err)
	return mgr
}

func TestManager_TopKNeverExceedsK(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.Config{NumShards: 4, TopK: 5})

	for i := 0; i < 50; i++ {
		err := mgr.UpdateUserRating(ctx, strconv.Itoa(i), float64(1000+i), leaderboard.ScopeOptions{})
		require.NoError(t, err)
	}

	top, err := mgr.TopK(ctx, leaderboard.TopQuery{Offset: 0, Limit: 100})
	require.NoError(t, err)
	assert.Len(t, top, 5, "top-K view must stay bounded at K")
}

func TestManager_TopKReturnsHighestDescending(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.Config{NumShards: 10, TopK: 100})

	// 150 distinct users with increasing scores; top 100 must be users 50..149.
	for i := 0; i < 150; i++ {
		err := mgr.UpdateUserRating(ctx, "u"+strconv.Itoa(i), float64(i), leaderboard.ScopeOptions{})
		require.NoError(t, err)
	}

	top, err := mgr.TopK(ctx, leaderboard.TopQuery{Offset: 0, Limit: 100})
	require.NoError(t, err)
	require.Len(t, top, 100)

	assert.Equal(t, "u149", top[0].UserID)
	assert.Equal(t, "u50", top[99].UserID)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Score, top[i].Score, "scores must be descending")
	}
}

func TestManager_TopKPagination(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.Config{NumShards: 3, TopK: 50})

	for i := 0; i < 20; i++ {
		require.NoError(t, mgr.UpdateUserRating(ctx, "u"+strconv.Itoa(i), float64(i), leaderboard.ScopeOptions{}))
	}

	page, err := mgr.TopK(ctx, leaderboard.TopQuery{Offset: 5, Limit: 5})
	require.NoError(t, err)
	require.Len(t, page, 5)
	assert.Equal(t, "u14", page[0].UserID)

	// Offset past the end is an empty page, not an error.
	empty, err := mgr.TopK(ctx, leaderboard.TopQuery{Offset: 1000, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = mgr.TopK(ctx, leaderboard.TopQuery{Offset: -1, Limit: 5})
	assert.ErrorIs(t, err, leaderboard.ErrInvalidPage)

	_, err = mgr.TopK(ctx, leaderboard.TopQuery{Offset: 0, Limit: 0})
	assert.ErrorIs(t, err, leaderboard.ErrInvalidPage)
}

func TestManager_TopKLimitIsCapped(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.Config{NumShards: 2, TopK: 100}, leaderboard.WithMaxPageLimit(3))

	for i := 0; i < 10; i++ {
		require.NoError(t, mgr.UpdateUserRating(ctx, "u"+strconv.Itoa(i), float64(i), leaderboard.ScopeOptions{}))
	}

	top, err := mgr.TopK(ctx, leaderboard.TopQuery{Offset: 0, Limit: 50})
	require.NoError(t, err)
	assert.Len(t, top, 3, "limit must be capped at the configured maximum")
}

func TestManager_RankMonotonicityAndTies(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.Config{NumShards: 5, TopK: 100})

	require.NoError(t, mgr.UpdateUserRating(ctx, "high", 2000, leaderboard.ScopeOptions{}))
	require.NoError(t, mgr.UpdateUserRating(ctx, "mid-a", 1500, leaderboard.ScopeOptions{}))
	require.NoError(t, mgr.UpdateUserRating(ctx, "mid-b", 1500, leaderboard.ScopeOptions{}))
	require.NoError(t, mgr.UpdateUserRating(ctx, "low", 1000, leaderboard.ScopeOptions{}))

	rankOf := func(u string) int64 {
		res, err := mgr.UserRank(ctx, u, leaderboard.RankQuery{})
		require.NoError(t, err)
		return res.Rank
	}

	assert.Equal(t, int64(1), rankOf("high"))
	assert.Equal(t, int64(2), rankOf("mid-a"))
	assert.Equal(t, int64(2), rankOf("mid-b"), "equal ratings share a rank")
	assert.Equal(t, int64(4), rankOf("low"))
}

func TestManager_ScopedRankDispatch(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.Config{NumShards: 4, TopK: 100})

	kz := leaderboard.ScopeOptions{Country: "KZ"}
	de := leaderboard.ScopeOptions{Country: "DE"}

	require.NoError(t, mgr.UpdateUserRating(ctx, "a", 1800, kz))
	require.NoError(t, mgr.UpdateUserRating(ctx, "b", 1700, kz))
	require.NoError(t, mgr.UpdateUserRating(ctx, "c", 1900, de))

	// Globally "b" is third, but second within KZ.
	global, err := mgr.UserRank(ctx, "b", leaderboard.RankQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), global.Rank)

	scoped, err := mgr.UserRank(ctx, "b", leaderboard.RankQuery{Country: "KZ"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), scoped.Rank)
	assert.Equal(t, int64(1700), scoped.Score)
}

func TestManager_UnknownUserRankIsNotFound(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.Config{NumShards: 2, TopK: 10})

	_, err := mgr.UserRank(ctx, "ghost", leaderboard.RankQuery{})
	assert.ErrorIs(t, err, leaderboard.ErrUserNotFound)
}

func TestManager_EmptyScopeTopKIsEmptyNotError(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.Config{NumShards: 2, TopK: 10})

	top, err := mgr.TopK(ctx, leaderboard.TopQuery{Country: "ZZ", Offset: 0, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestManager_DailyViewExpires(t *testing.T) {
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	store, err := memory.NewScoreStore(memory.Config{NumShards: 2, TopK: 10, DailyTTL: time.Hour, Clock: clock})
	require.NoError(t, err)
	mgr, err := leaderboard.NewManager("blitz", store, leaderboard.WithClock(clock))
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateUserRating(ctx, "a", 1500, leaderboard.ScopeOptions{}))

	day := "20260301"
	top, err := mgr.TopK(ctx, leaderboard.TopQuery{Day: day, Offset: 0, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, top, 1)

	// Past the retention window the daily view is gone.
	current = current.Add(2 * time.Hour)
	top, err = mgr.TopK(ctx, leaderboard.TopQuery{Day: day, Offset: 0, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestManager_RepeatedIdenticalWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, memory.Config{NumShards: 2, TopK: 10})

	for i := 0; i < 3; i++ {
		require.NoError(t, mgr.UpdateUserRating(ctx, "a", 1600, leaderboard.ScopeOptions{}))
	}

	top, err := mgr.TopK(ctx, leaderboard.TopQuery{Offset: 0, Limit: 10})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 1600.0, top[0].Score)
}
