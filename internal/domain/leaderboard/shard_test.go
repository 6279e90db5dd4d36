package leaderboard

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignment_RejectsNonPositiveCount(t *testing.T) {
	_, err := NewAssignment(0)
	assert.ErrorIs(t, err, ErrInvalidShardCount)

	_, err = NewAssignment(-3)
	assert.ErrorIs(t, err, ErrInvalidShardCount)
}

func TestAssignment_NumericIDsUseModulo(t *testing.T) {
	assign, err := NewAssignment(10)
	require.NoError(t, err)

	assert.Equal(t, 7, assign.Shard("7"))
	assert.Equal(t, 7, assign.Shard("1337"))
	assert.Equal(t, 0, assign.Shard("0"))
	assert.Equal(t, 0, assign.Shard("1000"))
}

func TestAssignment_StringFallbackIsStable(t *testing.T) {
	assign, err := NewAssignment(8)
	require.NoError(t, err)

	first := assign.Shard("player-alpha")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, assign.Shard("player-alpha"))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 8)
}

func TestAssignment_CoversAllShards(t *testing.T) {
	assign, err := NewAssignment(4)
	require.NoError(t, err)

	hit := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		hit[assign.Shard(strconv.Itoa(i))] = true
	}
	assert.Len(t, hit, 4)
}
