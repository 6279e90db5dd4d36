package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_WinnerGainsLoserLoses(t *testing.T) {
	cases := []struct {
		name       string
		oldA, oldB float64
	}{
		{"equal ratings", 1500, 1500},
		{"favourite wins", 1800, 1400},
		{"underdog wins", 1200, 1900},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			newA, newB, err := ComputeDefault(tc.oldA, tc.oldB, 10, 5)
			require.NoError(t, err)

			assert.Greater(t, newA, tc.oldA, "winner must gain")
			assert.Less(t, newB, tc.oldB, "loser must lose")

			// Zero-sum: A's gain equals B's loss.
			assert.InDelta(t, newA-tc.oldA, -(newB - tc.oldB), 1e-9)
		})
	}
}

func TestCompute_EqualRatingsTieIsExactNoOp(t *testing.T) {
	newA, newB, err := ComputeDefault(1500, 1500, 7, 7)
	require.NoError(t, err)

	// Expected score is exactly 0.5 for both, so a draw changes nothing.
	assert.Equal(t, 1500.0, newA)
	assert.Equal(t, 1500.0, newB)
}

func TestCompute_ReferenceScenario(t *testing.T) {
	// 1500 vs 1500, scores 1200/900, k=32: expected 0.5 each,
	// winner moves to ~1516, loser to ~1484.
	newA, newB, err := Compute(1500, 1500, 1200, 900, 32)
	require.NoError(t, err)

	assert.InDelta(t, 1516, newA, 1e-9)
	assert.InDelta(t, 1484, newB, 1e-9)
}

func TestCompute_RejectsNonFiniteInput(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, _, err := ComputeDefault(bad, 1500, 1, 0)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, _, err = ComputeDefault(1500, 1500, bad, 0)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}

	_, _, err := Compute(1500, 1500, 1, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, _, err = Compute(1500, 1500, 1, 0, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeWin, OutcomeOf(10, 3))
	assert.Equal(t, OutcomeLoss, OutcomeOf(3, 10))
	assert.Equal(t, OutcomeDraw, OutcomeOf(4, 4))
}

func TestExpected_SumsToOne(t *testing.T) {
	pairs := [][2]float64{{1500, 1500}, {2000, 1000}, {1234, 1789}}
	for _, p := range pairs {
		sum := Expected(p[0], p[1]) + Expected(p[1], p[0])
		assert.InDelta(t, 1.0, sum, 1e-12)
	}
}
