// Package rating implements the Elo rating computation for match outcomes.
// The engine is a pure function of the two players' prior ratings and their
// literal match scores; it holds no state and performs no I/O.
package rating

import (
	"errors"
	"math"
)

// Default engine parameters.
const (
	// DefaultK is the K-factor applied to each update.
	DefaultK = 32

	// DefaultBase is the rating assigned to a player never seen before.
	DefaultBase = 1500

	// spreadDivisor controls how rating difference maps to expected score.
	spreadDivisor = 400
)

var (
	// ErrInvalidInput is returned when a rating or score is NaN or infinite.
	ErrInvalidInput = errors.New("rating: input must be a finite number")

	// ErrInvalidK is returned when the K-factor is not a positive finite number.
	ErrInvalidK = errors.New("rating: k-factor must be positive and finite")
)

// Outcome is the match result from player A's perspective.
type Outcome float64

const (
	// OutcomeLoss means player A scored lower than player B.
	OutcomeLoss Outcome = 0
	// OutcomeDraw means both players scored exactly the same.
	OutcomeDraw Outcome = 0.5
	// OutcomeWin means player A scored higher than player B.
	OutcomeWin Outcome = 1
)

// OutcomeOf derives the outcome for player A from the two literal match scores.
func OutcomeOf(scoreA, scoreB float64) Outcome {
	switch {
	case scoreA > scoreB:
		return OutcomeWin
	case scoreA < scoreB:
		return OutcomeLoss
	default:
		return OutcomeDraw
	}
}

// Expected returns the expected score of a player rated `own` against a player
// rated `opponent`: 1 / (1 + 10^((opponent-own)/400)).
func Expected(own, opponent float64) float64 {
	return 1 / (1 + math.Pow(10, (opponent-own)/spreadDivisor))
}

// Compute returns the updated ratings for both players of a match.
// scoreA and scoreB are the literal match scores; the outcome is derived from
// their comparison (win/loss/draw). The update is zero-sum: A's gain equals
// B's loss exactly.
func Compute(oldA, oldB, scoreA, scoreB, k float64) (newA, newB float64, err error) {
	for _, v := range [...]float64{oldA, oldB, scoreA, scoreB} {
		if !isFinite(v) {
			return 0, 0, ErrInvalidInput
		}
	}
	if k <= 0 || !isFinite(k) {
		return 0, 0, ErrInvalidK
	}

	outA := OutcomeOf(scoreA, scoreB)
	outB := 1 - outA

	expA := Expected(oldA, oldB)
	expB := Expected(oldB, oldA)

	newA = oldA + k*(float64(outA)-expA)
	newB = oldB + k*(float64(outB)-expB)
	return newA, newB, nil
}

// ComputeDefault is Compute with the default K-factor.
func ComputeDefault(oldA, oldB, scoreA, scoreB float64) (newA, newB float64, err error) {
	return Compute(oldA, oldB, scoreA, scoreB, DefaultK)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
