package memory

import (
	"context"
	"sync"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
)

// RatingRepository is an in-memory leaderboard.RatingRepository.
type RatingRepository struct {
	mu      sync.RWMutex
	ratings map[ratingKey]float64
}

type ratingKey struct {
	mode   string
	userID string
}

// NewRatingRepository creates an empty rating repository.
func NewRatingRepository() *RatingRepository {
	return &RatingRepository{ratings: make(map[ratingKey]float64)}
}

// Upsert implements leaderboard.RatingRepository.
func (r *RatingRepository) Upsert(ctx context.Context, mode, userID string, ratingValue float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ratings[ratingKey{mode, userID}] = ratingValue
	return nil
}

// Get implements leaderboard.RatingRepository.
func (r *RatingRepository) Get(ctx context.Context, mode, userID string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.ratings[ratingKey{mode, userID}]
	if !ok {
		return 0, leaderboard.ErrUserNotFound
	}
	return v, nil
}

// MatchResultRepository is an in-memory leaderboard.MatchResultRepository.
type MatchResultRepository struct {
	mu      sync.Mutex
	records []leaderboard.MatchResultRecord
}

// NewMatchResultRepository creates an empty match-result repository.
func NewMatchResultRepository() *MatchResultRepository {
	return &MatchResultRepository{}
}

// Insert implements leaderboard.MatchResultRepository.
func (r *MatchResultRepository) Insert(ctx context.Context, record *leaderboard.MatchResultRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *record)
	return nil
}

// Records returns a copy of all inserted records (tests).
func (r *MatchResultRepository) Records() []leaderboard.MatchResultRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]leaderboard.MatchResultRecord, len(r.records))
	copy(out, r.records)
	return out
}
