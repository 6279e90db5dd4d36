package postgres

import (
	"context"
	"fmt"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATING REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// RatingRepository implements leaderboard.RatingRepository over the ratings
// table. One row per (mode, user); last write wins.
type RatingRepository struct {
	conn *Connection
}

// NewRatingRepository creates a rating repository.
func NewRatingRepository(conn *Connection) *RatingRepository {
	return &RatingRepository{conn: conn}
}

const upsertRatingQuery = `
	INSERT INTO ratings (mode, user_id, rating, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (mode, user_id)
	DO UPDATE SET rating = EXCLUDED.rating, updated_at = NOW()
`

// Upsert creates or replaces the rating row for (mode, userID).
func (r *RatingRepository) Upsert(ctx context.Context, mode, userID string, ratingValue float64) error {
	if _, err := r.conn.Exec(ctx, upsertRatingQuery, mode, userID, ratingValue); err != nil {
		return fmt.Errorf("rating repo: upsert %s/%s: %w", mode, userID, err)
	}
	return nil
}

const getRatingQuery = `
	SELECT rating FROM ratings WHERE mode = $1 AND user_id = $2
`

// Get returns the durable rating for (mode, userID).
func (r *RatingRepository) Get(ctx context.Context, mode, userID string) (float64, error) {
	var rating float64
	err := r.conn.QueryRow(ctx, getRatingQuery, mode, userID).Scan(&rating)
	if err != nil {
		if IsNoRows(err) {
			return 0, leaderboard.ErrUserNotFound
		}
		return 0, fmt.Errorf("rating repo: get %s/%s: %w", mode, userID, err)
	}
	return rating, nil
}

var _ leaderboard.RatingRepository = (*RatingRepository)(nil)
