package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH RESULT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// MatchResultRepository implements leaderboard.MatchResultRepository over the
// append-only match_results table. The primary key is the event id, so a
// replayed event degrades to a no-op insert instead of a duplicate row.
type MatchResultRepository struct {
	conn *Connection
}

// NewMatchResultRepository creates a match result repository.
func NewMatchResultRepository(conn *Connection) *MatchResultRepository {
	return &MatchResultRepository{conn: conn}
}

const insertMatchResultQuery = `
	INSERT INTO match_results (
		event_id, mode,
		user_a, score_a, old_rating_a, new_rating_a,
		user_b, score_b, old_rating_b, new_rating_b,
		country_code, region, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (event_id) DO NOTHING
`

// Insert appends one audit row for a processed event.
func (r *MatchResultRepository) Insert(ctx context.Context, record *leaderboard.MatchResultRecord) error {
	if record == nil {
		return fmt.Errorf("match result repo: nil record")
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	a, b := record.Players[0], record.Players[1]
	_, err := r.conn.Exec(ctx, insertMatchResultQuery,
		record.ID, record.Mode,
		a.UserID, a.Score, a.OldRating, a.NewRating,
		b.UserID, b.Score, b.OldRating, b.NewRating,
		nullable(record.Country), nullable(record.Region), createdAt,
	)
	if err != nil {
		return fmt.Errorf("match result repo: insert %s: %w", record.ID, err)
	}
	return nil
}

// RecentByUser returns the newest match rows involving a user, newest first.
func (r *MatchResultRepository) RecentByUser(ctx context.Context, mode, userID string, limit int) ([]leaderboard.MatchResultRecord, error) {
	const query = `
		SELECT event_id, mode,
		       user_a, score_a, old_rating_a, new_rating_a,
		       user_b, score_b, old_rating_b, new_rating_b,
		       COALESCE(country_code, ''), COALESCE(region, ''), created_at
		FROM match_results
		WHERE mode = $1 AND (user_a = $2 OR user_b = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.conn.Query(ctx, query, mode, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("match result repo: recent for %s/%s: %w", mode, userID, err)
	}
	defer rows.Close()

	var records []leaderboard.MatchResultRecord
	for rows.Next() {
		var rec leaderboard.MatchResultRecord
		a := &rec.Players[0]
		b := &rec.Players[1]
		if err := rows.Scan(
			&rec.ID, &rec.Mode,
			&a.UserID, &a.Score, &a.OldRating, &a.NewRating,
			&b.UserID, &b.Score, &b.OldRating, &b.NewRating,
			&rec.Country, &rec.Region, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("match result repo: scan: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// nullable maps an empty string to a SQL NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

var _ leaderboard.MatchResultRepository = (*MatchResultRepository)(nil)
