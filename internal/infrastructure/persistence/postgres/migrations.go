package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in apply order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_ratings",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_match_results",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}

// Migration 001: ratings. One row per (mode, user); the durable copy of the
// live rating, from which the Redis views can be rebuilt.
const migration001Up = `
CREATE TABLE IF NOT EXISTS ratings (
    mode        TEXT NOT NULL,
    user_id     TEXT NOT NULL,
    rating      DOUBLE PRECISION NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (mode, user_id)
);

CREATE INDEX IF NOT EXISTS idx_ratings_mode_rating
    ON ratings (mode, rating DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS ratings;
`

// Migration 002: match_results. Append-only audit log, one row per processed
// event, keyed by the event id so a replayed event cannot insert twice.
const migration002Up = `
CREATE TABLE IF NOT EXISTS match_results (
    event_id     TEXT PRIMARY KEY,
    mode         TEXT NOT NULL,
    user_a       TEXT NOT NULL,
    score_a      DOUBLE PRECISION NOT NULL,
    old_rating_a DOUBLE PRECISION NOT NULL,
    new_rating_a DOUBLE PRECISION NOT NULL,
    user_b       TEXT NOT NULL,
    score_b      DOUBLE PRECISION NOT NULL,
    old_rating_b DOUBLE PRECISION NOT NULL,
    new_rating_b DOUBLE PRECISION NOT NULL,
    country_code TEXT,
    region       TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_match_results_mode_created
    ON match_results (mode, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_match_results_user_a
    ON match_results (user_a);

CREATE INDEX IF NOT EXISTS idx_match_results_user_b
    ON match_results (user_b);
`

const migration002Down = `
DROP TABLE IF EXISTS match_results;
`
