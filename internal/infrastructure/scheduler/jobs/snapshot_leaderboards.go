package jobs

import (
	"context"
	"time"
)

// SnapshotSource captures one mode's current top slice into timestamped
// history. redis.Snapshots implements it.
type SnapshotSource interface {
	Take(ctx context.Context, mode string, limit int64, at time.Time) (int, error)
}

// SnapshotLeaderboards periodically copies each mode's live top-K into a
// timestamped history key.
type SnapshotLeaderboards struct {
	source SnapshotSource
	modes  []string
	limit  int64
	now    func() time.Time
}

// NewSnapshotLeaderboards creates the job.
func NewSnapshotLeaderboards(source SnapshotSource, modes []string, limit int64) *SnapshotLeaderboards {
	return &SnapshotLeaderboards{
		source: source,
		modes:  modes,
		limit:  limit,
		now:    time.Now,
	}
}

// Name implements scheduler.Job.
func (j *SnapshotLeaderboards) Name() string {
	return "snapshot_leaderboards"
}

// Description implements scheduler.Job.
func (j *SnapshotLeaderboards) Description() string {
	return "Copies each mode's live top-K view into a timestamped history key"
}

// Run implements scheduler.Job. Every mode is attempted even when one fails;
// all snapshots of one run share a single timestamp.
func (j *SnapshotLeaderboards) Run(ctx context.Context) error {
	at := j.now().UTC()

	var firstErr error
	for _, mode := range j.modes {
		if _, err := j.source.Take(ctx, mode, j.limit, at); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
