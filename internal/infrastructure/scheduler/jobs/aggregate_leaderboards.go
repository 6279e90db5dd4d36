// Package jobs contains the scheduled jobs of the ranking pipeline.
package jobs

import (
	"context"
	"errors"

	"github.com/arenaboard/arenaboard/internal/application/aggregator"
)

// AggregateLeaderboards periodically merges per-partition top slices into
// the global aggregate view.
type AggregateLeaderboards struct {
	agg *aggregator.Aggregator
}

// NewAggregateLeaderboards creates the job.
func NewAggregateLeaderboards(agg *aggregator.Aggregator) *AggregateLeaderboards {
	return &AggregateLeaderboards{agg: agg}
}

// Name implements scheduler.Job.
func (j *AggregateLeaderboards) Name() string {
	return "aggregate_leaderboards"
}

// Description implements scheduler.Job.
func (j *AggregateLeaderboards) Description() string {
	return "Merges per-country leaderboard partitions into the global top-K view"
}

// Run implements scheduler.Job. A tick landing while the previous run is
// still active is skipped, not an error.
func (j *AggregateLeaderboards) Run(ctx context.Context) error {
	err := j.agg.RunOnce(ctx)
	if errors.Is(err, aggregator.ErrRunInProgress) {
		return nil
	}
	return err
}
