package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotSource struct {
	taken   map[string]time.Time
	limits  map[string]int64
	failFor string
}

func newFakeSnapshotSource() *fakeSnapshotSource {
	return &fakeSnapshotSource{
		taken:  make(map[string]time.Time),
		limits: make(map[string]int64),
	}
}

func (s *fakeSnapshotSource) Take(ctx context.Context, mode string, limit int64, at time.Time) (int, error) {
	if mode == s.failFor {
		return 0, errors.New("partition down")
	}
	s.taken[mode] = at
	s.limits[mode] = limit
	return 3, nil
}

func TestSnapshotLeaderboards_SnapshotsEveryModeWithOneStamp(t *testing.T) {
	source := newFakeSnapshotSource()
	job := NewSnapshotLeaderboards(source, []string{"ranked", "blitz"}, 100)

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, source.taken, 2)
	assert.Equal(t, source.taken["ranked"], source.taken["blitz"])
	assert.Equal(t, int64(100), source.limits["ranked"])
}

func TestSnapshotLeaderboards_FailedModeDoesNotStopTheOthers(t *testing.T) {
	source := newFakeSnapshotSource()
	source.failFor = "ranked"
	job := NewSnapshotLeaderboards(source, []string{"ranked", "blitz"}, 100)

	err := job.Run(context.Background())
	require.Error(t, err)

	_, ok := source.taken["blitz"]
	assert.True(t, ok)
}
