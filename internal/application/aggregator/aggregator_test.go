package aggregator_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenaboard/arenaboard/internal/application/aggregator"
	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
)

// fakePartition serves a fixed slice, optionally failing every call.
type fakePartition struct {
	name    string
	entries []leaderboard.Entry
	err     error
}

func (p *fakePartition) Name() string { return p.name }

func (p *fakePartition) Top(ctx context.Context, mode string, limit int64) ([]leaderboard.Entry, error) {
	if p.err != nil {
		return nil, p.err
	}
	if limit < int64(len(p.entries)) {
		return p.entries[:limit], nil
	}
	return p.entries, nil
}

// fakeCombiner accumulates staged slices and materializes merges in memory.
type fakeCombiner struct {
	mu         sync.Mutex
	stages     map[string][]leaderboard.Entry
	merged     map[string][]leaderboard.Entry
	blockStage chan struct{}
}

func newFakeCombiner() *fakeCombiner {
	return &fakeCombiner{
		stages: make(map[string][]leaderboard.Entry),
		merged: make(map[string][]leaderboard.Entry),
	}
}

func (c *fakeCombiner) Stage(ctx context.Context, mode, partition string, runStamp int64, entries []leaderboard.Entry) (string, error) {
	if c.blockStage != nil {
		<-c.blockStage
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := fmt.Sprintf("agg:%s:%s:%d", mode, partition, runStamp)
	namespaced := make([]leaderboard.Entry, len(entries))
	for i, e := range entries {
		namespaced[i] = leaderboard.Entry{UserID: partition + ":" + e.UserID, Score: e.Score}
	}
	c.stages[key] = namespaced
	return key, nil
}

func (c *fakeCombiner) Merge(ctx context.Context, mode string, stagedKeys []string, topK int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var union []leaderboard.Entry
	for _, key := range stagedKeys {
		union = append(union, c.stages[key]...)
		delete(c.stages, key)
	}
	sort.Slice(union, func(i, j int) bool { return union[i].Score > union[j].Score })
	if int64(len(union)) > topK {
		union = union[:topK]
	}
	c.merged[mode] = union
	return nil
}

func (c *fakeCombiner) Merged(ctx context.Context, mode string, limit int64) ([]leaderboard.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := c.merged[mode]
	if limit < int64(len(merged)) {
		merged = merged[:limit]
	}
	return merged, nil
}

func (c *fakeCombiner) mergedFor(mode string) []leaderboard.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.merged[mode]
}

func entries(prefix string, scores ...float64) []leaderboard.Entry {
	out := make([]leaderboard.Entry, len(scores))
	for i, s := range scores {
		out[i] = leaderboard.Entry{UserID: fmt.Sprintf("%s%d", prefix, i), Score: s}
	}
	return out
}

func TestAggregator_MergesPartitionsDescending(t *testing.T) {
	ctx := context.Background()
	combiner := newFakeCombiner()

	agg, err := aggregator.New(combiner, []aggregator.Partition{
		&fakePartition{name: "KZ", entries: entries("kz", 1900, 1500)},
		&fakePartition{name: "DE", entries: entries("de", 1800, 1600)},
	}, aggregator.Config{Modes: []string{"ranked"}, TopK: 3})
	require.NoError(t, err)

	require.NoError(t, agg.RunOnce(ctx))

	merged := combiner.mergedFor("ranked")
	require.Len(t, merged, 3)
	assert.Equal(t, "KZ:kz0", merged[0].UserID)
	assert.Equal(t, "DE:de0", merged[1].UserID)
	assert.Equal(t, "DE:de1", merged[2].UserID)
}

func TestAggregator_DeadPartitionIsTolerated(t *testing.T) {
	ctx := context.Background()
	combiner := newFakeCombiner()

	agg, err := aggregator.New(combiner, []aggregator.Partition{
		&fakePartition{name: "KZ", entries: entries("kz", 1900)},
		&fakePartition{name: "DE", err: errors.New("connection refused")},
	}, aggregator.Config{Modes: []string{"ranked"}, TopK: 10})
	require.NoError(t, err)

	require.NoError(t, agg.RunOnce(ctx))

	merged := combiner.mergedFor("ranked")
	require.Len(t, merged, 1)
	assert.Equal(t, "KZ:kz0", merged[0].UserID)
}

func TestAggregator_AllPartitionsDeadKeepsPreviousView(t *testing.T) {
	ctx := context.Background()
	combiner := newFakeCombiner()
	combiner.merged["ranked"] = entries("old", 1000)

	agg, err := aggregator.New(combiner, []aggregator.Partition{
		&fakePartition{name: "KZ", err: errors.New("down")},
	}, aggregator.Config{Modes: []string{"ranked"}, TopK: 10})
	require.NoError(t, err)

	require.NoError(t, agg.RunOnce(ctx))
	assert.Len(t, combiner.mergedFor("ranked"), 1)
}

// sinkPartition additionally records fanned-out merged views.
type sinkPartition struct {
	fakePartition
	mu       sync.Mutex
	received []leaderboard.Entry
}

func (p *sinkPartition) ReplaceMerged(ctx context.Context, mode string, entries []leaderboard.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = entries
	return nil
}

func TestAggregator_FansMergedViewBackToPartitions(t *testing.T) {
	ctx := context.Background()
	combiner := newFakeCombiner()

	kz := &sinkPartition{fakePartition: fakePartition{name: "KZ", entries: entries("kz", 1900)}}
	de := &sinkPartition{fakePartition: fakePartition{name: "DE", entries: entries("de", 1800)}}

	agg, err := aggregator.New(combiner, []aggregator.Partition{kz, de},
		aggregator.Config{Modes: []string{"ranked"}, TopK: 10})
	require.NoError(t, err)

	require.NoError(t, agg.RunOnce(ctx))

	require.Len(t, kz.received, 2)
	assert.Equal(t, kz.received, de.received)
	assert.Equal(t, "KZ:kz0", kz.received[0].UserID)
}

func TestAggregator_RunsDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	combiner := newFakeCombiner()
	combiner.blockStage = make(chan struct{})

	agg, err := aggregator.New(combiner, []aggregator.Partition{
		&fakePartition{name: "KZ", entries: entries("kz", 1900)},
	}, aggregator.Config{Modes: []string{"ranked"}, TopK: 10})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- agg.RunOnce(ctx) }()

	// Second run while the first is blocked inside Stage.
	assert.Eventually(t, func() bool {
		return errors.Is(agg.RunOnce(ctx), aggregator.ErrRunInProgress)
	}, time.Second, 5*time.Millisecond)

	close(combiner.blockStage)
	require.NoError(t, <-done)
}
