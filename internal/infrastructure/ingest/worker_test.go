package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenaboard/arenaboard/internal/application/command"
	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
	"github.com/arenaboard/arenaboard/internal/infrastructure/persistence/memory"
)

func newTestProcessor(t *testing.T) (*command.Processor, *memory.MatchResultRepository) {
	t.Helper()

	store, err := memory.NewScoreStore(memory.Config{NumShards: 2, TopK: 10})
	require.NoError(t, err)
	resolver, err := command.NewStoreResolver(store, nil)
	require.NoError(t, err)
	results := memory.NewMatchResultRepository()

	processor, err := command.NewProcessor(
		resolver,
		memory.NewIdempotencyGuard(time.Hour),
		memory.NewRatingRepository(),
		results,
		command.ProcessorConfig{},
	)
	require.NoError(t, err)
	return processor, results
}

func validPayload(t *testing.T, id string) []byte {
	t.Helper()
	payload, err := json.Marshal(&leaderboard.MatchEvent{
		Mode:    "ranked",
		EventID: id,
		Players: []leaderboard.PlayerScore{
			{UserID: "alice", Score: 10},
			{UserID: "bob", Score: 5},
		},
	})
	require.NoError(t, err)
	return payload
}

func drainOnce(t *testing.T, w *Worker, q *memory.Queue) {
	t.Helper()
	ctx := context.Background()
	messages, err := q.Read(ctx, 10)
	require.NoError(t, err)
	for _, msg := range messages {
		w.handle(ctx, msg)
	}
}

func TestWorker_ProcessesAndAcks(t *testing.T) {
	ctx := context.Background()
	queue := memory.NewQueue(10 * time.Millisecond)
	processor, results := newTestProcessor(t)

	worker, err := NewWorker(queue, processor, Config{})
	require.NoError(t, err)

	_, err = queue.Publish(ctx, leaderboard.EventTypeMatchResult, validPayload(t, "evt-1"), 0)
	require.NoError(t, err)

	drainOnce(t, worker, queue)

	assert.Len(t, results.Records(), 1)
	assert.Zero(t, queue.PendingCount())
	assert.Zero(t, queue.ReadyCount())
	assert.Empty(t, queue.DeadLetters())
}

func TestWorker_UnrecognizedTypeIsDropped(t *testing.T) {
	ctx := context.Background()
	queue := memory.NewQueue(10 * time.Millisecond)
	processor, results := newTestProcessor(t)

	worker, err := NewWorker(queue, processor, Config{})
	require.NoError(t, err)

	_, err = queue.Publish(ctx, "chat_message", []byte(`{"text":"gg"}`), 0)
	require.NoError(t, err)

	drainOnce(t, worker, queue)

	assert.Empty(t, results.Records())
	assert.Zero(t, queue.PendingCount())
	assert.Empty(t, queue.DeadLetters())
}

func TestWorker_MalformedEventGoesStraightToDLQ(t *testing.T) {
	ctx := context.Background()
	queue := memory.NewQueue(10 * time.Millisecond)
	processor, _ := newTestProcessor(t)

	worker, err := NewWorker(queue, processor, Config{})
	require.NoError(t, err)

	// One player only: fails validation, is never retried.
	payload, err := json.Marshal(&leaderboard.MatchEvent{
		Mode:    "ranked",
		EventID: "evt-bad",
		Players: []leaderboard.PlayerScore{{UserID: "alice", Score: 1}},
	})
	require.NoError(t, err)
	_, err = queue.Publish(ctx, leaderboard.EventTypeMatchResult, payload, 0)
	require.NoError(t, err)

	drainOnce(t, worker, queue)

	dead := queue.DeadLetters()
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0].Cause, "two players")
	assert.Zero(t, queue.ReadyCount())
}

// flakyProcessor fails every attempt with a transient error.
type flakyProcessor struct {
	calls int
}

func (p *flakyProcessor) Process(ctx context.Context, event *leaderboard.MatchEvent) (*command.Result, error) {
	p.calls++
	return nil, errors.New("redis timeout")
}

func TestWorker_TransientFailureRetriesThenBuries(t *testing.T) {
	ctx := context.Background()
	queue := memory.NewQueue(10 * time.Millisecond)
	processor := &flakyProcessor{}

	worker, err := NewWorker(queue, processor, Config{MaxRetries: 3})
	require.NoError(t, err)

	_, err = queue.Publish(ctx, leaderboard.EventTypeMatchResult, validPayload(t, "evt-flaky"), 0)
	require.NoError(t, err)

	// Attempt 1 and 2 republish with an incremented counter; attempt 3
	// exhausts the budget.
	for i := 0; i < 3; i++ {
		drainOnce(t, worker, queue)
	}

	assert.Equal(t, 3, processor.calls)
	dead := queue.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, 2, dead[0].Msg.Tries)
	assert.Zero(t, queue.ReadyCount())
	assert.Zero(t, queue.PendingCount())
}

func TestWorker_DuplicateDeliveryIsSkippedNotReapplied(t *testing.T) {
	ctx := context.Background()
	queue := memory.NewQueue(10 * time.Millisecond)
	processor, results := newTestProcessor(t)

	worker, err := NewWorker(queue, processor, Config{})
	require.NoError(t, err)

	payload := validPayload(t, "evt-dup")
	_, err = queue.Publish(ctx, leaderboard.EventTypeMatchResult, payload, 0)
	require.NoError(t, err)
	_, err = queue.Publish(ctx, leaderboard.EventTypeMatchResult, payload, 0)
	require.NoError(t, err)

	drainOnce(t, worker, queue)

	assert.Len(t, results.Records(), 1)
	assert.Empty(t, queue.DeadLetters())
}
