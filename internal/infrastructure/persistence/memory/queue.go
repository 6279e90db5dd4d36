package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
)

// Queue is an in-memory leaderboard.EventQueue for tests and development.
// Delivery is at-least-once within a single process: messages stay pending
// until acknowledged, and Read re-delivers nothing (like a consumer group
// reading only new entries).
type Queue struct {
	mu      sync.Mutex
	nextID  int64
	ready   []leaderboard.QueueMessage
	pending map[string]leaderboard.QueueMessage
	dead    []DeadLetter
	block   time.Duration
}

// DeadLetter is a terminally failed message with its captured error.
type DeadLetter struct {
	Msg   leaderboard.QueueMessage
	Cause string
}

// NewQueue creates an in-memory queue. block bounds how long Read waits for
// messages before returning an empty batch.
func NewQueue(block time.Duration) *Queue {
	if block <= 0 {
		block = 50 * time.Millisecond
	}
	return &Queue{
		pending: make(map[string]leaderboard.QueueMessage),
		block:   block,
	}
}

// Publish implements leaderboard.EventQueue.
func (q *Queue) Publish(ctx context.Context, msgType string, payload []byte, tries int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	id := strconv.FormatInt(q.nextID, 10)
	q.ready = append(q.ready, leaderboard.QueueMessage{
		ID:      id,
		Type:    msgType,
		Payload: payload,
		Tries:   tries,
	})
	return id, nil
}

// Read implements leaderboard.EventQueue.
func (q *Queue) Read(ctx context.Context, count int64) ([]leaderboard.QueueMessage, error) {
	if count <= 0 {
		count = 1
	}
	deadline := time.Now().Add(q.block)

	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			n := int(count)
			if n > len(q.ready) {
				n = len(q.ready)
			}
			batch := make([]leaderboard.QueueMessage, n)
			copy(batch, q.ready[:n])
			q.ready = q.ready[n:]
			for _, msg := range batch {
				q.pending[msg.ID] = msg
			}
			q.mu.Unlock()
			return batch, nil
		}
		q.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Ack implements leaderboard.EventQueue.
func (q *Queue) Ack(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[id]; !ok {
		return fmt.Errorf("memory queue: unknown message id %q", id)
	}
	delete(q.pending, id)
	return nil
}

// DeadLetter implements leaderboard.EventQueue.
func (q *Queue) DeadLetter(ctx context.Context, msg leaderboard.QueueMessage, cause error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	causeText := ""
	if cause != nil {
		causeText = cause.Error()
	}
	q.dead = append(q.dead, DeadLetter{Msg: msg, Cause: causeText})
	return nil
}

// DeadLetters returns a copy of the dead-letter log (tests).
func (q *Queue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DeadLetter, len(q.dead))
	copy(out, q.dead)
	return out
}

// PendingCount returns the number of delivered-but-unacked messages (tests).
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ReadyCount returns the number of not-yet-delivered messages (tests).
func (q *Queue) ReadyCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}
