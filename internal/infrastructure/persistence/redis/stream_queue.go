package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAM QUEUE CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// StreamQueueConfig holds the Redis Streams queue parameters.
type StreamQueueConfig struct {
	// Stream is the main event stream key.
	Stream string

	// DeadLetterStream is the DLQ stream key.
	DeadLetterStream string

	// Group is the consumer group name.
	Group string

	// Consumer is this process's consumer name within the group.
	Consumer string

	// Block is how long a Read blocks when no messages are pending.
	Block time.Duration

	// MaxLen approximately caps the stream length (XADD MAXLEN ~).
	MaxLen int64
}

// DefaultStreamQueueConfig returns the default queue configuration.
func DefaultStreamQueueConfig() StreamQueueConfig {
	return StreamQueueConfig{
		Stream:           "events:match_results",
		DeadLetterStream: "events:match_results:dead",
		Group:            "rank-workers",
		Consumer:         "worker-1",
		Block:            10 * time.Second,
		MaxLen:           10000,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAM QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// StreamQueue implements leaderboard.EventQueue on a Redis Stream with one
// consumer group. Retries are re-publishes with an incremented tries field;
// terminal failures land in a separate dead-letter stream.
type StreamQueue struct {
	client *Client
	config StreamQueueConfig
}

// NewStreamQueue creates the queue and its consumer group. Creating a group
// that already exists is not an error.
func NewStreamQueue(ctx context.Context, client *Client, cfg StreamQueueConfig) (*StreamQueue, error) {
	if cfg.Stream == "" || cfg.Group == "" || cfg.Consumer == "" {
		return nil, errors.New("stream queue: stream, group and consumer are required")
	}

	err := client.Redis().XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("stream queue: create group %s on %s: %w", cfg.Group, cfg.Stream, err)
	}

	return &StreamQueue{client: client, config: cfg}, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// Publish appends a message, trimming the stream to roughly MaxLen.
func (q *StreamQueue) Publish(ctx context.Context, msgType string, payload []byte, tries int) (string, error) {
	id, err := q.client.Redis().XAdd(ctx, &redis.XAddArgs{
		Stream: q.config.Stream,
		MaxLen: q.config.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    msgType,
			"payload": payload,
			"tries":   tries,
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("stream queue: publish to %s: %w", q.config.Stream, err)
	}
	return id, nil
}

// Read blocks up to the configured window for new messages addressed to this
// consumer. A timeout returns an empty slice and a nil error.
func (q *StreamQueue) Read(ctx context.Context, count int64) ([]leaderboard.QueueMessage, error) {
	streams, err := q.client.Redis().XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.config.Group,
		Consumer: q.config.Consumer,
		Streams:  []string{q.config.Stream, ">"},
		Count:    count,
		Block:    q.config.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []leaderboard.QueueMessage{}, nil
		}
		return nil, fmt.Errorf("stream queue: read from %s: %w", q.config.Stream, err)
	}

	var messages []leaderboard.QueueMessage
	for _, stream := range streams {
		for _, raw := range stream.Messages {
			messages = append(messages, decodeMessage(raw))
		}
	}
	return messages, nil
}

// Ack acknowledges a delivered message.
func (q *StreamQueue) Ack(ctx context.Context, id string) error {
	if err := q.client.Redis().XAck(ctx, q.config.Stream, q.config.Group, id).Err(); err != nil {
		return fmt.Errorf("stream queue: ack %s: %w", id, err)
	}
	return nil
}

// DeadLetter records a terminally failed message with its cause. The DLQ
// stream is uncapped; it is drained manually.
func (q *StreamQueue) DeadLetter(ctx context.Context, msg leaderboard.QueueMessage, cause error) error {
	causeText := ""
	if cause != nil {
		causeText = cause.Error()
	}
	err := q.client.Redis().XAdd(ctx, &redis.XAddArgs{
		Stream: q.config.DeadLetterStream,
		Values: map[string]interface{}{
			"type":      msg.Type,
			"payload":   msg.Payload,
			"tries":     msg.Tries,
			"origin_id": msg.ID,
			"error":     causeText,
			"failed_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("stream queue: dead-letter %s: %w", msg.ID, err)
	}
	return nil
}

// decodeMessage maps raw stream fields onto a QueueMessage. Missing or
// malformed fields degrade to zero values; the consumer's validation step
// handles the rest.
func decodeMessage(raw redis.XMessage) leaderboard.QueueMessage {
	msg := leaderboard.QueueMessage{ID: raw.ID}

	if v, ok := raw.Values["type"].(string); ok {
		msg.Type = v
	}
	if v, ok := raw.Values["payload"].(string); ok {
		msg.Payload = []byte(v)
	}
	if v, ok := raw.Values["tries"].(string); ok {
		if n, err := strconv.Atoi(v); err == nil {
			msg.Tries = n
		}
	}
	return msg
}

var _ leaderboard.EventQueue = (*StreamQueue)(nil)
