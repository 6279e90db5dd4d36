package leaderboard

import "context"

// EventTypeMatchResult is the queue message type carrying a match event.
const EventTypeMatchResult = "game_result"

// QueueMessage is one delivered message from the event queue.
type QueueMessage struct {
	// ID is the queue-assigned delivery id used for acknowledgement.
	ID string

	// Type discriminates payloads; unrecognized types are dropped by consumers.
	Type string

	// Payload is the JSON-encoded event.
	Payload []byte

	// Tries counts prior delivery attempts of this logical event.
	Tries int
}

// EventQueue is a durable, partitioned, at-least-once message log with
// consumer-group semantics. A crash between successful processing and Ack
// causes redelivery; the processor's dedup step is the safety net.
type EventQueue interface {
	// Publish appends a message to the log and returns its id. Tries carries
	// the retry counter for re-published messages; zero for fresh events.
	Publish(ctx context.Context, msgType string, payload []byte, tries int) (string, error)

	// Read delivers up to count pending messages for this consumer, blocking
	// up to the queue's configured timeout when none are available. An empty
	// slice with a nil error means the block timed out.
	Read(ctx context.Context, count int64) ([]QueueMessage, error)

	// Ack removes a delivered message from this consumer group's pending set.
	Ack(ctx context.Context, id string) error

	// DeadLetter appends the message and its terminal error to the
	// dead-letter log for manual inspection.
	DeadLetter(ctx context.Context, msg QueueMessage, cause error) error
}
