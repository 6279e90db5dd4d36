// Package ingest runs the event-consumption loop: it drains the durable
// queue, feeds match events to the processor, and owns the retry and
// dead-letter policy. Several workers may consume the same group
// concurrently; the processor's idempotency guard keeps that safe.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/arenaboard/arenaboard/internal/application/command"
	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
	"github.com/arenaboard/arenaboard/internal/infrastructure/metrics"
	"github.com/arenaboard/arenaboard/pkg/logger"
	"github.com/arenaboard/arenaboard/pkg/retry"
)

// Processor applies one parsed match event.
type Processor interface {
	Process(ctx context.Context, event *leaderboard.MatchEvent) (*command.Result, error)
}

// Config holds the worker parameters.
type Config struct {
	// BatchSize is how many messages one Read may deliver.
	BatchSize int64

	// MaxRetries bounds delivery attempts per logical event. An event failing
	// transiently on its MaxRetries-th attempt goes to the dead-letter stream.
	MaxRetries int

	// Logger is the structured logger; nil means the default logger.
	Logger *logger.Logger

	// Metrics is optional instrumentation.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the default worker parameters.
func DefaultConfig() Config {
	return Config{
		BatchSize:  10,
		MaxRetries: 3,
	}
}

// Worker is one consumer of the match event queue.
type Worker struct {
	queue     leaderboard.EventQueue
	processor Processor
	config    Config
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// NewWorker creates a Worker.
func NewWorker(queue leaderboard.EventQueue, processor Processor, cfg Config) (*Worker, error) {
	if queue == nil || processor == nil {
		return nil, errors.New("ingest: queue and processor are required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Worker{
		queue:     queue,
		processor: processor,
		config:    cfg,
		log:       log.With(logger.Component("ingest_worker")),
		metrics:   cfg.Metrics,
	}, nil
}

// Run consumes until ctx is cancelled. Read blocks inside the queue, so the
// loop spins only when messages flow.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		messages, err := w.queue.Read(ctx, w.config.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("queue read failed", logger.Err(err))
			// Back off briefly so a dead broker does not spin the loop.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range messages {
			w.handle(ctx, msg)
		}
	}
}

// handle runs one delivered message through the consumption state machine.
// Every path acknowledges the delivery: retries travel as fresh messages with
// an incremented tries counter, never as redeliveries of this one.
func (w *Worker) handle(ctx context.Context, msg leaderboard.QueueMessage) {
	defer w.ack(ctx, msg.ID)

	if msg.Type != leaderboard.EventTypeMatchResult {
		w.log.Debug("unrecognized message type dropped",
			logger.MessageID(msg.ID),
			logger.String("type", msg.Type),
		)
		return
	}

	event, err := leaderboard.ParseMatchEvent(msg.Payload)
	if err != nil {
		// Malformed events can never succeed; straight to the DLQ.
		w.deadLetter(ctx, msg, err, "validation")
		return
	}

	started := time.Now()
	result, err := w.processor.Process(ctx, event)
	if err != nil {
		if retry.IsPermanent(err) || errors.Is(err, leaderboard.ErrInvalidEvent) {
			w.deadLetter(ctx, msg, err, "validation")
			return
		}
		w.retryOrBury(ctx, msg, err)
		return
	}

	if result.Skipped {
		w.metrics.EventSkipped()
		return
	}
	w.metrics.EventProcessed(event.Mode, time.Since(started))
}

// retryOrBury re-publishes a transiently failed event with tries+1, or moves
// it to the DLQ once the attempt budget is spent.
func (w *Worker) retryOrBury(ctx context.Context, msg leaderboard.QueueMessage, cause error) {
	tries := msg.Tries + 1
	if tries >= w.config.MaxRetries {
		w.deadLetter(ctx, msg, cause, "transient")
		return
	}

	if _, err := w.queue.Publish(ctx, msg.Type, msg.Payload, tries); err != nil {
		w.log.Error("republish failed, message will be lost unless redelivered",
			logger.MessageID(msg.ID),
			logger.Tries(tries),
			logger.Err(err),
		)
		return
	}
	w.metrics.EventRetried()
	w.log.Warn("event retried",
		logger.MessageID(msg.ID),
		logger.Tries(tries),
		logger.Err(cause),
	)
}

func (w *Worker) deadLetter(ctx context.Context, msg leaderboard.QueueMessage, cause error, kind string) {
	w.metrics.EventFailed(kind)
	if err := w.queue.DeadLetter(ctx, msg, cause); err != nil {
		w.log.Error("dead-letter write failed",
			logger.MessageID(msg.ID),
			logger.Err(err),
		)
		return
	}
	w.metrics.DeadLettered()
	w.log.Warn("event dead-lettered",
		logger.MessageID(msg.ID),
		logger.Tries(msg.Tries),
		logger.String("kind", kind),
		logger.Err(cause),
	)
}

func (w *Worker) ack(ctx context.Context, id string) {
	if err := w.queue.Ack(ctx, id); err != nil {
		w.log.Error("ack failed", logger.MessageID(id), logger.Err(err))
	}
}
