package redis

import (
	"context"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// IDEMPOTENCY GUARD
// ══════════════════════════════════════════════════════════════════════════════

// keyIdempotency prefixes the per-event dedup markers.
const keyIdempotency = "event:idem:"

// IdempotencyGuard implements leaderboard.IdempotencyGuard with SET NX EX.
// The marker is written before the event is applied, so a crash mid-apply
// leaves the marker set and the redelivered event is skipped rather than
// double-applied.
type IdempotencyGuard struct {
	client *Client
	ttl    time.Duration
}

// NewIdempotencyGuard creates a guard whose markers live for ttl.
func NewIdempotencyGuard(client *Client, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{client: client, ttl: ttl}
}

// MarkIfAbsent records eventID once per dedup window. Returns true when this
// call claimed the id, false when it was already claimed.
func (g *IdempotencyGuard) MarkIfAbsent(ctx context.Context, eventID string) (bool, error) {
	claimed, err := g.client.Redis().SetNX(ctx, keyIdempotency+eventID, "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: mark %s: %w", eventID, err)
	}
	return claimed, nil
}
