package memory

import (
	"context"
	"sync"
	"time"
)

// IdempotencyGuard is an in-memory leaderboard.IdempotencyGuard with a
// fixed dedup window.
type IdempotencyGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewIdempotencyGuard creates a guard with the given dedup window.
func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyGuard{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// SetClock overrides the time source (tests).
func (g *IdempotencyGuard) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// MarkIfAbsent implements leaderboard.IdempotencyGuard.
func (g *IdempotencyGuard) MarkIfAbsent(ctx context.Context, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.seen[eventID]; ok && now.Before(exp) {
		return false, nil
	}
	g.seen[eventID] = now.Add(g.ttl)
	return true, nil
}
