package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenLimiter caps consumption of an arbitrary token budget per refill
// period (used for the Gemini token-per-minute quota).
type TokenLimiter struct {
	mu           sync.Mutex
	capacity     int
	remaining    int
	refillPeriod time.Duration
	lastRefill   time.Time
}

func NewTokenLimiter(tokensPerMinute int) *TokenLimiter {
	return &TokenLimiter{
		capacity:     tokensPerMinute,
		remaining:    tokensPerMinute,
		refillPeriod: time.Minute,
		lastRefill:   time.Now(),
	}
}

// Wait blocks until the budget can cover the requested tokens or the
// context is cancelled. Requests larger than the full capacity are
// admitted on a fresh budget rather than blocking forever.
func (l *TokenLimiter) Wait(ctx context.Context, tokens int) error {
	for {
		if l.tryTake(tokens) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (l *TokenLimiter) tryTake(tokens int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastRefill) >= l.refillPeriod {
		l.remaining = l.capacity
		l.lastRefill = now
	}

	if l.remaining >= tokens || l.remaining == l.capacity {
		l.remaining -= tokens
		if l.remaining < 0 {
			l.remaining = 0
		}
		return true
	}
	return false
}

func (l *TokenLimiter) GetRemaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining
}
