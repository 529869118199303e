// Package resilience implements the rate limiter and circuit breaker
// primitives the client executor's preflight stage consults before every
// attempt, per spec.md §4.4. Both are hand-rolled rather than built on
// golang.org/x/time/rate: that library has no hook for the adaptive
// external-budget override this package needs (providers report their
// own remaining-request budget in response headers, and the limiter
// must yield to that number rather than its own internal estimate).
package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter with an adaptive external
// override: when a provider response reports its own remaining budget
// and reset time via headers, AdaptBudget caps the bucket's tokens at
// that figure (it never raises them), and a reported zero blocks the
// limiter until the reset time, so a provider-side 429 is reflected
// immediately instead of after the bucket drains on its own schedule.
type RateLimiter struct {
	mu sync.Mutex

	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time

	blockedUntil time.Time
	now          func() time.Time
}

// NewRateLimiter returns a limiter with the given bucket capacity and
// steady-state refill rate (requests per second). The bucket starts
// full.
func NewRateLimiter(capacity, refillPerSecond float64) *RateLimiter {
	return &RateLimiter{
		capacity:   capacity,
		refillRate: refillPerSecond,
		tokens:     capacity,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow reports whether a request may proceed right now, consuming one
// token if so. It does not block; callers that need to wait should use
// Wait.
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	if l.blocked() {
		return false
	}
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// RetryAfter returns how long the caller should wait before the next
// token becomes available, or a blocked_until deadline set by AdaptBudget
// takes precedence if it is further out.
func (l *RateLimiter) RetryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	now := l.now()
	if l.blockedUntil.After(now) {
		return l.blockedUntil.Sub(now)
	}
	if l.tokens >= 1 {
		return 0
	}
	if l.refillRate <= 0 {
		return time.Hour
	}
	need := 1 - l.tokens
	return time.Duration(need / l.refillRate * float64(time.Second))
}

// Wait blocks until a token is available, consuming one before it
// returns, or returns ctx's error if ctx is done first. Callers that
// only want to check without blocking should use Allow.
func (l *RateLimiter) Wait(ctx context.Context) error {
	for {
		if l.Allow() {
			return nil
		}
		wait := l.RetryAfter()
		if wait <= 0 {
			wait = time.Millisecond
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

func (l *RateLimiter) blocked() bool {
	return l.blockedUntil.After(l.now())
}

func (l *RateLimiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.lastRefill = now
}

// AdaptBudget applies a provider's self-reported remaining budget and
// reset time, read from response headers by the client executor via a
// manifest's rate_limit_headers configuration. A positive remaining
// lowers the bucket's tokens to that figure when they are higher and
// leaves them unchanged otherwise; resetAt is then ignored. When
// remaining is zero, the tokens drop to zero and, if resetAt is in the
// future, every subsequent Allow() fails until resetAt.
func (l *RateLimiter) AdaptBudget(remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	if remaining <= 0 {
		l.tokens = 0
		if resetAt.After(l.now()) {
			l.blockedUntil = resetAt
		}
		return
	}
	if float64(remaining) < l.tokens {
		l.tokens = float64(remaining)
	}
}

// BlockUntil sets an explicit block deadline, used when a provider
// returns a Retry-After header on a 429/503 without a separate
// remaining-budget header.
func (l *RateLimiter) BlockUntil(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.After(l.blockedUntil) {
		l.blockedUntil = t
	}
}

// Snapshot returns a read-only view of the limiter's current state, for
// the signals package.
func (l *RateLimiter) Snapshot() RateLimiterSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return RateLimiterSnapshot{
		TokensAvailable: l.tokens,
		Capacity:        l.capacity,
		BlockedUntil:    l.blockedUntil,
	}
}

// RateLimiterSnapshot is an immutable point-in-time view of a
// RateLimiter's internal state.
type RateLimiterSnapshot struct {
	TokensAvailable float64
	Capacity        float64
	BlockedUntil    time.Time
}
