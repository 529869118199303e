package resilience

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's externally observable state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// CircuitBreaker trips after a run of consecutive failures and stays
// open for a cooldown period, after which it admits one trial request
// (half-open) to decide whether to close again. This is the classic
// three-state breaker; spec.md §4.4 does not call for a sliding-window
// failure rate, only a consecutive-failure threshold.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration

	state        BreakerState
	consecutive  int
	openedAt     time.Time
	halfOpenUsed bool
	now          func() time.Time
}

// NewCircuitBreaker returns a closed breaker that opens after
// `threshold` consecutive failures and stays open for `cooldown`.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     StateClosed,
		now:       time.Now,
	}
}

// Admit reports whether a new attempt may proceed. In the open state
// before cooldown elapses it returns false; once cooldown elapses it
// transitions to half-open and admits exactly one trial attempt.
func (b *CircuitBreaker) Admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.halfOpenUsed = false
		fallthrough
	case StateHalfOpen:
		if b.halfOpenUsed {
			return false
		}
		b.halfOpenUsed = true
		return true
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutive = 0
	b.halfOpenUsed = false
}

// RecordFailure increments the consecutive failure count and opens the
// breaker once the threshold is reached, or immediately re-opens it if
// the failing attempt was the half-open trial.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.open()
		return
	}
	b.consecutive++
	if b.consecutive >= b.threshold {
		b.open()
	}
}

func (b *CircuitBreaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.halfOpenUsed = false
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a read-only view for the signals package.
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		State:             b.state,
		ConsecutiveErrors: b.consecutive,
		OpenedAt:          b.openedAt,
	}
}

// BreakerSnapshot is an immutable point-in-time view of a
// CircuitBreaker's internal state.
type BreakerSnapshot struct {
	State             BreakerState
	ConsecutiveErrors int
	OpenedAt          time.Time
}
