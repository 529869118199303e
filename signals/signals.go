// Package signals exposes read-only observability snapshots of a
// client's internal resilience state, so applications can surface
// current rate-limit and circuit-breaker health without reaching into
// the client executor's private fields.
package signals

import (
	"time"

	"github.com/hiddenpath/ai-protocol-go/resilience"
)

// Snapshot is a point-in-time view of one manifest's resilience state
// as seen by the client executor.
type Snapshot struct {
	ManifestID      string
	InflightActive  int
	InflightLimit   int
	RateLimiter     resilience.RateLimiterSnapshot
	CircuitBreaker  resilience.BreakerSnapshot
	ObservedAt      time.Time
}

// Provider is implemented by anything that can produce a Snapshot for a
// manifest id, used so callers can depend on the interface rather than
// the concrete client type.
type Provider interface {
	Signals(manifestID string) (Snapshot, bool)
}
