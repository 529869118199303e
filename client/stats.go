package client

import "time"

// CallStats summarizes one logical call (including any retries and
// fallbacks) for telemetry and debugging.
type CallStats struct {
	ManifestID   string
	Attempts     int
	Fallbacks    int
	TotalLatency time.Duration
	FinalStatus  int
	Streamed     bool

	// EmittedAny and FirstEventMs are set once a streaming call commits:
	// EmittedAny is true once the first event (or a clean end-of-stream)
	// has actually been observed, and FirstEventMs records how long that
	// took from the start of the committing attempt.
	EmittedAny   bool
	FirstEventMs int64
}
