// Package policy implements the decision layer the client executor
// consults between attempts: whether to retry the same candidate, fall
// back to the next one, or fail outright, plus pre-flight capability
// validation. It is deliberately small: the error context and the
// resilience state it reads are handed in by the caller, and the only
// state an Engine keeps is its own attempt counter.
package policy

import (
	"math/rand"
	"time"

	aiproto "github.com/hiddenpath/ai-protocol-go"
	"github.com/hiddenpath/ai-protocol-go/message"
	"github.com/hiddenpath/ai-protocol-go/protocol"
)

// Action is the policy engine's verdict for one failed attempt.
type Action string

const (
	ActionRetry    Action = "retry"
	ActionFallback Action = "fallback"
	ActionFail     Action = "fail"
)

// Decision is the full verdict: what to do, and if retrying, how long
// to wait first.
type Decision struct {
	Action Action
	Delay  time.Duration
	Reason string
}

// Engine evaluates retry/fallback/fail decisions against one manifest's
// retry policy. A fresh Engine (or Reset) should be used per logical
// request so attempt counters don't leak across calls.
type Engine struct {
	policy  protocol.RetryPolicy
	attempt int
	rand    func() float64
}

// NewEngine returns an Engine for a manifest's retry policy. A nil
// policy is treated as "no retries": every error is ActionFail or
// ActionFallback depending on Fallbackable().
func NewEngine(p *protocol.RetryPolicy) *Engine {
	e := &Engine{rand: rand.Float64}
	if p != nil {
		e.policy = *p
	} else {
		e.policy.Strategy = "none"
	}
	if e.policy.Strategy == "" {
		e.policy.Strategy = "exponential_backoff"
	}
	if e.policy.MaxDelayMs == 0 {
		e.policy.MaxDelayMs = 30_000
	}
	if e.policy.MinDelayMs == 0 {
		e.policy.MinDelayMs = 250
	}
	return e
}

// PreDecide reports whether a candidate is worth attempting at all,
// before an attempt is counted against its retry budget. The executor
// skips straight to the next candidate when the circuit breaker is
// open, the inflight concurrency cap is exhausted, or the rate limiter
// predicts a wait of a second or more — none of those reflect the
// provider actually rejecting anything, so none of them should cost a
// retry attempt. breakerOpen, inflightAvailable, and rateLimiterWait
// are supplied by the caller, which owns the actual resilience state.
func (e *Engine) PreDecide(breakerOpen, inflightAvailable bool, rateLimiterWait time.Duration) bool {
	if breakerOpen {
		return false
	}
	if !inflightAvailable {
		return false
	}
	if rateLimiterWait >= time.Second {
		return false
	}
	return true
}

// Decide evaluates the outcome of one failed attempt and returns what
// the executor should do next. attemptErr must be an *aiproto.Error;
// any other error type is treated as non-retryable, non-fallbackable.
func (e *Engine) Decide(attemptErr error) Decision {
	e.attempt++

	aerr, ok := aiproto.As(attemptErr)
	if !ok {
		return Decision{Action: ActionFail, Reason: "unclassified error"}
	}

	if e.policy.Strategy != "none" && aerr.Retryable() && e.attempt <= e.maxRetries() {
		delay := e.delayFor(aerr)
		return Decision{Action: ActionRetry, Delay: delay, Reason: "retryable, budget remaining"}
	}
	if aerr.Fallbackable() {
		return Decision{Action: ActionFallback, Reason: "not retryable or retry budget exhausted, fallback available"}
	}
	return Decision{Action: ActionFail, Reason: "not retryable and not fallbackable"}
}

// Reset zeroes the attempt counter, for reuse against a fallback
// candidate with its own retry budget.
func (e *Engine) Reset() { e.attempt = 0 }

func (e *Engine) maxRetries() int {
	if e.policy.MaxRetries > 0 {
		return e.policy.MaxRetries
	}
	return 2
}

// delayFor computes the wait before the next attempt. A provider's
// Retry-After (surfaced via ErrorContext.RetryAfterMs) always takes
// precedence over the manifest's own backoff schedule, clipped to
// max_delay_ms so a provider cannot stall the executor indefinitely.
func (e *Engine) delayFor(aerr *aiproto.Error) time.Duration {
	ctx := aerr.Context()
	if ctx.RetryAfterMs != nil {
		ms := *ctx.RetryAfterMs
		maxMs := int64(e.policy.MaxDelayMs)
		if ms > maxMs {
			ms = maxMs
		}
		return time.Duration(ms) * time.Millisecond
	}

	base := float64(e.policy.MinDelayMs)
	if e.policy.Strategy == "exponential_backoff" {
		for i := 1; i < e.attempt; i++ {
			base *= 2
		}
	}
	maxMs := float64(e.policy.MaxDelayMs)
	if base > maxMs {
		base = maxMs
	}
	if e.policy.Jitter == "full" {
		base *= e.rand()
	}
	return time.Duration(base) * time.Millisecond
}

// ValidateCapabilities pre-flight-checks a request against a manifest's
// declared capabilities, failing fast with a KindValidation error rather
// than letting a provider reject the request after a network round
// trip.
func ValidateCapabilities(req *message.Request, caps protocol.Capabilities) error {
	if req.HasTools() && !caps.Supports("tools") {
		return aiproto.New(aiproto.KindValidation, "policy: request uses tools but manifest does not declare tools capability")
	}
	if req.HasMultimodalContent() && !caps.Supports("multimodal") {
		return aiproto.New(aiproto.KindValidation, "policy: request carries image/audio content but manifest does not declare multimodal capability")
	}
	if req.Stream && !caps.Supports("streaming") {
		return aiproto.New(aiproto.KindValidation, "policy: request asks for streaming but manifest does not declare streaming capability")
	}
	return nil
}
