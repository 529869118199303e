package client

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hiddenpath/ai-protocol-go/protocol"
	"github.com/hiddenpath/ai-protocol-go/resilience"
	"github.com/hiddenpath/ai-protocol-go/telemetry"
	"github.com/hiddenpath/ai-protocol-go/transport"
	"go.uber.org/zap"
)

// Option configures a Client at construction time, following the
// functional-options builder pattern used throughout this module for
// any type with more than two or three optional knobs.
type Option func(*Client)

// WithHTTPClient overrides the shared HTTP client, normally built by
// transport.NewClient with its defaults.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger attaches a zap logger; the default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithTelemetry attaches a telemetry.Sink; the default discards
// everything.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(c *Client) { c.sink = sink }
}

// WithRequestIDFunc overrides how request ids are generated, mainly for
// deterministic tests.
func WithRequestIDFunc(fn func() string) Option {
	return func(c *Client) { c.requestIDFn = fn }
}

// WithRateLimit sets the token-bucket capacity and refill rate used for
// the rate limiter of every candidate New registers; all candidates
// share these values.
func WithRateLimit(capacity, refillPerSecond float64) Option {
	return func(c *Client) { c.defaultRateCapacity, c.defaultRateRefill = capacity, refillPerSecond }
}

// WithBreakerThreshold sets the default consecutive-failure threshold
// and cooldown for candidates' circuit breakers.
func WithBreakerThreshold(threshold int, cooldown time.Duration) Option {
	return func(c *Client) { c.defaultBreakerThreshold, c.defaultBreakerCooldown = threshold, cooldown }
}

// WithMaxInflight sets the default per-candidate inflight request cap.
func WithMaxInflight(n int) Option {
	return func(c *Client) { c.defaultMaxInflight = n }
}

// New builds a Client. loader resolves manifest names to Manifests;
// candidateIDs are registered in priority order (first is tried first,
// later ones are fallback targets).
func New(loader *protocol.Loader, candidateIDs []string, opts ...Option) (*Client, error) {
	c := &Client{
		loader:                  loader,
		log:                     zap.NewNop(),
		sink:                    telemetry.NoopSink{},
		requestIDFn:             func() string { return uuid.NewString() },
		defaultRateCapacity:     20,
		defaultRateRefill:       10,
		defaultBreakerThreshold: 5,
		defaultBreakerCooldown:  30 * time.Second,
		defaultMaxInflight:      64,
		candidates:              make(map[string]*candidate),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = transport.NewClient(transport.Config{})
	}

	for _, id := range candidateIDs {
		if err := c.registerCandidate(id); err != nil {
			return nil, err
		}
		c.order = append(c.order, id)
	}
	return c, nil
}

func (c *Client) registerCandidate(id string) error {
	m, err := c.loader.Load(id)
	if err != nil {
		return err
	}
	c.candidates[id] = &candidate{
		id:       id,
		manifest: m,
		limiter:  resilience.NewRateLimiter(c.defaultRateCapacity, c.defaultRateRefill),
		breaker:  resilience.NewCircuitBreaker(c.defaultBreakerThreshold, c.defaultBreakerCooldown),
		inflight: make(chan struct{}, c.defaultMaxInflight),
	}
	return nil
}
