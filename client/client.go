// Package client implements the executor described in spec.md §4.5:
// preflight admission (rate limiter, circuit breaker, inflight cap),
// request compilation, the HTTP attempt, response classification, and
// the retry/fallback loop driven by the policy package.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	aiproto "github.com/hiddenpath/ai-protocol-go"
	"github.com/hiddenpath/ai-protocol-go/message"
	"github.com/hiddenpath/ai-protocol-go/pipeline"
	"github.com/hiddenpath/ai-protocol-go/pipeline/jsonpath"
	"github.com/hiddenpath/ai-protocol-go/policy"
	"github.com/hiddenpath/ai-protocol-go/protocol"
	"github.com/hiddenpath/ai-protocol-go/resilience"
	"github.com/hiddenpath/ai-protocol-go/telemetry"
	"github.com/hiddenpath/ai-protocol-go/transport"
	"go.uber.org/zap"
)

// candidate bundles one manifest with its own resilience state. Every
// candidate is long-lived for the process's duration: rate limiter and
// circuit breaker state persist across calls, which is the entire point
// of having them.
type candidate struct {
	id       string
	manifest *protocol.Manifest
	limiter  *resilience.RateLimiter
	breaker  *resilience.CircuitBreaker
	inflight chan struct{}
}

// Client executes unified requests against a prioritized list of
// candidates, retrying and falling back per the policy package's
// decisions. A Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	loader     *protocol.Loader
	log        *zap.Logger
	sink       telemetry.Sink

	requestIDFn func() string

	order      []string
	candidates map[string]*candidate

	defaultRateCapacity     float64
	defaultRateRefill       float64
	defaultBreakerThreshold int
	defaultBreakerCooldown  time.Duration
	defaultMaxInflight      int
}

// Signals returns a read-only resilience snapshot for one candidate.
func (c *Client) Signals(manifestID string) (ClientSignals, bool) {
	cand, ok := c.candidates[manifestID]
	if !ok {
		return ClientSignals{}, false
	}
	return ClientSignals{
		ManifestID:     manifestID,
		InflightActive: len(cand.inflight),
		InflightLimit:  cap(cand.inflight),
		RateLimiter:    cand.limiter.Snapshot(),
		CircuitBreaker: cand.breaker.Snapshot(),
	}, true
}

// ClientSignals is the concrete snapshot type returned by Signals. It
// carries the same resilience fields as signals.Snapshot but is a
// distinct type, so Client does not implement signals.Provider.
type ClientSignals struct {
	ManifestID     string
	InflightActive int
	InflightLimit  int
	RateLimiter    resilience.RateLimiterSnapshot
	CircuitBreaker resilience.BreakerSnapshot
}

// Execute runs req to completion against the candidate list, returning
// a unified Response. It transparently retries and falls back per the
// manifest's retry policy and error classification.
func (c *Client) Execute(ctx context.Context, req *message.Request) (*message.Response, CallStats, error) {
	stats := CallStats{}
	var lastErr error

	for _, id := range c.order {
		cand := c.candidates[id]
		if err := policy.ValidateCapabilities(req, cand.manifest.Capabilities); err != nil {
			lastErr = err
			continue
		}

		engine := policy.NewEngine(cand.manifest.RetryPolicy)
		if !engine.PreDecide(cand.breaker.State() == resilience.StateOpen, len(cand.inflight) < cap(cand.inflight), cand.limiter.RetryAfter()) {
			lastErr = aiproto.New(aiproto.KindRuntime, fmt.Sprintf("client: skipping %q, not currently admissible", id))
			continue
		}
		for {
			stats.Attempts++
			resp, err := c.attempt(ctx, cand, req)
			if err == nil {
				cand.breaker.RecordSuccess()
				c.sink.RecordCall(telemetry.CallOutcome{ManifestID: id, Attempts: stats.Attempts, Success: true})
				return resp, stats, nil
			}

			cand.breaker.RecordFailure()
			lastErr = err
			decision := engine.Decide(err)
			switch decision.Action {
			case policy.ActionRetry:
				if err := sleepCtx(ctx, decision.Delay); err != nil {
					return nil, stats, err
				}
				continue
			case policy.ActionFallback:
				stats.Fallbacks++
			}
			break
		}
	}

	c.sink.RecordCall(telemetry.CallOutcome{Attempts: stats.Attempts, Success: false})
	if lastErr == nil {
		lastErr = aiproto.New(aiproto.KindConfiguration, "client: no candidates configured")
	}
	return nil, stats, lastErr
}

// ExecuteStream is Execute's streaming counterpart. Once the first
// stream event has been produced by the provider (the "commit point"),
// no further retry or fallback happens even if a later event signals an
// error: the caller has already begun consuming partial output, and
// silently restarting would duplicate it.
func (c *Client) ExecuteStream(ctx context.Context, req *message.Request) (*pipeline.Stream, CallStats, error) {
	req.Stream = true
	stats := CallStats{Streamed: true}
	var lastErr error

	for _, id := range c.order {
		cand := c.candidates[id]
		if err := policy.ValidateCapabilities(req, cand.manifest.Capabilities); err != nil {
			lastErr = err
			continue
		}

		engine := policy.NewEngine(cand.manifest.RetryPolicy)
		if !engine.PreDecide(cand.breaker.State() == resilience.StateOpen, len(cand.inflight) < cap(cand.inflight), cand.limiter.RetryAfter()) {
			lastErr = aiproto.New(aiproto.KindRuntime, fmt.Sprintf("client: skipping %q, not currently admissible", id))
			continue
		}
		for {
			stats.Attempts++
			started := time.Now()
			body, release, err := c.attemptRaw(ctx, cand, req)
			if err == nil {
				var stream *pipeline.Stream
				stream, err = pipeline.New(body, cand.manifest)
				if err != nil {
					body.Close()
					release()
				} else {
					stream.OnClose(release)
					// Commit point: peek the first event (or a clean
					// end-of-stream) before telling the caller this
					// attempt succeeded. A decode error on that very
					// first peek is still a failure the policy engine
					// gets to retry or fall back on; anything the
					// caller has already been handed a Stream for is
					// final and never retried.
					if stream.Prime() || stream.Err() == nil {
						stats.EmittedAny = true
						stats.FirstEventMs = time.Since(started).Milliseconds()
						cand.breaker.RecordSuccess()
						return stream, stats, nil
					}
					// A provider that returns 200 and then breaks mid-frame
					// before any event is produced gets the same retry/
					// fallback treatment as a transport failure: nothing
					// has reached the caller yet, so nothing is at risk of
					// duplication.
					err = aiproto.New(aiproto.KindPipeline, "client: stream failed before first event").
						WithCause(stream.Err()).
						WithContext(aiproto.NewErrorContext().WithRetryable(true).WithFallbackable(true).WithSource(cand.id))
				}
			}

			cand.breaker.RecordFailure()
			lastErr = err
			decision := engine.Decide(err)
			if decision.Action == policy.ActionRetry {
				if serr := sleepCtx(ctx, decision.Delay); serr != nil {
					return nil, stats, serr
				}
				continue
			}
			if decision.Action == policy.ActionFallback {
				stats.Fallbacks++
			}
			break
		}
	}

	if lastErr == nil {
		lastErr = aiproto.New(aiproto.KindConfiguration, "client: no candidates configured")
	}
	return nil, stats, lastErr
}

// attempt runs one non-streaming HTTP round trip and decodes the
// response into a unified Response.
func (c *Client) attempt(ctx context.Context, cand *candidate, req *message.Request) (*message.Response, error) {
	body, release, err := c.attemptRaw(ctx, cand, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	defer release()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, aiproto.New(aiproto.KindTransport, "client: reading response body").WithCause(err)
	}
	return decodeResponse(cand.manifest, raw)
}

// attemptRaw performs preflight admission, compiles the request, issues
// the HTTP call, and classifies a non-2xx response into an
// *aiproto.Error, returning the live response body on success together
// with a release func that frees the inflight permit this attempt
// acquired. Callers own closing the returned body and must call release
// exactly once, whether or not the body is ever read — on error paths
// attemptRaw has already released the permit itself and returns a nil
// release func.
func (c *Client) attemptRaw(ctx context.Context, cand *candidate, req *message.Request) (io.ReadCloser, func(), error) {
	release, err := c.preflight(ctx, cand)
	if err != nil {
		return nil, nil, err
	}

	compiled, err := protocol.NewCompiler(cand.manifest).Compile(req)
	if err != nil {
		release()
		return nil, nil, err
	}

	ep := cand.manifest.Endpoint
	httpReq, err := http.NewRequestWithContext(ctx, "POST", ep.BaseURL, bytes.NewReader(compiled))
	if err != nil {
		release()
		return nil, nil, aiproto.New(aiproto.KindConfiguration, "client: building http request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	requestID := c.requestIDFn()
	httpReq.Header.Set("X-Request-Id", requestID)
	if err := transport.ApplyAuth(httpReq, cand.manifest.Auth); err != nil {
		release()
		return nil, nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		release()
		return nil, nil, aiproto.New(aiproto.KindTransport, "client: http request failed").
			WithContext(aiproto.NewErrorContext().WithRequestID(requestID).WithSource(cand.id)).
			WithCause(err)
	}

	c.updateRateLimitFromHeaders(cand, resp.Header)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, release, nil
	}
	defer resp.Body.Close()
	release()
	raw, _ := io.ReadAll(resp.Body)
	rerr := classifyRemoteError(cand.manifest, resp.StatusCode, raw, requestID)
	if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs >= 0 {
		if aerr, ok := aiproto.As(rerr); ok {
			rerr = aerr.WithContext(aerr.Context().WithRetryAfterMs(int64(secs) * 1000))
		}
	}
	return nil, nil, rerr
}

// preflight admits one attempt against cand: it consults the circuit
// breaker, blocks until the rate limiter yields a token (or ctx ends),
// and reserves one inflight slot. On success it returns a release func
// that frees the inflight slot; the caller must invoke it exactly once,
// whether or not the attempt ultimately succeeds.
func (c *Client) preflight(ctx context.Context, cand *candidate) (func(), error) {
	if !cand.breaker.Admit() {
		return nil, aiproto.New(aiproto.KindRuntime, fmt.Sprintf("client: circuit breaker open for %q", cand.id))
	}
	if err := cand.limiter.Wait(ctx); err != nil {
		return nil, aiproto.New(aiproto.KindRuntime, fmt.Sprintf("client: rate limiter wait canceled for %q", cand.id)).WithCause(err)
	}
	select {
	case cand.inflight <- struct{}{}:
	default:
		return nil, aiproto.New(aiproto.KindRuntime, fmt.Sprintf("client: inflight limit reached for %q", cand.id))
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-cand.inflight
	}, nil
}

func (c *Client) updateRateLimitFromHeaders(cand *candidate, h http.Header) {
	rl := cand.manifest.RateLimitHeaders
	if rl == nil {
		return
	}
	if v := h.Get(rl.RequestsRemaining); v != "" {
		if remaining, resetAt, ok := parseRemainingAndReset(v, h.Get(rl.RequestsReset)); ok {
			cand.limiter.AdaptBudget(remaining, resetAt)
		}
	}
	if v := h.Get(rl.RetryAfter); v != "" {
		if secs, err := time.ParseDuration(v + "s"); err == nil {
			cand.limiter.BlockUntil(time.Now().Add(secs))
		}
	}
}

// parseRemainingAndReset parses a remaining-requests header value and its
// companion reset header. A reset value above 1e9 is read as a UNIX epoch
// second, a smaller one as a delta in seconds; an absent or unparsable
// reset falls back to one second from now.
func parseRemainingAndReset(remaining, reset string) (int, time.Time, bool) {
	n, err := strconv.Atoi(remaining)
	if err != nil {
		return 0, time.Time{}, false
	}
	now := time.Now()
	resetAt := now.Add(time.Second)
	if secs, perr := strconv.ParseFloat(reset, 64); perr == nil && secs > 1e9 {
		resetAt = time.Unix(int64(secs), 0)
	} else if perr == nil {
		resetAt = now.Add(time.Duration(secs * float64(time.Second)))
	}
	return n, resetAt, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func decodeResponse(m *protocol.Manifest, raw []byte) (*message.Response, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, aiproto.New(aiproto.KindSerialization, "client: decoding response body").WithCause(err)
	}

	resp := &message.Response{Raw: raw}

	if path, ok := m.ResponsePaths["content"]; ok {
		if v, ok := jsonpath.Get(doc, path); ok {
			if s, ok := v.(string); ok {
				resp.Content = []message.ContentBlock{message.Text{Text: s}}
			}
		}
	}
	if path, ok := m.ResponsePaths["finish_reason"]; ok {
		if v, ok := jsonpath.Get(doc, path); ok {
			resp.FinishReason = asString(v)
		}
	}
	if path, ok := m.ResponsePaths["usage"]; ok {
		if v, ok := jsonpath.Get(doc, path); ok {
			if encoded, err := json.Marshal(v); err == nil {
				resp.Usage = encoded
			}
		}
	}

	if m.Features != nil && m.Features.ResponseMapping != nil && m.Features.ResponseMapping.ToolCalls != nil {
		resp.ToolCalls = extractToolCalls(doc, m.Features.ResponseMapping.ToolCalls)
	}

	if m.Termination != nil {
		if v, ok := jsonpath.Get(doc, m.Termination.SourceField); ok {
			native := asString(v)
			if mapped, ok := m.Termination.Mapping[native]; ok {
				resp.StopReason = mapped
			} else {
				resp.StopReason = native
			}
		}
	}

	return resp, nil
}

func extractToolCalls(doc any, mapping *protocol.ToolCallsMapping) []message.ToolCallResult {
	v, ok := jsonpath.Get(doc, mapping.Path)
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]message.ToolCallResult, 0, len(arr))
	for _, item := range arr {
		result := message.ToolCallResult{}
		if idPath, ok := mapping.Fields["id"]; ok {
			if v, ok := jsonpath.Get(item, idPath); ok {
				result.ID = asString(v)
			}
		}
		if namePath, ok := mapping.Fields["name"]; ok {
			if v, ok := jsonpath.Get(item, namePath); ok {
				result.Name = asString(v)
			}
		}
		if argsPath, ok := mapping.Fields["arguments"]; ok {
			if v, ok := jsonpath.Get(item, argsPath); ok {
				if encoded, err := json.Marshal(v); err == nil {
					result.Arguments = encoded
				}
			}
		}
		out = append(out, result)
	}
	return out
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
