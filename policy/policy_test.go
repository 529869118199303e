package policy

import (
	"testing"
	"time"

	aiproto "github.com/hiddenpath/ai-protocol-go"
	"github.com/hiddenpath/ai-protocol-go/message"
	"github.com/hiddenpath/ai-protocol-go/protocol"
	"github.com/stretchr/testify/require"
)

func TestDecideRetriesWithinBudget(t *testing.T) {
	e := NewEngine(&protocol.RetryPolicy{MaxRetries: 2, MinDelayMs: 10, MaxDelayMs: 1000})
	err := aiproto.New(aiproto.KindRemote, "overloaded").WithClass(aiproto.ClassOverloaded)

	d1 := e.Decide(err)
	require.Equal(t, ActionRetry, d1.Action)
	d2 := e.Decide(err)
	require.Equal(t, ActionRetry, d2.Action)
	d3 := e.Decide(err)
	require.Equal(t, ActionFallback, d3.Action, "overloaded errors are fallbackable by default once retries are exhausted")
}

func TestDecideClipsRetryAfterToMaxDelay(t *testing.T) {
	e := NewEngine(&protocol.RetryPolicy{MaxRetries: 3, MaxDelayMs: 500})
	retryAfter := int64(10_000)
	err := aiproto.New(aiproto.KindRemote, "rate limited").
		WithClass(aiproto.ClassRateLimited).
		WithContext(aiproto.NewErrorContext().WithRetryAfterMs(retryAfter))

	d := e.Decide(err)
	require.Equal(t, ActionRetry, d.Action)
	require.Equal(t, 500*time.Millisecond, d.Delay)
}

func TestDecideFailsOnNonRetryableNonFallbackable(t *testing.T) {
	e := NewEngine(nil)
	err := aiproto.New(aiproto.KindRemote, "bad request").WithClass(aiproto.ClassInvalidRequest)
	d := e.Decide(err)
	require.Equal(t, ActionFail, d.Action)
}

func TestValidateCapabilitiesRejectsToolsWhenUnsupported(t *testing.T) {
	req := &message.Request{Tools: []message.ToolDefinition{{Name: "get_weather"}}}
	err := ValidateCapabilities(req, protocol.Capabilities{Tools: false})
	require.Error(t, err)
}

func TestValidateCapabilitiesAllowsSupportedStreaming(t *testing.T) {
	req := &message.Request{Stream: true}
	err := ValidateCapabilities(req, protocol.Capabilities{Streaming: true})
	require.NoError(t, err)
}

func TestPreDecideSkipsOpenBreaker(t *testing.T) {
	e := NewEngine(nil)
	require.False(t, e.PreDecide(true, true, 0))
}

func TestPreDecideSkipsExhaustedInflight(t *testing.T) {
	e := NewEngine(nil)
	require.False(t, e.PreDecide(false, false, 0))
}

func TestPreDecideSkipsLongPredictedRateLimiterWait(t *testing.T) {
	e := NewEngine(nil)
	require.False(t, e.PreDecide(false, true, 2*time.Second))
}

func TestPreDecideAdmitsShortPredictedWait(t *testing.T) {
	e := NewEngine(nil)
	require.True(t, e.PreDecide(false, true, 100*time.Millisecond))
}
