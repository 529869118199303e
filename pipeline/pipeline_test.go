package pipeline

import (
	"io"
	"strings"
	"testing"

	"github.com/hiddenpath/ai-protocol-go/message"
	"github.com/hiddenpath/ai-protocol-go/protocol"
	"github.com/stretchr/testify/require"
)

func sseManifest() *protocol.Manifest {
	return &protocol.Manifest{
		ID: "sse-test",
		Streaming: &protocol.Streaming{
			Decoder: &protocol.Decoder{Format: "sse"},
			EventMap: []protocol.EventMapRule{
				{
					Match: `type == "content_block_delta"`,
					Emit:  "content_delta",
					Fields: map[string]string{"content": "delta.text"},
				},
				{
					Match: `type == "message_stop"`,
					Emit:  "stream_end",
				},
			},
		},
	}
}

func TestStreamProducesExactlyOneStreamEndLast(t *testing.T) {
	body := strings.Join([]string{
		`data: {"type":"content_block_delta","delta":{"text":"hel"}}`,
		``,
		`data: {"type":"content_block_delta","delta":{"text":"lo"}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	stream, err := New(strings.NewReader(body), sseManifest())
	require.NoError(t, err)

	var events []message.Event
	for stream.Next() {
		events = append(events, stream.Event())
	}
	require.NoError(t, stream.Err())

	streamEndCount := 0
	for i, ev := range events {
		if _, ok := ev.(message.StreamEnd); ok {
			streamEndCount++
			require.Equal(t, len(events)-1, i, "StreamEnd must be last")
		}
	}
	require.Equal(t, 1, streamEndCount)

	var content strings.Builder
	for _, ev := range events {
		if d, ok := ev.(message.PartialContentDelta); ok {
			content.WriteString(d.Content)
		}
	}
	require.Equal(t, "hello", content.String())
}

func TestStreamSynthesizesStreamEndOnCleanEOF(t *testing.T) {
	body := "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"hi\"}}\n\n"
	stream, err := New(strings.NewReader(body), sseManifest())
	require.NoError(t, err)

	var events []message.Event
	for stream.Next() {
		events = append(events, stream.Event())
	}
	require.NoError(t, stream.Err())
	require.NotEmpty(t, events)
	_, ok := events[len(events)-1].(message.StreamEnd)
	require.True(t, ok)
}

func TestStreamDefaultMapperTracksToolCallIndexToID(t *testing.T) {
	m := &protocol.Manifest{
		ID: "openai-tools-test",
		Streaming: &protocol.Streaming{
			Decoder:     &protocol.Decoder{Format: "sse"},
			ContentPath: "choices[0].delta.content",
			ToolUse: &protocol.ToolUseMapping{
				IDPath:    "choices[0].delta.tool_calls[0].id",
				NamePath:  "choices[0].delta.tool_calls[0].function.name",
				InputPath: "choices[0].delta.tool_calls[0].function.arguments",
				IndexPath: "choices[0].delta.tool_calls[0].index",
			},
		},
	}

	body := strings.Join([]string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_abc","function":{"name":"get_weather","arguments":"{\"city\":"}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"paris\"}"}}]}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	stream, err := New(strings.NewReader(body), m)
	require.NoError(t, err)

	assembler := message.NewToolCallAssembler()
	var sawStart bool
	for stream.Next() {
		ev := stream.Event()
		if _, ok := ev.(message.ToolCallStarted); ok {
			sawStart = true
		}
		assembler.Feed(ev)
	}
	require.NoError(t, stream.Err())
	require.True(t, sawStart)

	results := assembler.Results()
	require.Len(t, results, 1)
	require.Equal(t, "call_abc", results[0].ID)
	require.Equal(t, "get_weather", results[0].Name)
}

// closingReader lets a test observe whether Stream closed the reader it
// was built from.
type closingReader struct {
	io.Reader
	closed bool
}

func (c *closingReader) Close() error {
	c.closed = true
	return nil
}

func TestStreamPrimeReplaysFirstEventOnNext(t *testing.T) {
	body := strings.Join([]string{
		`data: {"type":"content_block_delta","delta":{"text":"hi"}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")
	stream, err := New(strings.NewReader(body), sseManifest())
	require.NoError(t, err)

	require.True(t, stream.Prime())
	primed := stream.Event()
	_, ok := primed.(message.PartialContentDelta)
	require.True(t, ok, "Prime should observe the first real event")

	require.True(t, stream.Next())
	require.Equal(t, primed, stream.Event(), "Next must replay exactly what Prime saw")

	require.True(t, stream.Next())
	_, ok = stream.Event().(message.StreamEnd)
	require.True(t, ok)
	require.False(t, stream.Next())
}

func TestStreamReleasesResourcesOnNaturalEnd(t *testing.T) {
	r := &closingReader{Reader: strings.NewReader("data: [DONE]\n\n")}
	stream, err := New(r, sseManifest())
	require.NoError(t, err)

	var onCloseCalled bool
	stream.OnClose(func() { onCloseCalled = true })

	for stream.Next() {
	}
	require.NoError(t, stream.Err())
	require.True(t, r.closed, "Stream must close the underlying reader once it reaches a natural end")
	require.True(t, onCloseCalled, "OnClose hook must run once the stream reaches a natural end")
}

func TestStreamCloseIsIdempotentAndRunsHookOnce(t *testing.T) {
	r := &closingReader{Reader: strings.NewReader("data: [DONE]\n\n")}
	stream, err := New(r, sseManifest())
	require.NoError(t, err)

	calls := 0
	stream.OnClose(func() { calls++ })

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	require.Equal(t, 1, calls)
}
