package pipeline

import (
	"testing"

	"github.com/hiddenpath/ai-protocol-go/message"
	"github.com/hiddenpath/ai-protocol-go/protocol"
	"github.com/stretchr/testify/require"
)

func TestRuleMapperEmitsToolCallStartThenDeltas(t *testing.T) {
	rules := []protocol.EventMapRule{
		{
			Match: `type == "tool_call_start"`,
			Emit:  "tool_call_start",
			Fields: map[string]string{
				"tool_call_id": "id",
				"tool_name":    "name",
			},
		},
		{
			Match: `type == "tool_call_delta"`,
			Emit:  "tool_call_delta",
			Fields: map[string]string{
				"tool_call_id": "id",
				"arguments":    "args",
			},
		},
	}
	rm, err := newRuleMapper(rules)
	require.NoError(t, err)

	frames := []map[string]any{
		{"type": "tool_call_start", "id": "call_1", "name": "get_weather"},
		{"type": "tool_call_delta", "id": "call_1", "args": `{"city":`},
		{"type": "tool_call_delta", "id": "call_1", "args": `"nyc"}`},
	}

	assembler := message.NewToolCallAssembler()
	var sawStart bool
	for _, f := range frames {
		for _, ev := range rm.mapFrame(candidateFrame{Frame: Frame{Decoded: f}}) {
			if _, ok := ev.(message.ToolCallStarted); ok {
				sawStart = true
			}
			assembler.Feed(ev)
		}
	}
	require.True(t, sawStart)
	results := assembler.Results()
	require.Len(t, results, 1)
	require.Equal(t, "get_weather", results[0].Name)
	require.JSONEq(t, `{"city":"nyc"}`, string(results[0].Arguments))
}

func TestRuleMapperNoMatchProducesNoEvents(t *testing.T) {
	rules := []protocol.EventMapRule{
		{Match: `type == "ping"`, Emit: "stream_end"},
	}
	rm, err := newRuleMapper(rules)
	require.NoError(t, err)
	events := rm.mapFrame(candidateFrame{Frame: Frame{Decoded: map[string]any{"type": "other"}}})
	require.Empty(t, events)
}
