package protocol

import (
	"encoding/json"
	"testing"

	"github.com/hiddenpath/ai-protocol-go/message"
	"github.com/stretchr/testify/require"
)

func TestCompilerOpenAIStyle(t *testing.T) {
	m := &Manifest{
		ID:       "openai-like",
		APIStyle: "openai",
		ParameterMappings: map[string]string{
			"model":       "model",
			"messages":    "messages",
			"temperature": "temperature",
			"stream":      "stream",
		},
	}
	temp := 0.5
	req := &message.Request{
		Model:       "gpt-4o",
		Temperature: &temp,
		Messages: []message.Message{
			{Role: message.RoleUser, Text: "hello"},
		},
	}
	out, err := NewCompiler(m).Compile(req)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Equal(t, "gpt-4o", decoded["model"])
	require.Equal(t, 0.5, decoded["temperature"])
	msgs := decoded["messages"].([]any)
	require.Len(t, msgs, 1)
	first := msgs[0].(map[string]any)
	require.Equal(t, "hello", first["content"])
}

func TestCompilerAnthropicStyleUsesContentBlocks(t *testing.T) {
	m := &Manifest{
		ID:       "anthropic-like",
		APIStyle: "anthropic",
		ParameterMappings: map[string]string{
			"model":    "model",
			"messages": "messages",
		},
	}
	req := &message.Request{
		Model: "claude-3",
		Messages: []message.Message{
			{Role: message.RoleUser, Text: "hi there"},
		},
	}
	out, err := NewCompiler(m).Compile(req)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	msgs := decoded["messages"].([]any)
	first := msgs[0].(map[string]any)
	blocks := first["content"].([]any)
	require.Len(t, blocks, 1)
	block := blocks[0].(map[string]any)
	require.Equal(t, "text", block["type"])
	require.Equal(t, "hi there", block["text"])
}

func TestCompilerUnknownAPIStyleErrors(t *testing.T) {
	m := &Manifest{ID: "x", APIStyle: "unknown-style", ParameterMappings: map[string]string{"model": "model"}}
	_, err := NewCompiler(m).Compile(&message.Request{Model: "x"})
	require.Error(t, err)
}
