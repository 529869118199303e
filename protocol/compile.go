package protocol

import (
	"encoding/json"

	aiproto "github.com/hiddenpath/ai-protocol-go"
	"github.com/hiddenpath/ai-protocol-go/message"
	"github.com/hiddenpath/ai-protocol-go/pipeline/jsonpath"
)

// messageEncoder renders a unified []message.Message into the
// provider-native value that belongs at the manifest's "messages"
// parameter_mappings path. Different providers shape conversation
// history differently enough (flat role/content vs. nested content
// blocks) that this is a registered function per api_style rather than
// a single hard-coded encoding, per spec.md §4.1's "declared, not
// coded" principle.
type messageEncoder func(msgs []message.Message) any

// messageEncoders holds one encoder per api_style. Manifests that omit
// api_style use "openai" as the default, matching the majority of the
// manifest corpus.
var messageEncoders = map[string]messageEncoder{
	"openai":    encodeMessagesFlat,
	"anthropic": encodeMessagesBlocks,
	"google":    encodeMessagesContents,
}

// RegisterMessageEncoder installs or overrides the message encoder for
// a named api_style. Intended for applications extending the registry
// with a provider shape not built in.
func RegisterMessageEncoder(apiStyle string, enc messageEncoder) {
	messageEncoders[apiStyle] = enc
}

// Compiler renders a unified message.Request into a provider's native
// JSON request body, following a Manifest's parameter_mappings.
type Compiler struct {
	manifest *Manifest
}

// NewCompiler returns a Compiler bound to a validated manifest.
func NewCompiler(m *Manifest) *Compiler {
	return &Compiler{manifest: m}
}

// Compile renders req into the provider-native request body described
// by the manifest's parameter_mappings, returning the JSON bytes ready
// to send as the HTTP body.
func (c *Compiler) Compile(req *message.Request) ([]byte, error) {
	body := map[string]any{}

	apiStyle := c.manifest.APIStyle
	if apiStyle == "" {
		apiStyle = "openai"
	}
	encoder, ok := messageEncoders[apiStyle]
	if !ok {
		return nil, aiproto.New(aiproto.KindConfiguration, "protocol: unknown api_style "+apiStyle).
			WithContext(aiproto.NewErrorContext().WithSource(c.manifest.ID))
	}

	values := map[string]any{
		"model":       req.Model,
		"messages":    encoder(req.Messages),
		"stream":      req.Stream,
	}
	if req.Temperature != nil {
		values["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		values["max_tokens"] = *req.MaxTokens
	}
	if req.HasTools() {
		values["tools"] = encodeTools(req.Tools)
	}
	if len(req.ToolChoice) > 0 {
		var v any
		if err := json.Unmarshal(req.ToolChoice, &v); err == nil {
			values["tool_choice"] = v
		}
	}

	for field, value := range values {
		path, ok := c.manifest.ParameterMappings[field]
		if !ok {
			continue
		}
		if err := jsonpath.Set(body, path, value); err != nil {
			return nil, aiproto.New(aiproto.KindConfiguration, "protocol: compiling field "+field).
				WithContext(aiproto.NewErrorContext().WithFieldPath(path).WithSource(c.manifest.ID)).
				WithCause(err)
		}
	}

	out, err := json.Marshal(body)
	if err != nil {
		return nil, aiproto.New(aiproto.KindSerialization, "protocol: marshaling compiled request").WithCause(err)
	}
	return out, nil
}

// encodeMessagesFlat renders the OpenAI-style shape: an array of
// {role, content} objects, content a string when the message has plain
// text or an array of typed parts when it carries blocks.
func encodeMessagesFlat(msgs []message.Message) any {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		entry := map[string]any{"role": string(m.Role)}
		if m.ToolCallID != "" {
			entry["tool_call_id"] = m.ToolCallID
		}
		if m.HasBlocks() {
			entry["content"] = encodeBlocksFlat(m.Blocks)
		} else {
			entry["content"] = m.Text
		}
		out = append(out, entry)
	}
	return out
}

func encodeBlocksFlat(blocks []message.ContentBlock) []any {
	parts := make([]any, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case message.Text:
			parts = append(parts, map[string]any{"type": "text", "text": v.Text})
		case message.Image:
			parts = append(parts, map[string]any{"type": "image_url", "image_url": map[string]any{"url": imageURL(v.Source)}})
		case message.Audio:
			parts = append(parts, map[string]any{"type": "audio", "audio": map[string]any{"url": imageURL(v.Source)}})
		case message.ToolUse:
			parts = append(parts, map[string]any{"type": "tool_use", "id": v.ID, "name": v.Name, "input": json.RawMessage(v.Input)})
		case message.ToolResult:
			parts = append(parts, map[string]any{"type": "tool_result", "tool_use_id": v.ToolUseID, "content": v.Content, "is_error": v.IsError})
		}
	}
	return parts
}

// encodeMessagesBlocks renders the Anthropic-style shape: content is
// always an array of typed blocks, never a bare string.
func encodeMessagesBlocks(msgs []message.Message) any {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		blocks := m.Blocks
		if !m.HasBlocks() && m.Text != "" {
			blocks = []message.ContentBlock{message.Text{Text: m.Text}}
		}
		out = append(out, map[string]any{
			"role":    string(m.Role),
			"content": encodeBlocksFlat(blocks),
		})
	}
	return out
}

// encodeMessagesContents renders the Google/Gemini-style "contents"
// shape: role is "model" instead of "assistant", and parts use "text".
func encodeMessagesContents(msgs []message.Message) any {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		role := string(m.Role)
		if role == "assistant" {
			role = "model"
		}
		parts := []any{}
		if m.HasBlocks() {
			for _, b := range m.Blocks {
				if t, ok := b.(message.Text); ok {
					parts = append(parts, map[string]any{"text": t.Text})
				}
			}
		} else {
			parts = append(parts, map[string]any{"text": m.Text})
		}
		out = append(out, map[string]any{"role": role, "parts": parts})
	}
	return out
}

func imageURL(s message.Source) string {
	if s.URL != "" {
		return s.URL
	}
	return "data:" + s.MediaType + ";base64," + s.Base64
}

func encodeTools(tools []message.ToolDefinition) []any {
	out := make([]any, 0, len(tools))
	for _, t := range tools {
		toolType := t.ToolType
		if toolType == "" {
			toolType = "function"
		}
		out = append(out, map[string]any{
			"type": toolType,
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  json.RawMessage(t.Parameters),
			},
		})
	}
	return out
}
