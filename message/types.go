// Package message defines the unified request, message, and tool types
// that flow through the manifest compiler and the streaming pipeline.
// These types are provider-agnostic: a Request is compiled against a
// protocol.Manifest into provider-native JSON, and provider responses are
// decoded back into unified Events (see the pipeline package).
package message

import "encoding/json"

// Role identifies who authored a Message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Operation identifies the kind of call a Request represents.
type Operation string

const (
	OperationChat       Operation = "chat"
	OperationEmbeddings Operation = "embeddings"
)

// Request is the unified request sent into the compiler. The client
// executor's candidate list selects the manifest; Model, Messages,
// Temperature, MaxTokens, Stream, Tools, and ToolChoice are compiled onto
// the provider's native JSON shape via the manifest's parameter_mappings.
// Operation is carried on the request; the compiler and the client
// executor do not read it.
type Request struct {
	Operation   Operation
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
	Stream      bool
	Tools       []ToolDefinition
	ToolChoice  json.RawMessage
}

// HasTools reports whether the request declares any tool definitions.
func (r *Request) HasTools() bool { return len(r.Tools) > 0 }

// HasMultimodalContent reports whether any message carries an image or
// audio content block, used by the policy engine's capability validation.
func (r *Request) HasMultimodalContent() bool {
	for _, m := range r.Messages {
		for _, b := range m.Blocks {
			switch b.(type) {
			case Image, Audio:
				return true
			}
		}
	}
	return false
}

// Message is one turn in the conversation. Content is either a single
// text string (Text) or an ordered sequence of ContentBlocks (Blocks);
// exactly one should be set. ToolCallID is required when Role is
// RoleTool.
type Message struct {
	Role       Role
	Text       string
	Blocks     []ContentBlock
	ToolCallID string
}

// HasBlocks reports whether the message uses the block-content form.
func (m Message) HasBlocks() bool { return len(m.Blocks) > 0 }

// ContentBlock is the marker interface implemented by every content
// block variant carried in Message.Blocks.
type ContentBlock interface{ isContentBlock() }

// Text is a plain text content block.
type Text struct {
	Text string
}

// Source describes where binary content for an Image/Audio block comes
// from: either a remote URL or inline base64-encoded bytes.
type Source struct {
	URL       string
	Base64    string
	MediaType string
}

// Image is an image content block.
type Image struct {
	Source Source
}

// Audio is an audio content block.
type Audio struct {
	Source Source
}

// ToolUse is a content block representing a model-issued tool call
// embedded in conversation history (as opposed to a live streaming
// ToolCallStarted/PartialToolCall/ToolCallEnded sequence).
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is a content block carrying the result of a prior tool
// call, referenced by ToolUseID.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (Text) isContentBlock()       {}
func (Image) isContentBlock()      {}
func (Audio) isContentBlock()      {}
func (ToolUse) isContentBlock()    {}
func (ToolResult) isContentBlock() {}

// ToolDefinition describes one function-style tool the model may call.
type ToolDefinition struct {
	ToolType    string // always "function"
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema document
}
