package message

import "encoding/json"

// Event is the marker interface implemented by every unified streaming
// event variant. A pipeline.Pipeline emits a sequence of Events for one
// streaming call; spec.md §4.2 guarantees exactly one StreamEnd per
// stream, last in the sequence.
type Event interface{ isEvent() }

// PartialContentDelta carries an incremental text fragment.
type PartialContentDelta struct {
	Content    string
	SequenceID *int
}

// ThinkingDelta carries an incremental reasoning/thinking fragment some
// providers surface alongside content.
type ThinkingDelta struct {
	Thinking          string
	ToolConsideration string
}

// ToolCallStarted announces a new tool call id observed in the stream.
// The default mapper emits this exactly once per id (spec.md §4.2).
type ToolCallStarted struct {
	ToolCallID string
	ToolName   string
	Index      *int
}

// PartialToolCall carries one fragment of a tool call's JSON arguments.
// Concatenating all fragments for a given ToolCallID yields the
// complete, parseable arguments JSON.
type PartialToolCall struct {
	ToolCallID string
	Arguments  string
	Index      *int
	IsComplete bool
}

// ToolCallEnded closes out a tool call started by ToolCallStarted.
type ToolCallEnded struct {
	ToolCallID string
	Index      *int
}

// Metadata carries usage and finish-reason information observed
// mid-stream, separately from the terminal StreamEnd event.
type Metadata struct {
	Usage        json.RawMessage
	FinishReason string
	StopReason   string
}

// FinalCandidate marks the end of one candidate (for multi-candidate
// responses); Index identifies which candidate finished.
type FinalCandidate struct {
	Index        int
	FinishReason string
}

// StreamEnd is the terminal event. Every stream produces exactly one,
// and it is always the last event.
type StreamEnd struct {
	FinishReason string
}

// StreamError carries a mid-stream pipeline failure. After a StreamError,
// no further events are produced and the stream terminates.
type StreamError struct {
	Err     error
	EventID string
}

func (PartialContentDelta) isEvent() {}
func (ThinkingDelta) isEvent()       {}
func (ToolCallStarted) isEvent()     {}
func (PartialToolCall) isEvent()     {}
func (ToolCallEnded) isEvent()       {}
func (Metadata) isEvent()            {}
func (FinalCandidate) isEvent()      {}
func (StreamEnd) isEvent()           {}
func (StreamError) isEvent()         {}

// Response is the unified non-streaming response produced by the client
// executor for a 2xx reply.
type Response struct {
	Content      []ContentBlock
	ToolCalls    []ToolCallResult
	FinishReason string
	StopReason   string
	Usage        json.RawMessage
	Raw          json.RawMessage
}

// ToolCallResult is one tool call surfaced in a non-streaming Response.
type ToolCallResult struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}
