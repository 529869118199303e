package message

import "encoding/json"

// ToolCallAssembler accumulates PartialToolCall fragments across a single
// stream into complete tool calls. Pipeline mappers guarantee
// ToolCallStarted{id} precedes every PartialToolCall{id} with that id
// (spec.md §8); the assembler relies on that ordering and is safe to feed
// events from exactly one stream — its state must never cross requests.
type ToolCallAssembler struct {
	order []string
	names map[string]string
	args  map[string]*[]byte
}

// NewToolCallAssembler returns an empty assembler for one stream.
func NewToolCallAssembler() *ToolCallAssembler {
	return &ToolCallAssembler{
		names: make(map[string]string),
		args:  make(map[string]*[]byte),
	}
}

// Feed consumes one event, updating internal state. It is a no-op for
// event kinds the assembler doesn't track.
func (a *ToolCallAssembler) Feed(ev Event) {
	switch e := ev.(type) {
	case ToolCallStarted:
		if _, ok := a.args[e.ToolCallID]; !ok {
			buf := make([]byte, 0, 64)
			a.args[e.ToolCallID] = &buf
			a.names[e.ToolCallID] = e.ToolName
			a.order = append(a.order, e.ToolCallID)
		}
	case PartialToolCall:
		buf, ok := a.args[e.ToolCallID]
		if !ok {
			empty := make([]byte, 0, 64)
			buf = &empty
			a.args[e.ToolCallID] = buf
			a.order = append(a.order, e.ToolCallID)
		}
		*buf = append(*buf, e.Arguments...)
	}
}

// Results returns the assembled tool calls in the order their ids were
// first observed. Arguments that are not valid JSON once concatenated
// are returned as a raw JSON string value rather than dropped.
func (a *ToolCallAssembler) Results() []ToolCallResult {
	out := make([]ToolCallResult, 0, len(a.order))
	for _, id := range a.order {
		raw := *a.args[id]
		args := json.RawMessage(raw)
		if len(raw) == 0 {
			args = json.RawMessage("{}")
		} else if !json.Valid(raw) {
			encoded, _ := json.Marshal(string(raw))
			args = json.RawMessage(encoded)
		}
		out = append(out, ToolCallResult{
			ID:        id,
			Name:      a.names[id],
			Arguments: args,
		})
	}
	return out
}
