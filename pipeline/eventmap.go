package pipeline

import (
	"encoding/json"
	"strconv"

	"github.com/hiddenpath/ai-protocol-go/message"
	"github.com/hiddenpath/ai-protocol-go/pipeline/jsonpath"
	"github.com/hiddenpath/ai-protocol-go/protocol"
)

// mapper turns one candidateFrame into zero or more unified events. A
// mapper is stateful across a single stream: it tracks which tool-call
// indices have already been announced via ToolCallStarted, since many
// providers only send the id/name on the first delta for an index and
// rely on the index alone thereafter.
type mapper interface {
	mapFrame(cf candidateFrame) []message.Event
}

// newMapper builds a RuleMapper when the manifest declares event_map
// rules, or a DefaultMapper otherwise, per spec.md §4.2.
func newMapper(s *protocol.Streaming) (mapper, error) {
	if s != nil && len(s.EventMap) > 0 {
		return newRuleMapper(s.EventMap)
	}
	return newDefaultMapper(s), nil
}

// ruleMapper evaluates a manifest's declared event_map rules in order;
// the first rule whose Match condition is true produces the event.
type ruleMapper struct {
	rules []compiledRule
}

type compiledRule struct {
	cond   *jsonpath.Condition
	emit   string
	fields map[string][]jsonpath.Segment
}

func newRuleMapper(rules []protocol.EventMapRule) (*ruleMapper, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cond, err := jsonpath.Compile(r.Match)
		if err != nil {
			return nil, err
		}
		fields := make(map[string][]jsonpath.Segment, len(r.Fields))
		for k, path := range r.Fields {
			segs, err := jsonpath.Parse(path)
			if err != nil {
				return nil, err
			}
			fields[k] = segs
		}
		compiled = append(compiled, compiledRule{cond: cond, emit: r.Emit, fields: fields})
	}
	return &ruleMapper{rules: compiled}, nil
}

func (m *ruleMapper) mapFrame(cf candidateFrame) []message.Event {
	for _, rule := range m.rules {
		if !rule.cond.Eval(cf.Frame.Decoded) {
			continue
		}
		ev := buildEvent(rule.emit, cf.Frame.Decoded, rule.fields)
		if ev == nil {
			return nil
		}
		return []message.Event{ev}
	}
	return nil
}

func buildEvent(emit string, frame any, fields map[string][]jsonpath.Segment) message.Event {
	get := func(key string) (any, bool) {
		segs, ok := fields[key]
		if !ok {
			return nil, false
		}
		return jsonpath.GetSegments(frame, segs)
	}
	str := func(key string) string {
		v, _ := get(key)
		return asString(v)
	}
	intPtr := func(key string) *int {
		v, ok := get(key)
		if !ok {
			return nil
		}
		n := asInt(v)
		return &n
	}

	switch emit {
	case "content_delta":
		return message.PartialContentDelta{Content: str("content"), SequenceID: intPtr("sequence_id")}
	case "thinking_delta":
		return message.ThinkingDelta{Thinking: str("thinking"), ToolConsideration: str("tool_consideration")}
	case "tool_call_start":
		return message.ToolCallStarted{ToolCallID: str("tool_call_id"), ToolName: str("tool_name"), Index: intPtr("index")}
	case "tool_call_delta":
		return message.PartialToolCall{ToolCallID: str("tool_call_id"), Arguments: str("arguments"), Index: intPtr("index")}
	case "tool_call_end":
		return message.ToolCallEnded{ToolCallID: str("tool_call_id"), Index: intPtr("index")}
	case "metadata":
		v, _ := get("usage")
		return message.Metadata{Usage: asRaw(v), FinishReason: str("finish_reason"), StopReason: str("stop_reason")}
	case "final_candidate":
		idx := 0
		if p := intPtr("index"); p != nil {
			idx = *p
		}
		return message.FinalCandidate{Index: idx, FinishReason: str("finish_reason")}
	case "stream_end":
		return message.StreamEnd{FinishReason: str("finish_reason")}
	default:
		return nil
	}
}

// defaultMapper handles manifests that declare content_path, usage_path
// and stop_condition directly instead of a full event_map rule list — the
// common case for simpler providers. Tool calls are read only through the
// streaming tool_use mapping; tool_call_path is parsed but no events are
// taken from it.
type defaultMapper struct {
	contentPath  []jsonpath.Segment
	toolCallPath []jsonpath.Segment
	usagePath    []jsonpath.Segment
	stopCond     *jsonpath.Condition
	toolUse      *protocol.ToolUseMapping

	indexToID map[int]string
}

func newDefaultMapper(s *protocol.Streaming) *defaultMapper {
	m := &defaultMapper{indexToID: make(map[int]string)}
	if s == nil {
		return m
	}
	if s.ContentPath != "" {
		m.contentPath, _ = jsonpath.Parse(s.ContentPath)
	}
	if s.ToolCallPath != "" {
		m.toolCallPath, _ = jsonpath.Parse(s.ToolCallPath)
	}
	if s.UsagePath != "" {
		m.usagePath, _ = jsonpath.Parse(s.UsagePath)
	}
	if s.StopCondition != "" {
		m.stopCond, _ = jsonpath.Compile(s.StopCondition)
	}
	m.toolUse = s.ToolUse
	return m
}

func (m *defaultMapper) mapFrame(cf candidateFrame) []message.Event {
	var events []message.Event
	frame := cf.Frame.Decoded

	if len(m.contentPath) > 0 {
		if v, ok := jsonpath.GetSegments(frame, m.contentPath); ok {
			if s := asString(v); s != "" {
				events = append(events, message.PartialContentDelta{Content: s})
			}
		}
	}

	if m.toolUse != nil {
		events = append(events, m.mapToolCall(frame)...)
	}

	if len(m.usagePath) > 0 {
		if v, ok := jsonpath.GetSegments(frame, m.usagePath); ok {
			events = append(events, message.Metadata{Usage: asRaw(v)})
		}
	}

	if m.stopCond != nil && m.stopCond.Eval(frame) {
		events = append(events, message.StreamEnd{})
	}

	return events
}

func (m *defaultMapper) mapToolCall(frame any) []message.Event {
	var events []message.Event
	tu := m.toolUse

	idx := 0
	if tu.IndexPath != "" {
		if v, ok := jsonpath.Get(frame, tu.IndexPath); ok {
			idx = asInt(v)
		}
	}

	var id string
	if tu.IDPath != "" {
		if v, ok := jsonpath.Get(frame, tu.IDPath); ok {
			id = asString(v)
		}
	}
	if id != "" {
		if existing, seen := m.indexToID[idx]; !seen || existing != id {
			m.indexToID[idx] = id
			name := ""
			if tu.NamePath != "" {
				if v, ok := jsonpath.Get(frame, tu.NamePath); ok {
					name = asString(v)
				}
			}
			i := idx
			events = append(events, message.ToolCallStarted{ToolCallID: id, ToolName: name, Index: &i})
		}
	}

	if tu.InputPath != "" {
		if v, ok := jsonpath.Get(frame, tu.InputPath); ok {
			if frag := asString(v); frag != "" {
				callID := m.indexToID[idx]
				i := idx
				events = append(events, message.PartialToolCall{ToolCallID: callID, Arguments: frag, Index: &i})
			}
		}
	}
	return events
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case json.RawMessage:
		return string(s)
	default:
		raw, _ := json.Marshal(s)
		return string(raw)
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

func asRaw(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
