package protocol

import (
	"encoding/json"
	"fmt"

	aiproto "github.com/hiddenpath/ai-protocol-go"
)

// Validate checks m against the embedded JSON Schema and the additional
// structural invariants the schema cannot express (spec.md §4.1):
// a manifest claiming streaming capability must carry a Streaming
// block with a decoder, and every declared event_map rule's "emit"
// name must be one of the recognized unified event kinds.
func Validate(m *Manifest) error {
	if err := validateSchema(m); err != nil {
		return err
	}
	return validateInvariants(m)
}

func validateSchema(m *Manifest) error {
	s, err := compiledSchema()
	if err != nil {
		return aiproto.New(aiproto.KindConfiguration, "protocol: manifest schema unavailable").WithCause(err)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return aiproto.New(aiproto.KindSerialization, "protocol: marshaling manifest for validation").WithCause(err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return aiproto.New(aiproto.KindSerialization, "protocol: re-decoding manifest for validation").WithCause(err)
	}
	if err := s.Validate(doc); err != nil {
		return aiproto.New(aiproto.KindValidation, fmt.Sprintf("protocol: manifest %q failed schema validation", m.ID)).
			WithContext(aiproto.NewErrorContext().WithSource(m.ID)).
			WithCause(err)
	}
	return nil
}

var recognizedEmitKinds = map[string]bool{
	"content_delta":    true,
	"thinking_delta":   true,
	"tool_call_start":  true,
	"tool_call_delta":  true,
	"tool_call_end":    true,
	"metadata":         true,
	"final_candidate":  true,
	"stream_end":       true,
}

func validateInvariants(m *Manifest) error {
	if m.Capabilities.Streaming {
		if m.Streaming == nil {
			return configError(m.ID, "capabilities.streaming is true but no streaming block is present")
		}
		if m.Streaming.Decoder == nil {
			return configError(m.ID, "streaming capability requires streaming.decoder")
		}
		switch m.Streaming.Decoder.Format {
		case "sse", "ndjson":
		default:
			return configError(m.ID, fmt.Sprintf("streaming.decoder.format %q is not sse or ndjson", m.Streaming.Decoder.Format))
		}
		for _, rule := range m.Streaming.EventMap {
			if !recognizedEmitKinds[rule.Emit] {
				return configError(m.ID, fmt.Sprintf("event_map rule emits unrecognized kind %q", rule.Emit))
			}
		}
	}
	if m.Capabilities.Tools && len(m.ParameterMappings) == 0 {
		return configError(m.ID, "capabilities.tools is true but parameter_mappings is empty")
	}
	for name, ep := range m.Endpoints {
		if ep.Method != "" {
			switch ep.Method {
			case "GET", "POST", "PUT", "DELETE", "PATCH":
			default:
				return configError(m.ID, fmt.Sprintf("endpoint %q has unsupported method %q", name, ep.Method))
			}
		}
	}
	return nil
}

func configError(manifestID, msg string) error {
	return aiproto.New(aiproto.KindValidation, "protocol: "+msg).
		WithContext(aiproto.NewErrorContext().WithSource(manifestID))
}
