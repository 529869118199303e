// Package protocol implements the provider manifest model, loader,
// validator, and request compiler described in spec.md §3 and §4.1. A
// Manifest declares everything the client executor needs to talk to one
// provider: endpoints, authentication, capability flags, field-path
// mappings, streaming decoder/mapper configuration, retry policy, error
// classification, and rate-limit header names. No provider-specific
// behavior is ever hard-coded here — manifests are data, loaded once per
// logical model and never mutated after validation.
package protocol

import "encoding/json"

// SupportedProtocolVersions is the finite allow-list spec.md §3 requires.
var SupportedProtocolVersions = map[string]bool{
	"1.1": true,
	"1.5": true,
	"2.0": true,
}

// Manifest is the declarative record describing one provider, decoded
// from a YAML document. Field names and nesting follow the original
// ai-lib-rust manifest shape so existing manifest files on disk parse
// unchanged.
type Manifest struct {
	Schema          string `yaml:"$schema,omitempty" json:"$schema,omitempty"`
	ID              string `yaml:"id" json:"id"`
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	Name           string `yaml:"name,omitempty" json:"name,omitempty"`
	ProviderID     string `yaml:"provider_id,omitempty" json:"provider_id,omitempty"`
	Version        string `yaml:"version,omitempty" json:"version,omitempty"`
	Status         string `yaml:"status,omitempty" json:"status,omitempty"`
	Category       string `yaml:"category,omitempty" json:"category,omitempty"`
	OfficialURL    string `yaml:"official_url,omitempty" json:"official_url,omitempty"`
	SupportContact string `yaml:"support_contact,omitempty" json:"support_contact,omitempty"`

	Endpoint     Endpoint     `yaml:"endpoint" json:"endpoint"`
	Availability Availability `yaml:"availability,omitempty" json:"availability,omitempty"`
	Capabilities Capabilities `yaml:"capabilities" json:"capabilities"`
	Auth         Auth         `yaml:"auth" json:"auth"`

	PayloadFormat      string            `yaml:"payload_format,omitempty" json:"payload_format,omitempty"`
	ParameterMappings  map[string]string `yaml:"parameter_mappings" json:"parameter_mappings"`
	ResponseFormat     string            `yaml:"response_format,omitempty" json:"response_format,omitempty"`
	ResponsePaths      map[string]string `yaml:"response_paths,omitempty" json:"response_paths,omitempty"`

	Streaming *Streaming `yaml:"streaming,omitempty" json:"streaming,omitempty"`
	Features  *Features  `yaml:"features,omitempty" json:"features,omitempty"`

	Endpoints map[string]EndpointOp  `yaml:"endpoints,omitempty" json:"endpoints,omitempty"`
	Services  map[string]ServiceCall `yaml:"services,omitempty" json:"services,omitempty"`

	APIFamilies      []string `yaml:"api_families,omitempty" json:"api_families,omitempty"`
	DefaultAPIFamily string   `yaml:"default_api_family,omitempty" json:"default_api_family,omitempty"`
	APIStyle         string   `yaml:"api_style,omitempty" json:"api_style,omitempty"`

	Termination *Termination `yaml:"termination,omitempty" json:"termination,omitempty"`
	Tooling     *Tooling     `yaml:"tooling,omitempty" json:"tooling,omitempty"`

	RetryPolicy         *RetryPolicy         `yaml:"retry_policy,omitempty" json:"retry_policy,omitempty"`
	ErrorClassification *ErrorClassification `yaml:"error_classification,omitempty" json:"error_classification,omitempty"`
	RateLimitHeaders    *RateLimitHeaders    `yaml:"rate_limit_headers,omitempty" json:"rate_limit_headers,omitempty"`

	ExperimentalFeatures []string `yaml:"experimental_features,omitempty" json:"experimental_features,omitempty"`
}

// Endpoint is the provider's base URL and transport hints.
type Endpoint struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	Protocol  string `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	TimeoutMs int    `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
}

// EndpointOp describes one operation's HTTP path and method. It accepts
// either the shorthand YAML form (a bare path string, POST implied) or
// the full object form via UnmarshalYAML.
type EndpointOp struct {
	Path    string `yaml:"path" json:"path"`
	Method  string `yaml:"method" json:"method"`
	Adapter string `yaml:"adapter,omitempty" json:"adapter,omitempty"`
}

// UnmarshalYAML implements the shorthand/full-form duality: an endpoint
// may be written as a bare path string, defaulting method to POST.
func (e *EndpointOp) UnmarshalYAML(unmarshal func(any) error) error {
	var asString string
	if err := unmarshal(&asString); err == nil {
		e.Path = asString
		e.Method = "POST"
		return nil
	}
	type plain EndpointOp
	var full plain
	if err := unmarshal(&full); err != nil {
		return err
	}
	*e = EndpointOp(full)
	if e.Method == "" {
		e.Method = "POST"
	}
	return nil
}

// ServiceCall describes an auxiliary GET/POST endpoint (model listing,
// health checks, etc.) that is not part of the primary chat/embeddings
// request flow.
type ServiceCall struct {
	Path             string            `yaml:"path" json:"path"`
	Method           string            `yaml:"method,omitempty" json:"method,omitempty"`
	Headers          map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	QueryParams      map[string]string `yaml:"query_params,omitempty" json:"query_params,omitempty"`
	ResponseBinding  string            `yaml:"response_binding,omitempty" json:"response_binding,omitempty"`
}

// Capabilities declares which optional behaviors a provider supports.
// Streaming, Tools, and Vision are required fields per the schema;
// the rest default to false.
type Capabilities struct {
	Streaming     bool `yaml:"streaming" json:"streaming"`
	Tools         bool `yaml:"tools" json:"tools"`
	Vision        bool `yaml:"vision" json:"vision"`
	Agentic       bool `yaml:"agentic,omitempty" json:"agentic,omitempty"`
	ParallelTools bool `yaml:"parallel_tools,omitempty" json:"parallel_tools,omitempty"`
	Reasoning     bool `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`
	Multimodal    bool `yaml:"multimodal,omitempty" json:"multimodal,omitempty"`
	Audio         bool `yaml:"audio,omitempty" json:"audio,omitempty"`
}

// Supports reports whether the manifest claims a named capability.
// "multimodal" is also true when vision or audio is claimed.
func (c Capabilities) Supports(name string) bool {
	switch name {
	case "streaming":
		return c.Streaming
	case "tools":
		return c.Tools
	case "vision":
		return c.Vision
	case "agentic":
		return c.Agentic
	case "parallel_tools":
		return c.ParallelTools
	case "reasoning":
		return c.Reasoning
	case "multimodal":
		return c.Multimodal || c.Vision || c.Audio
	case "audio":
		return c.Audio
	default:
		return false
	}
}

// Auth describes how the transport authenticates requests: a bearer
// token from an environment variable, an API-key header, a query
// parameter, or a fixed list of extra headers.
type Auth struct {
	Type         string   `yaml:"type" json:"type"`
	TokenEnv     string   `yaml:"token_env,omitempty" json:"token_env,omitempty"`
	KeyEnv       string   `yaml:"key_env,omitempty" json:"key_env,omitempty"`
	ParamName    string   `yaml:"param_name,omitempty" json:"param_name,omitempty"`
	HeaderName   string   `yaml:"header_name,omitempty" json:"header_name,omitempty"`
	ExtraHeaders []Header `yaml:"extra_headers,omitempty" json:"extra_headers,omitempty"`
}

// Header is one fixed name/value pair applied to every outgoing request.
type Header struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Streaming configures the decode → select → accumulate → fan-out →
// map pipeline for this provider, per spec.md §4.2.
type Streaming struct {
	EventFormat    string         `yaml:"event_format,omitempty" json:"event_format,omitempty"`
	Decoder        *Decoder       `yaml:"decoder,omitempty" json:"decoder,omitempty"`
	FrameSelector  string         `yaml:"frame_selector,omitempty" json:"frame_selector,omitempty"`
	ContentPath    string         `yaml:"content_path,omitempty" json:"content_path,omitempty"`
	ToolCallPath   string         `yaml:"tool_call_path,omitempty" json:"tool_call_path,omitempty"`
	UsagePath      string         `yaml:"usage_path,omitempty" json:"usage_path,omitempty"`
	Candidate      *Candidate     `yaml:"candidate,omitempty" json:"candidate,omitempty"`
	Accumulator    *Accumulator   `yaml:"accumulator,omitempty" json:"accumulator,omitempty"`
	EventMap       []EventMapRule `yaml:"event_map,omitempty" json:"event_map,omitempty"`
	StopCondition  string         `yaml:"stop_condition,omitempty" json:"stop_condition,omitempty"`
	ToolUse        *ToolUseMapping `yaml:"tool_use,omitempty" json:"tool_use,omitempty"`
}

// Decoder configures the bytes-to-JSON-frame decode stage.
type Decoder struct {
	Format     string `yaml:"format" json:"format"` // "sse" or "ndjson"
	Strategy   string `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Delimiter  string `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`
	Prefix     string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	DoneSignal string `yaml:"done_signal,omitempty" json:"done_signal,omitempty"`
}

// Candidate configures multi-candidate (n>1) response handling.
type Candidate struct {
	CandidateIDPath string `yaml:"candidate_id_path,omitempty" json:"candidate_id_path,omitempty"`
	FanOut          bool   `yaml:"fan_out,omitempty" json:"fan_out,omitempty"`
}

// Accumulator configures stateful frame buffering. v1 ships as an
// identity pass-through per spec.md §9 Open Question (ii).
type Accumulator struct {
	StatefulToolParsing bool   `yaml:"stateful_tool_parsing,omitempty" json:"stateful_tool_parsing,omitempty"`
	KeyPath             string `yaml:"key_path,omitempty" json:"key_path,omitempty"`
	FlushOn             string `yaml:"flush_on,omitempty" json:"flush_on,omitempty"`
}

// EventMapRule is one rule-based mapping entry: when Match evaluates
// true against a frame, Emit names the unified event kind to produce,
// with Fields mapping unified field name to a JSON path in the frame.
type EventMapRule struct {
	Match  string            `yaml:"match" json:"match"`
	Emit   string            `yaml:"emit" json:"emit"`
	Fields map[string]string `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// ToolUseMapping locates a tool call's id/name/input within a frame,
// used by the default path-based mapper.
type ToolUseMapping struct {
	IDPath      string `yaml:"id_path,omitempty" json:"id_path,omitempty"`
	NamePath    string `yaml:"name_path,omitempty" json:"name_path,omitempty"`
	InputPath   string `yaml:"input_path,omitempty" json:"input_path,omitempty"`
	IndexPath   string `yaml:"index_path,omitempty" json:"index_path,omitempty"`
	InputFormat string `yaml:"input_format,omitempty" json:"input_format,omitempty"`
}

// ToolResultMapping locates a tool result's id/name/response within a
// non-streaming response. It is carried on the manifest as declared;
// neither the compiler nor the client executor reads it.
type ToolResultMapping struct {
	IDPath       string `yaml:"id_path,omitempty" json:"id_path,omitempty"`
	NamePath     string `yaml:"name_path,omitempty" json:"name_path,omitempty"`
	ResponsePath string `yaml:"response_path,omitempty" json:"response_path,omitempty"`
}

// Features groups optional multi-candidate and response-mapping
// extensions that are not required by every manifest.
type Features struct {
	MultiCandidate   *MultiCandidate   `yaml:"multi_candidate,omitempty" json:"multi_candidate,omitempty"`
	ResponseMapping  *ResponseMapping  `yaml:"response_mapping,omitempty" json:"response_mapping,omitempty"`
}

// MultiCandidate configures requesting more than one completion
// candidate per call.
type MultiCandidate struct {
	SupportType   string `yaml:"support_type" json:"support_type"`
	ParamName     string `yaml:"param_name,omitempty" json:"param_name,omitempty"`
	MaxConcurrent int    `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`
}

// ResponseMapping groups tool-call and error extraction rules applied
// to non-streaming responses.
type ResponseMapping struct {
	ToolCalls *ToolCallsMapping `yaml:"tool_calls,omitempty" json:"tool_calls,omitempty"`
	Error     *ErrorMapping     `yaml:"error,omitempty" json:"error,omitempty"`
}

// ToolCallsMapping locates a tool-call array in a non-streaming
// response body.
type ToolCallsMapping struct {
	Path         string            `yaml:"path" json:"path"`
	Filter       string            `yaml:"filter,omitempty" json:"filter,omitempty"`
	Fields       map[string]string `yaml:"fields" json:"fields"`
	ArrayFanOut  bool              `yaml:"array_fan_out,omitempty" json:"array_fan_out,omitempty"`
}

// ErrorMapping locates error message/code/type fields in a non-2xx
// response body, falling back to the OpenAI-style error.code/error.type
// paths per spec.md §4.7 step 5 when unset.
type ErrorMapping struct {
	MessagePath string `yaml:"message_path,omitempty" json:"message_path,omitempty"`
	CodePath    string `yaml:"code_path,omitempty" json:"code_path,omitempty"`
	TypePath    string `yaml:"type_path,omitempty" json:"type_path,omitempty"`
}

// Termination locates the finish-reason field in a response and maps
// provider-native values onto unified finish reasons.
type Termination struct {
	SourceField string            `yaml:"source_field" json:"source_field"`
	Mapping     map[string]string `yaml:"mapping,omitempty" json:"mapping,omitempty"`
}

// Tooling describes non-streaming tool call/result shapes for a provider
// whose tool shape differs from the default OpenAI-style one. It is
// carried on the manifest as declared; neither the compiler nor the
// client executor reads it (streaming tool calls use Streaming.ToolUse).
type Tooling struct {
	SourceModel string             `yaml:"source_model" json:"source_model"`
	ToolUse     *ToolUseMapping    `yaml:"tool_use,omitempty" json:"tool_use,omitempty"`
	ToolResult  *ToolResultMapping `yaml:"tool_result,omitempty" json:"tool_result,omitempty"`
}

// RetryPolicy configures the policy engine's retry behavior for this
// manifest, per spec.md §4.3.
type RetryPolicy struct {
	Strategy           string   `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	MaxRetries         int      `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	MinDelayMs         int      `yaml:"min_delay_ms,omitempty" json:"min_delay_ms,omitempty"`
	MaxDelayMs         int      `yaml:"max_delay_ms,omitempty" json:"max_delay_ms,omitempty"`
	Jitter             string   `yaml:"jitter,omitempty" json:"jitter,omitempty"`
	RetryOnHTTPStatus  []int    `yaml:"retry_on_http_status,omitempty" json:"retry_on_http_status,omitempty"`
	RetryOnErrorStatus []string `yaml:"retry_on_error_status,omitempty" json:"retry_on_error_status,omitempty"`
}

// ErrorClassification maps HTTP status codes and provider error codes
// onto standard remote error classes.
type ErrorClassification struct {
	ByHTTPStatus  map[string]string `yaml:"by_http_status,omitempty" json:"by_http_status,omitempty"`
	ByErrorStatus map[string]string `yaml:"by_error_status,omitempty" json:"by_error_status,omitempty"`
}

// RateLimitHeaders names the response headers the client executor reads
// to update the adaptive rate limiter budget.
type RateLimitHeaders struct {
	RequestsLimit     string `yaml:"requests_limit,omitempty" json:"requests_limit,omitempty"`
	RequestsRemaining string `yaml:"requests_remaining,omitempty" json:"requests_remaining,omitempty"`
	RequestsReset     string `yaml:"requests_reset,omitempty" json:"requests_reset,omitempty"`
	TokensLimit       string `yaml:"tokens_limit,omitempty" json:"tokens_limit,omitempty"`
	TokensRemaining   string `yaml:"tokens_remaining,omitempty" json:"tokens_remaining,omitempty"`
	TokensReset       string `yaml:"tokens_reset,omitempty" json:"tokens_reset,omitempty"`
	RetryAfter        string `yaml:"retry_after,omitempty" json:"retry_after,omitempty"`
}

// Availability carries health-check metadata. It is informational; the
// core execution engine does not act on it.
type Availability struct {
	Required bool          `yaml:"required,omitempty" json:"required,omitempty"`
	Regions  []string      `yaml:"regions,omitempty" json:"regions,omitempty"`
	Check    *HealthCheck  `yaml:"check,omitempty" json:"check,omitempty"`
	Notes    []string      `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// HealthCheck describes an out-of-band liveness probe for a provider.
type HealthCheck struct {
	Method         string `yaml:"method" json:"method"`
	Path           string `yaml:"path" json:"path"`
	ExpectedStatus []int  `yaml:"expected_status" json:"expected_status"`
	TimeoutMs      int    `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
}

// GetBaseURL returns the provider's base URL.
func (m *Manifest) GetBaseURL() string { return m.Endpoint.BaseURL }

// MarshalJSON encodes the manifest using its json tags. Validate relies
// on it to turn a manifest into the document checked against the schema.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type alias Manifest
	return json.Marshal((*alias)(m))
}
