// Package aiproto defines the error taxonomy shared by every layer of the
// request execution engine: manifest loading, compilation, the streaming
// pipeline, the policy engine, resilience primitives, and the client
// executor. A single concrete type, Error, carries every kind so that
// retry/fallback logic can inspect one ErrorContext regardless of which
// layer raised the failure.
package aiproto

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into one of the categories the policy engine
// and applications reason about.
type Kind string

const (
	// KindProtocol covers manifest decode/fetch failures that are not
	// structural validation errors (see KindValidation).
	KindProtocol Kind = "protocol"

	// KindConfiguration covers malformed builder input and unreachable
	// manifest roots supplied by the application.
	KindConfiguration Kind = "configuration"

	// KindValidation covers manifest structure errors, capability
	// mismatches against a request, unsupported protocol versions, and
	// invalid JSON paths.
	KindValidation Kind = "validation"

	// KindTransport covers network-level failures: connection reset, TLS
	// failure, DNS failure. Always retryable and fallbackable.
	KindTransport Kind = "transport"

	// KindRemote covers HTTP non-2xx responses from the provider.
	KindRemote Kind = "remote"

	// KindRuntime covers circuit breaker open, attempt timeout, and
	// inflight semaphore closed.
	KindRuntime Kind = "runtime"

	// KindSerialization covers unexpected payloads and decoder formats
	// that cannot be parsed.
	KindSerialization Kind = "serialization"

	// KindPipeline covers malformed JSON mid-stream and other streaming
	// pipeline failures.
	KindPipeline Kind = "pipeline"
)

// RemoteClass is the standard set of remote error classes a manifest's
// error_classification table maps HTTP statuses and provider codes onto.
type RemoteClass string

const (
	ClassInvalidRequest  RemoteClass = "invalid_request"
	ClassAuthentication  RemoteClass = "authentication"
	ClassPermissionDenied RemoteClass = "permission_denied"
	ClassNotFound        RemoteClass = "not_found"
	ClassRateLimited     RemoteClass = "rate_limited"
	ClassOverloaded      RemoteClass = "overloaded"
	ClassServerError     RemoteClass = "server_error"
	ClassTimeout         RemoteClass = "timeout"
	ClassConflict        RemoteClass = "conflict"
	ClassQuotaExhausted  RemoteClass = "quota_exhausted"
	ClassRequestTooLarge RemoteClass = "request_too_large"
	ClassCancelled       RemoteClass = "cancelled"
	ClassHTTPError       RemoteClass = "http_error"
)

// classDefaults holds the default (retryable, fallbackable) flags for each
// standard remote class, per spec.md §7.
var classDefaults = map[RemoteClass][2]bool{
	ClassInvalidRequest:  {false, false},
	ClassAuthentication:  {false, false},
	ClassPermissionDenied: {false, false},
	ClassNotFound:        {false, false},
	ClassRateLimited:     {true, true},
	ClassOverloaded:      {true, true},
	ClassServerError:     {true, true},
	ClassTimeout:         {true, true},
	ClassConflict:        {true, true},
	ClassQuotaExhausted:  {true, true},
	ClassRequestTooLarge: {false, false},
	ClassCancelled:       {false, false},
	ClassHTTPError:       {false, true},
}

// ClassDefaults returns the default (retryable, fallbackable) pair for a
// standard remote class. Unknown classes default to (false, true) as the
// manifest's error_classification default in spec.md §4.7 step 5.
func ClassDefaults(c RemoteClass) (retryable, fallbackable bool) {
	d, ok := classDefaults[c]
	if !ok {
		return false, true
	}
	return d[0], d[1]
}

// ErrorContext carries the information the policy engine and applications
// need to make retry/fallback decisions and to render diagnostics, without
// forcing every layer to know about every other layer's concerns.
type ErrorContext struct {
	StatusCode    int
	RequestID     string
	Retryable     *bool
	Fallbackable  *bool
	RetryAfterMs  *int64
	StandardCode  string
	FieldPath     string
	Source        string
	Details       string
}

// NewErrorContext returns an empty ErrorContext ready for the With* chain.
func NewErrorContext() ErrorContext { return ErrorContext{} }

func (c ErrorContext) WithStatusCode(v int) ErrorContext      { c.StatusCode = v; return c }
func (c ErrorContext) WithRequestID(v string) ErrorContext    { c.RequestID = v; return c }
func (c ErrorContext) WithRetryable(v bool) ErrorContext      { c.Retryable = &v; return c }
func (c ErrorContext) WithFallbackable(v bool) ErrorContext   { c.Fallbackable = &v; return c }
func (c ErrorContext) WithRetryAfterMs(v int64) ErrorContext  { c.RetryAfterMs = &v; return c }
func (c ErrorContext) WithStandardCode(v string) ErrorContext { c.StandardCode = v; return c }
func (c ErrorContext) WithFieldPath(v string) ErrorContext    { c.FieldPath = v; return c }
func (c ErrorContext) WithSource(v string) ErrorContext       { c.Source = v; return c }
func (c ErrorContext) WithDetails(v string) ErrorContext      { c.Details = v; return c }

// Error is the single concrete error type spanning all six kinds of
// spec.md §7. Every layer that owns additional information (HTTP status,
// request id, field path) attaches it via ErrorContext rather than
// introducing a new Go type per kind.
type Error struct {
	kind    Kind
	class   RemoteClass
	message string
	ctx     ErrorContext
	cause   error
}

// New constructs an Error of the given kind with a plain message.
func New(kind Kind, message string) *Error {
	if kind == "" {
		panic("aiproto: kind is required")
	}
	return &Error{kind: kind, message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// WithContext attaches an ErrorContext to the error, returning a new value.
func (e *Error) WithContext(ctx ErrorContext) *Error {
	n := *e
	n.ctx = ctx
	return &n
}

// WithClass sets the remote error class (meaningful only for KindRemote).
func (e *Error) WithClass(c RemoteClass) *Error {
	n := *e
	n.class = c
	return &n
}

// WithCause wraps an underlying error for errors.Unwrap/errors.Is chains.
func (e *Error) WithCause(cause error) *Error {
	n := *e
	n.cause = cause
	return &n
}

// Kind returns the error's taxonomy kind.
func (e *Error) Kind() Kind { return e.kind }

// Class returns the remote error class, meaningful only for KindRemote.
func (e *Error) Class() RemoteClass { return e.class }

// Context returns the attached ErrorContext (zero value if none set).
func (e *Error) Context() ErrorContext { return e.ctx }

// Retryable reports whether the policy engine should retry this error,
// reading ErrorContext.Retryable in preference to the kind/class default
// per spec.md §4.3.
func (e *Error) Retryable() bool {
	if e.ctx.Retryable != nil {
		return *e.ctx.Retryable
	}
	return e.defaultRetryFallback()
}

// Fallbackable reports whether the policy engine may try a fallback
// candidate after this error.
func (e *Error) Fallbackable() bool {
	if e.ctx.Fallbackable != nil {
		return *e.ctx.Fallbackable
	}
	_, fb := e.defaultRetryFallbackPair()
	return fb
}

func (e *Error) defaultRetryFallback() bool {
	r, _ := e.defaultRetryFallbackPair()
	return r
}

func (e *Error) defaultRetryFallbackPair() (retryable, fallbackable bool) {
	switch e.kind {
	case KindTransport:
		return true, true
	case KindRemote:
		return ClassDefaults(e.class)
	case KindRuntime:
		msg := e.message
		if containsFold(msg, "circuit breaker open") {
			return false, true
		}
		if containsFold(msg, "timeout") {
			return true, true
		}
		return false, false
	default:
		return false, false
	}
}

func containsFold(haystack, needle string) bool {
	hl, nl := len(haystack), len(needle)
	if nl == 0 || nl > hl {
		return nl == 0
	}
	for i := 0; i+nl <= hl; i++ {
		if equalFold(haystack[i:i+nl], needle) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.kind)
	if e.class != "" {
		prefix = fmt.Sprintf("%s/%s", e.kind, e.class)
	}
	msg := e.message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if e.ctx.Source != "" {
		return fmt.Sprintf("%s [%s]: %s", prefix, e.ctx.Source, msg)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// As reports whether err's chain contains an *Error, returning it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.kind == kind
}
