package client

import (
	"encoding/json"
	"fmt"
	"strconv"

	aiproto "github.com/hiddenpath/ai-protocol-go"
	"github.com/hiddenpath/ai-protocol-go/pipeline/jsonpath"
	"github.com/hiddenpath/ai-protocol-go/protocol"
)

// classifyRemoteError turns a non-2xx HTTP response into an
// *aiproto.Error of KindRemote, resolving its RemoteClass from the
// manifest's error_classification table (falling back to the
// OpenAI-style error.type/error.code paths per spec.md §4.7 step 5 when
// the manifest doesn't declare one).
func classifyRemoteError(m *protocol.Manifest, status int, raw []byte, requestID string) error {
	var doc any
	_ = json.Unmarshal(raw, &doc)

	message, code, errType := extractErrorFields(m, doc)
	class := resolveClass(m, status, code, errType)
	retryable, fallbackable := aiproto.ClassDefaults(class)

	ctx := aiproto.NewErrorContext().
		WithStatusCode(status).
		WithRequestID(requestID).
		WithStandardCode(code).
		WithRetryable(retryable).
		WithFallbackable(fallbackable).
		WithDetails(message)

	if message == "" {
		message = fmt.Sprintf("http status %d", status)
	}
	return aiproto.New(aiproto.KindRemote, message).WithClass(class).WithContext(ctx)
}

func extractErrorFields(m *protocol.Manifest, doc any) (message, code, errType string) {
	var mapping *protocol.ErrorMapping
	if m.Features != nil && m.Features.ResponseMapping != nil {
		mapping = m.Features.ResponseMapping.Error
	}
	msgPath, codePath, typePath := "error.message", "error.code", "error.type"
	if mapping != nil {
		if mapping.MessagePath != "" {
			msgPath = mapping.MessagePath
		}
		if mapping.CodePath != "" {
			codePath = mapping.CodePath
		}
		if mapping.TypePath != "" {
			typePath = mapping.TypePath
		}
	}
	if v, ok := jsonpath.Get(doc, msgPath); ok {
		message = asString(v)
	}
	if v, ok := jsonpath.Get(doc, codePath); ok {
		code = asString(v)
	}
	if v, ok := jsonpath.Get(doc, typePath); ok {
		errType = asString(v)
	}
	return
}

func resolveClass(m *protocol.Manifest, status int, code, errType string) aiproto.RemoteClass {
	if m.ErrorClassification != nil {
		if cls, ok := m.ErrorClassification.ByHTTPStatus[strconv.Itoa(status)]; ok {
			return aiproto.RemoteClass(cls)
		}
		if code != "" {
			if cls, ok := m.ErrorClassification.ByErrorStatus[code]; ok {
				return aiproto.RemoteClass(cls)
			}
		}
		if errType != "" {
			if cls, ok := m.ErrorClassification.ByErrorStatus[errType]; ok {
				return aiproto.RemoteClass(cls)
			}
		}
	}
	return classifyByStatus(status)
}

// classifyByStatus gives every manifest a reasonable default even when
// it declares no error_classification table at all.
func classifyByStatus(status int) aiproto.RemoteClass {
	switch {
	case status == 400:
		return aiproto.ClassInvalidRequest
	case status == 401:
		return aiproto.ClassAuthentication
	case status == 403:
		return aiproto.ClassPermissionDenied
	case status == 404:
		return aiproto.ClassNotFound
	case status == 409:
		return aiproto.ClassConflict
	case status == 413:
		return aiproto.ClassRequestTooLarge
	case status == 429:
		return aiproto.ClassRateLimited
	case status == 503:
		return aiproto.ClassOverloaded
	case status == 504:
		return aiproto.ClassTimeout
	case status >= 500:
		return aiproto.ClassServerError
	default:
		return aiproto.ClassHTTPError
	}
}
