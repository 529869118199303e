package transport

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/hiddenpath/ai-protocol-go/protocol"
	"github.com/stretchr/testify/require"
)

func TestApplyAuthBearer(t *testing.T) {
	t.Setenv("TEST_BEARER_TOKEN", "secret123")
	req := &http.Request{Header: http.Header{}, URL: &url.URL{}}
	err := ApplyAuth(req, protocol.Auth{Type: "bearer", TokenEnv: "TEST_BEARER_TOKEN"})
	require.NoError(t, err)
	require.Equal(t, "Bearer secret123", req.Header.Get("Authorization"))
}

func TestApplyAuthAPIKeyHeaderDefaultsName(t *testing.T) {
	t.Setenv("TEST_API_KEY", "abc")
	req := &http.Request{Header: http.Header{}, URL: &url.URL{}}
	err := ApplyAuth(req, protocol.Auth{Type: "api_key_header", KeyEnv: "TEST_API_KEY"})
	require.NoError(t, err)
	require.Equal(t, "abc", req.Header.Get("X-API-Key"))
}

func TestApplyAuthMissingEnvErrors(t *testing.T) {
	req := &http.Request{Header: http.Header{}, URL: &url.URL{}}
	err := ApplyAuth(req, protocol.Auth{Type: "bearer", TokenEnv: "TOTALLY_UNSET_VAR"})
	require.Error(t, err)
}

func TestApplyAuthQueryParam(t *testing.T) {
	t.Setenv("TEST_QUERY_KEY", "qkey")
	req := &http.Request{Header: http.Header{}, URL: &url.URL{RawQuery: ""}}
	err := ApplyAuth(req, protocol.Auth{Type: "api_key_query", KeyEnv: "TEST_QUERY_KEY", ParamName: "api_key"})
	require.NoError(t, err)
	require.Equal(t, "qkey", req.URL.Query().Get("api_key"))
}
