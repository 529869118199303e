package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hiddenpath/ai-protocol-go/message"
	"github.com/hiddenpath/ai-protocol-go/protocol"
	"github.com/stretchr/testify/require"
)

func writeTestManifest(t *testing.T, dir, name string, yaml string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(yaml), 0o644))
}

func newTestLoader(t *testing.T, dir string) *protocol.Loader {
	loader, err := protocol.NewLoader([]string{dir})
	require.NoError(t, err)
	return loader
}

const manifestTemplate = `
id: %[1]s
protocol_version: "2.0"
endpoint:
  base_url: %[2]s
capabilities:
  streaming: false
  tools: false
  vision: false
auth:
  type: bearer
  token_env: %[1]s_KEY
parameter_mappings:
  model: model
  messages: messages
response_paths:
  content: choices[0].message.content
`

func TestExecuteSucceedsOnFirstCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hello there"}}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("PRIMARY_KEY", "secret")
	writeTestManifest(t, dir, "primary", fmtManifest("primary", srv.URL))

	loader := newTestLoader(t, dir)
	c, err := New(loader, []string{"primary"})
	require.NoError(t, err)

	resp, stats, err := c.Execute(context.Background(), &message.Request{Model: "m", Messages: []message.Message{{Role: message.RoleUser, Text: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Attempts)
	require.Len(t, resp.Content, 1)
	txt := resp.Content[0].(message.Text)
	require.Equal(t, "hello there", txt.Text)
}

func TestExecuteFailsOnNonRetryableNonFallbackableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("PRIMARY_KEY", "secret")
	writeTestManifest(t, dir, "primary", fmtManifest("primary", srv.URL))

	loader := newTestLoader(t, dir)
	c, err := New(loader, []string{"primary"})
	require.NoError(t, err)

	_, _, err = c.Execute(context.Background(), &message.Request{Model: "m", Messages: []message.Message{{Role: message.RoleUser, Text: "hi"}}})
	require.Error(t, err)
}

func TestExecuteFallsBackToSecondCandidateOnServerError(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer failing.Close()

	succeeding := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"from backup"}}]}`))
	}))
	defer succeeding.Close()

	dir := t.TempDir()
	t.Setenv("PRIMARY_KEY", "secret")
	t.Setenv("BACKUP_KEY", "secret")
	writeTestManifest(t, dir, "primary", fmtManifestWithRetries("primary", failing.URL, 0))
	writeTestManifest(t, dir, "backup", fmtManifest("backup", succeeding.URL))

	loader := newTestLoader(t, dir)
	c, err := New(loader, []string{"primary", "backup"})
	require.NoError(t, err)

	resp, stats, err := c.Execute(context.Background(), &message.Request{Model: "m", Messages: []message.Message{{Role: message.RoleUser, Text: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Fallbacks)
	txt := resp.Content[0].(message.Text)
	require.Equal(t, "from backup", txt.Text)
}

func TestExecuteRetriesBeforeGivingUp(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"recovered"}}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("PRIMARY_KEY", "secret")
	writeTestManifest(t, dir, "primary", fmtManifestWithRetries("primary", srv.URL, 5))

	loader := newTestLoader(t, dir)
	c, err := New(loader, []string{"primary"})
	require.NoError(t, err)

	resp, stats, err := c.Execute(context.Background(), &message.Request{Model: "m", Messages: []message.Message{{Role: message.RoleUser, Text: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, 3, stats.Attempts)
	txt := resp.Content[0].(message.Text)
	require.Equal(t, "recovered", txt.Text)
}

func TestExecuteCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("PRIMARY_KEY", "secret")
	writeTestManifest(t, dir, "primary", fmtManifestWithRetries("primary", srv.URL, 0))

	loader := newTestLoader(t, dir)
	c, err := New(loader, []string{"primary"}, WithBreakerThreshold(2, time.Hour))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _, err := c.Execute(context.Background(), &message.Request{Model: "m", Messages: []message.Message{{Role: message.RoleUser, Text: "hi"}}})
		require.Error(t, err)
	}

	sig, ok := c.Signals("primary")
	require.True(t, ok)
	require.Equal(t, "open", string(sig.CircuitBreaker.State))
}

func TestExecuteRejectsUnsupportedCapabilityBeforeNetworkCall(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("PRIMARY_KEY", "secret")
	writeTestManifest(t, dir, "primary", fmtManifest("primary", srv.URL))

	loader := newTestLoader(t, dir)
	c, err := New(loader, []string{"primary"})
	require.NoError(t, err)

	_, _, err = c.Execute(context.Background(), &message.Request{
		Model:    "m",
		Messages: []message.Message{{Role: message.RoleUser, Text: "hi"}},
		Tools:    []message.ToolDefinition{{Name: "get_weather"}},
	})
	require.Error(t, err)
	require.False(t, called)
}

func TestExecuteReleasesInflightPermitAfterEachCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("PRIMARY_KEY", "secret")
	writeTestManifest(t, dir, "primary", fmtManifest("primary", srv.URL))

	loader := newTestLoader(t, dir)
	c, err := New(loader, []string{"primary"}, WithMaxInflight(1))
	require.NoError(t, err)

	// A single inflight slot would permanently exhaust after the first
	// call if the preflight admission were never released.
	for i := 0; i < 5; i++ {
		_, _, err := c.Execute(context.Background(), &message.Request{Model: "m", Messages: []message.Message{{Role: message.RoleUser, Text: "hi"}}})
		require.NoError(t, err, "call %d", i)
	}

	sig, ok := c.Signals("primary")
	require.True(t, ok)
	require.Equal(t, 0, sig.InflightActive)
}

func TestExecuteReleasesInflightPermitOnFailedAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("PRIMARY_KEY", "secret")
	writeTestManifest(t, dir, "primary", fmtManifest("primary", srv.URL))

	loader := newTestLoader(t, dir)
	c, err := New(loader, []string{"primary"}, WithMaxInflight(1))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := c.Execute(context.Background(), &message.Request{Model: "m", Messages: []message.Message{{Role: message.RoleUser, Text: "hi"}}})
		require.Error(t, err, "call %d", i)
	}

	sig, ok := c.Signals("primary")
	require.True(t, ok)
	require.Equal(t, 0, sig.InflightActive)
}

func fmtManifest(id, baseURL string) string {
	return sprintfManifest(id, baseURL, 0)
}

func fmtManifestWithRetries(id, baseURL string, maxRetries int) string {
	return sprintfManifest(id, baseURL, maxRetries)
}

func sprintfManifest(id, baseURL string, maxRetries int) string {
	base := fmt.Sprintf(manifestTemplate, id, baseURL)
	if maxRetries > 0 {
		base += fmt.Sprintf("\nretry_policy:\n  max_retries: %d\n  min_delay_ms: 1\n  max_delay_ms: 5\n", maxRetries)
	}
	return base
}
