package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hiddenpath/ai-protocol-go/message"
	"github.com/stretchr/testify/require"
)

const streamingManifestTemplate = `
id: %[1]s
protocol_version: "2.0"
endpoint:
  base_url: %[2]s
capabilities:
  streaming: true
  tools: false
  vision: false
auth:
  type: bearer
  token_env: %[1]s_KEY
parameter_mappings:
  model: model
  messages: messages
  stream: stream
streaming:
  decoder:
    format: sse
  event_map:
    - match: 'type == "content_block_delta"'
      emit: content_delta
      fields:
        content: delta.text
    - match: 'type == "message_stop"'
      emit: stream_end
`

func TestExecuteStreamCommitsAfterFirstEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"hi\"}}\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("STREAMY_KEY", "secret")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "streamy.yaml"), []byte(fmt.Sprintf(streamingManifestTemplate, "streamy", srv.URL)), 0o644))

	loader := newTestLoader(t, dir)
	c, err := New(loader, []string{"streamy"})
	require.NoError(t, err)

	stream, stats, err := c.ExecuteStream(context.Background(), &message.Request{
		Model:    "m",
		Messages: []message.Message{{Role: message.RoleUser, Text: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Attempts)

	var events []message.Event
	for stream.Next() {
		events = append(events, stream.Event())
	}
	require.NoError(t, stream.Err())
	require.NotEmpty(t, events)
	_, ok := events[len(events)-1].(message.StreamEnd)
	require.True(t, ok)
}

func TestExecuteStreamRetriesWhenFirstAttemptBreaksBeforeAnyEvent(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "text/event-stream")
		if calls == 1 {
			// A 200 response whose first frame fails to decode as
			// JSON: the error must surface before any event is handed
			// to the caller, so this attempt has to be retried rather
			// than committed to.
			fmt.Fprint(w, "data: {not valid json}\n\n")
			return
		}
		flusher, _ := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"hi\"}}\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("STREAMY_KEY", "secret")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "streamy.yaml"), []byte(fmt.Sprintf(streamingManifestTemplate, "streamy", srv.URL)+"\nretry_policy:\n  max_retries: 2\n  min_delay_ms: 1\n  max_delay_ms: 5\n"), 0o644))

	loader := newTestLoader(t, dir)
	c, err := New(loader, []string{"streamy"})
	require.NoError(t, err)

	stream, stats, err := c.ExecuteStream(context.Background(), &message.Request{
		Model:    "m",
		Messages: []message.Message{{Role: message.RoleUser, Text: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Attempts, "the broken first attempt must not count as the committed one")
	require.True(t, stats.EmittedAny)

	var events []message.Event
	for stream.Next() {
		events = append(events, stream.Event())
	}
	require.NoError(t, stream.Err())
	require.NotEmpty(t, events)
	_, ok := events[len(events)-1].(message.StreamEnd)
	require.True(t, ok)
}
