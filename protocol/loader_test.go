package protocol

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleManifest = `
id: test-provider
protocol_version: "2.0"
endpoint:
  base_url: https://api.example.com/v1
capabilities:
  streaming: true
  tools: true
  vision: false
auth:
  type: bearer
  token_env: TEST_PROVIDER_API_KEY
parameter_mappings:
  model: model
  messages: messages
  temperature: temperature
  max_tokens: max_tokens
  stream: stream
  tools: tools
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

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o644))
}

func TestLoaderResolvesAndValidates(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "test-provider", sampleManifest)

	loader, err := NewLoader([]string{dir})
	require.NoError(t, err)

	m, err := loader.Load("test-provider")
	require.NoError(t, err)
	require.Equal(t, "test-provider", m.ID)
	require.True(t, m.Capabilities.Streaming)

	// second load should hit the cache and return the same pointer
	m2, err := loader.Load("test-provider")
	require.NoError(t, err)
	require.Same(t, m, m2)
}

func TestLoaderMissingManifest(t *testing.T) {
	dir := t.TempDir()
	loader, err := NewLoader([]string{dir})
	require.NoError(t, err)

	_, err = loader.Load("does-not-exist")
	require.Error(t, err)
}

func TestLoaderRejectsUnsupportedProtocolVersion(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "bad-version", `
id: bad-version
protocol_version: "0.1"
endpoint:
  base_url: https://x
capabilities:
  streaming: false
  tools: false
  vision: false
auth:
  type: bearer
parameter_mappings:
  model: model
`)
	loader, err := NewLoader([]string{dir})
	require.NoError(t, err)
	_, err = loader.Load("bad-version")
	require.Error(t, err)
}

func TestLoaderInvalidateForcesReload(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "test-provider", sampleManifest)
	loader, err := NewLoader([]string{dir})
	require.NoError(t, err)

	first, err := loader.Load("test-provider")
	require.NoError(t, err)

	loader.Invalidate("test-provider")
	second, err := loader.Load("test-provider")
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.Equal(t, first.ID, second.ID)
}

func TestValidateRejectsStreamingWithoutDecoder(t *testing.T) {
	m := &Manifest{
		ID:              "broken",
		ProtocolVersion: "2.0",
		Endpoint:        Endpoint{BaseURL: "https://x"},
		Capabilities:    Capabilities{Streaming: true, Tools: false, Vision: false},
		Auth:            Auth{Type: "bearer"},
		ParameterMappings: map[string]string{"model": "model"},
	}
	err := Validate(m)
	require.Error(t, err)
}
