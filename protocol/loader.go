package protocol

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	aiproto "github.com/hiddenpath/ai-protocol-go"
	"gopkg.in/yaml.v3"
)

// Loader resolves logical model names to validated Manifests, reading
// YAML files from a configured root directory and caching the parsed
// result. A Loader is safe for concurrent use.
type Loader struct {
	mu    sync.RWMutex
	roots []string
	cache *manifestCache
}

// LoaderOption configures a Loader at construction time.
type LoaderOption func(*Loader)

// WithCacheSize overrides the default manifest LRU cache size.
func WithCacheSize(n int) LoaderOption {
	return func(l *Loader) {
		c, err := newManifestCache(n)
		if err == nil {
			l.cache = c
		}
	}
}

// NewLoader returns a Loader that resolves manifests under the given
// root directories, searched in order: the first root holding a match
// wins, so earlier roots take precedence over later ones.
func NewLoader(roots []string, opts ...LoaderOption) (*Loader, error) {
	if len(roots) == 0 {
		return nil, aiproto.New(aiproto.KindConfiguration, "protocol: at least one manifest root is required")
	}
	cache, err := newManifestCache(256)
	if err != nil {
		return nil, aiproto.New(aiproto.KindConfiguration, "protocol: constructing manifest cache").WithCause(err)
	}
	l := &Loader{roots: roots, cache: cache}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Load resolves a logical model name to a validated Manifest. Resolution
// tries, for each root in order: "<root>/<name>.yaml", "<root>/<name>.yml",
// then "<root>/<name>/manifest.yaml" as a subdirectory layout for
// providers that ship multiple supporting files alongside the manifest.
func (l *Loader) Load(name string) (*Manifest, error) {
	if m, ok := l.cache.get(name); ok {
		return m, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.cache.get(name); ok {
		return m, nil
	}

	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	m, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	l.cache.put(name, m)
	return m, nil
}

// Invalidate drops a cached manifest so the next Load re-reads it from
// disk. Used by the fsnotify-backed watcher on file change events.
func (l *Loader) Invalidate(name string) {
	l.cache.invalidate(name)
}

// PurgeAll drops every cached manifest.
func (l *Loader) PurgeAll() {
	l.cache.purge()
}

func (l *Loader) resolve(name string) (string, error) {
	candidates := make([]string, 0, len(l.roots)*3)
	for _, root := range l.roots {
		candidates = append(candidates,
			filepath.Join(root, name+".yaml"),
			filepath.Join(root, name+".yml"),
			filepath.Join(root, name, "manifest.yaml"),
		)
	}
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			return c, nil
		}
	}
	return "", aiproto.New(aiproto.KindConfiguration, fmt.Sprintf("protocol: no manifest found for %q", name)).
		WithContext(aiproto.NewErrorContext().WithSource(name))
}

func loadFile(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, aiproto.New(aiproto.KindProtocol, fmt.Sprintf("protocol: reading manifest %q", path)).WithCause(err)
	}
	raw, err = stripBOM(raw)
	if err != nil {
		return nil, aiproto.New(aiproto.KindProtocol, fmt.Sprintf("protocol: decoding manifest %q", path)).WithCause(err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, aiproto.New(aiproto.KindProtocol, fmt.Sprintf("protocol: parsing manifest %q", path)).WithCause(err)
	}
	if !SupportedProtocolVersions[m.ProtocolVersion] {
		return nil, aiproto.New(aiproto.KindValidation, fmt.Sprintf("protocol: manifest %q declares unsupported protocol_version %q", path, m.ProtocolVersion))
	}
	return &m, nil
}
