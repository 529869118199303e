package protocol

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// manifestCache bounds the number of parsed-and-validated manifests held
// in memory at once. Manifests are immutable once loaded, so eviction
// only ever costs a re-parse, never a correctness issue.
type manifestCache struct {
	cache *lru.Cache[string, *Manifest]
}

func newManifestCache(size int) (*manifestCache, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, *Manifest](size)
	if err != nil {
		return nil, err
	}
	return &manifestCache{cache: c}, nil
}

func (c *manifestCache) get(key string) (*Manifest, bool) {
	return c.cache.Get(key)
}

func (c *manifestCache) put(key string, m *Manifest) {
	c.cache.Add(key, m)
}

func (c *manifestCache) invalidate(key string) {
	c.cache.Remove(key)
}

func (c *manifestCache) purge() {
	c.cache.Purge()
}
