package manifest

import "sync"

// Cache memoizes parsed manifests per disk path for the lifetime of a
// resolver run (spec §4 Lifecycle: "manifests are parsed on demand and
// cached per disk path").
type Cache struct {
	mu    sync.Mutex
	byPath map[string]*Manifest
}

// NewCache returns an empty manifest cache.
func NewCache() *Cache {
	return &Cache{byPath: make(map[string]*Manifest)}
}

// Load returns the cached manifest for path, parsing and caching it on
// first access.
func (c *Cache) Load(path string) (*Manifest, error) {
	c.mu.Lock()
	if m, ok := c.byPath[path]; ok {
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	m, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byPath[path] = m
	c.mu.Unlock()

	return m, nil
}
