package schema

import (
	"sync"
)

type cacheEntry struct {
	schema *Schema
	err    error
}

// Cache holds compiled schemas keyed by tool name. Compile errors are cached
// too, since descriptors never change after startup.
// Thread-safe with sync.RWMutex.
type Cache struct {
	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCache creates an empty compile cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]cacheEntry)}
}

// Get returns the compiled schema for key, compiling raw on first use.
func (c *Cache) Get(key string, raw map[string]any) (*Schema, error) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if ok {
		return e.schema, e.err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have compiled it while we waited.
	if e, ok := c.items[key]; ok {
		return e.schema, e.err
	}
	s, err := Compile(raw)
	c.items[key] = cacheEntry{schema: s, err: err}
	return s, err
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
