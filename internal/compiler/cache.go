package compiler

import (
	"fmt"
	"sync"

	"github.com/roach88/eca/internal/plugin"
)

// Cache memoizes Compile by model content hash. Recompilation happens only
// when a model's content changes; entries for hashes not seen during the last
// Retain are evicted.
type Cache struct {
	catalog *plugin.Catalog

	mu      sync.Mutex
	entries map[string]*Graph
	hits    int
	misses  int
}

// NewCache creates a cache compiling against catalog.
func NewCache(catalog *plugin.Catalog) *Cache {
	return &Cache{
		catalog: catalog,
		entries: make(map[string]*Graph),
	}
}

// Compile returns the cached graph for raw's content hash, compiling on a
// miss. Compile errors are not cached.
func (c *Cache) Compile(raw *RawModel) (*Graph, error) {
	hash, err := raw.Hash()
	if err != nil {
		// Let Compile produce the structured error.
		return Compile(raw, c.catalog)
	}

	c.mu.Lock()
	if g, ok := c.entries[hash]; ok {
		c.hits++
		c.mu.Unlock()
		return g, nil
	}
	c.misses++
	c.mu.Unlock()

	g, err := Compile(raw, c.catalog)
	if err != nil {
		return nil, err
	}
	if g.Model.Hash != hash {
		return nil, fmt.Errorf("compile %s: content hash changed during compilation", raw.ID)
	}

	c.mu.Lock()
	c.entries[hash] = g
	c.mu.Unlock()
	return g, nil
}

// Retain evicts every entry whose hash is not in keep.
func (c *Cache) Retain(keep map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h := range c.entries {
		if !keep[h] {
			delete(c.entries, h)
		}
	}
}

// Stats returns cache hits, misses and current size.
func (c *Cache) Stats() (hits, misses, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.entries)
}
