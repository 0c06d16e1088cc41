package source

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize keeps only the most recently opened file mapped
const DefaultCacheSize = 1

// Cache holds opened LineSources keyed by path with LRU eviction.
// Evicted sources are closed, so a source obtained from the cache must not
// be used after another path has pushed it out.
type Cache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *LineSource]
}

// NewCache creates a cache holding at most size sources
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.NewWithEvict[string, *LineSource](size, func(_ string, src *LineSource) {
		_ = src.Close()
	})
	if err != nil {
		// Only fails for a non-positive size
		panic(fmt.Sprintf("source cache: %v", err))
	}
	return &Cache{cache: cache}
}

// Get returns the source for path, opening and indexing it on a miss
func (c *Cache) Get(path string) (*LineSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if src, ok := c.cache.Get(path); ok {
		return src, nil
	}
	src, err := Open(path)
	if err != nil {
		return nil, err
	}
	c.cache.Add(path, src)
	return src, nil
}

// Len returns the number of cached sources
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Close closes and drops every cached source
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
	return nil
}
