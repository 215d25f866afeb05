package questionbank

import "sync"

const (
	// embeddingCacheCeiling is the cardinality at which eviction triggers.
	embeddingCacheCeiling = 10000
	// embeddingCacheSurvivors is how many of the newest entries survive an
	// eviction pass.
	embeddingCacheSurvivors = 2500
)

// embeddingCache is a bounded map keyed by content hash. Eviction is
// size-triggered, not time-triggered: when the cardinality exceeds the
// ceiling, only the newest entries survive. Concurrent insertion of the same
// key is benign since the value is idempotent.
type embeddingCache struct {
	mu        sync.Mutex
	entries   map[string][]float32
	order     []string // insertion order, oldest first
	ceiling   int
	survivors int
}

func newEmbeddingCache(ceiling, survivors int) *embeddingCache {
	return &embeddingCache{
		entries:   make(map[string][]float32),
		ceiling:   ceiling,
		survivors: survivors,
	}
}

func (c *embeddingCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *embeddingCache) put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = vector

	if len(c.entries) > c.ceiling {
		c.evict()
	}
}

// evict drops the oldest entries, keeping the newest survivors.
func (c *embeddingCache) evict() {
	keep := c.order
	if len(keep) > c.survivors {
		keep = keep[len(keep)-c.survivors:]
	}

	surviving := make(map[string][]float32, len(keep))
	for _, key := range keep {
		surviving[key] = c.entries[key]
	}
	c.entries = surviving
	c.order = append([]string(nil), keep...)
}

func (c *embeddingCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
