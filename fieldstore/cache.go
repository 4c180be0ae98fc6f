package fieldstore

import "sync"

// valueCache is the explicit read-through cache for loaded field values. A
// present entry means the durable representation has been consulted once;
// subsequent gets must not re-touch storage until the entry is invalidated
// by a write.
type valueCache struct {
	mu     sync.RWMutex
	values map[string]any
}

func newValueCache() *valueCache {
	return &valueCache{values: make(map[string]any)}
}

// get returns the cached value and whether the field has been loaded.
func (c *valueCache) get(field string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[field]
	return v, ok
}

// put records a freshly loaded or freshly written value.
func (c *valueCache) put(field string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[field] = v
}

// invalidate drops the entry so the next get reloads from storage.
func (c *valueCache) invalidate(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, field)
}
