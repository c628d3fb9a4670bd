package secure

import "sync"

// Cache holds resolved secrets keyed by identifier, each encrypted at
// rest. Commands that resolve the same connection more than once in a
// run (exec builds the env, then re-reads values for redaction) read
// from here instead of going back to the backend.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Buffer
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Buffer)}
}

// Put stores a secret under key, replacing and destroying any previous
// entry.
func (c *Cache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		old.Destroy()
	}
	c.entries[key] = NewBuffer([]byte(value))
}

// Get returns the secret stored under key.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	buf, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return "", false
	}

	value, err := buf.String()
	if err != nil {
		return "", false
	}
	return value, true
}

// Delete destroys and removes the entry under key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if buf, ok := c.entries[key]; ok {
		buf.Destroy()
		delete(c.entries, key)
	}
}

// Clear destroys every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, buf := range c.entries {
		buf.Destroy()
		delete(c.entries, key)
	}
}

// Len returns the number of cached secrets.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
