package session

import "sync"

// Cache is the in-memory session table. It fronts the durable store so
// repeated queries against the same session skip disk entirely.
type Cache struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{sessions: make(map[string]*Session)}
}

// Get returns the cached session, if any.
func (c *Cache) Get(id string) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	return s, ok
}

// Put stores or replaces a session.
func (c *Cache) Put(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.ID] = s
}

// Delete evicts a session and reports whether it was cached.
func (c *Cache) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[id]
	delete(c.sessions, id)
	return ok
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}
