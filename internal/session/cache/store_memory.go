package cache

import (
	"context"
	"sync"
	"time"

	"idsync/internal/session"
	"idsync/pkg/platform/sentinel"
)

// MemoryCache is an in-process ResultCache for unit tests and single-instance
// development. Expiry is checked at read time against an injectable clock.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	result  session.Result
	expires time.Time
}

func NewMemory(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Test helper.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, fingerprint string) (session.Result, error) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()
	if !ok {
		return session.Result{}, sentinel.ErrNotFound
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.entries, fingerprint)
		c.mu.Unlock()
		return session.Result{}, sentinel.ErrNotFound
	}
	return entry.result, nil
}

func (c *MemoryCache) Set(_ context.Context, fingerprint string, result session.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = memoryEntry{
		result:  result,
		expires: c.now().Add(c.ttl),
	}
	return nil
}
