package media

import (
	"context"
	"errors"
	"sync"
)

// ErrNotCached is returned when a payload is in neither layer of the cache.
var ErrNotCached = errors.New("media payload not cached")

// Backend is the durable layer under the cache.
type Backend interface {
	Get(ctx context.Context, id string) (string, error)
	Set(ctx context.Context, id, data string) error
	Delete(ctx context.Context, id string) error
	All(ctx context.Context) (map[string]string, error)
}

// Cache is a read-through memory layer over an optional durable backend,
// keyed by media entry id.
type Cache struct {
	backend Backend

	mu  sync.RWMutex
	mem map[string]string
}

// NewCache creates a cache. A nil backend keeps payloads in memory only.
func NewCache(backend Backend) *Cache {
	return &Cache{backend: backend, mem: make(map[string]string)}
}

// Get returns the payload for id.
func (c *Cache) Get(ctx context.Context, id string) (string, error) {
	c.mu.RLock()
	data, ok := c.mem[id]
	c.mu.RUnlock()
	if ok {
		return data, nil
	}
	if c.backend == nil {
		return "", ErrNotCached
	}

	data, err := c.backend.Get(ctx, id)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.mem[id] = data
	c.mu.Unlock()
	return data, nil
}

// Set stores a payload in both layers.
func (c *Cache) Set(ctx context.Context, id, data string) error {
	if c.backend != nil {
		if err := c.backend.Set(ctx, id, data); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.mem[id] = data
	c.mu.Unlock()
	return nil
}

// Delete removes a payload from both layers.
func (c *Cache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	delete(c.mem, id)
	c.mu.Unlock()
	if c.backend != nil {
		return c.backend.Delete(ctx, id)
	}
	return nil
}

// Hydrate loads every durable payload into memory.
func (c *Cache) Hydrate(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}
	all, err := c.backend.All(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	for id, data := range all {
		c.mem[id] = data
	}
	c.mu.Unlock()
	return nil
}

// Len returns the number of payloads held in memory.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mem)
}
