// Package memcache provides a bounded in-memory cache manager with LRU
// eviction by total size and optional per-slot expiry. It holds entries
// for the process lifetime only.
package memcache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Config bounds the in-memory store.
type Config struct {
	// MaxBytes caps the total encoded size held. Zero means 64 MiB.
	MaxBytes int64

	// MaxAge drops slots untouched for longer than this. Zero disables
	// age-based expiry.
	MaxAge time.Duration
}

// DefaultConfig returns a 64 MiB store without age-based expiry.
func DefaultConfig() Config {
	return Config{MaxBytes: 64 << 20}
}

type slot struct {
	key      string
	variants map[string][]byte
	size     int64
	touched  time.Time
	elem     *list.Element
}

// Cache is a bounded in-memory cache.Manager. Safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	cfg   Config
	size  int64
	slots map[string]*slot
	lru   *list.List // front = most recently used

	now func() time.Time
}

// New creates a bounded in-memory cache manager.
func New(cfg Config) *Cache {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultConfig().MaxBytes
	}
	return &Cache{
		cfg:   cfg,
		slots: make(map[string]*slot),
		lru:   list.New(),
		now:   time.Now,
	}
}

// Get returns every encoded variant stored under the slot.
func (c *Cache) Get(ctx context.Context, key string) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	if !ok {
		return nil, nil
	}
	if c.expired(s) {
		c.remove(s)
		return nil, nil
	}
	s.touched = c.now()
	c.lru.MoveToFront(s.elem)

	out := make([][]byte, 0, len(s.variants))
	for _, data := range s.variants {
		cp := make([]byte, len(data))
		copy(cp, data)
		out = append(out, cp)
	}
	return out, nil
}

// Put stores an encoded variant, evicting least recently used slots
// until the store fits its byte budget again.
func (c *Cache) Put(ctx context.Context, key, variant string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	if !ok {
		s = &slot{key: key, variants: make(map[string][]byte)}
		s.elem = c.lru.PushFront(s)
		c.slots[key] = s
	} else {
		c.lru.MoveToFront(s.elem)
	}

	if old, ok := s.variants[variant]; ok {
		s.size -= int64(len(old))
		c.size -= int64(len(old))
	}
	s.variants[variant] = cp
	s.size += int64(len(cp))
	c.size += int64(len(cp))
	s.touched = c.now()

	for c.size > c.cfg.MaxBytes && c.lru.Len() > 1 {
		oldest := c.lru.Back().Value.(*slot)
		if oldest == s {
			break
		}
		c.remove(oldest)
	}
	return nil
}

// Delete removes the slot and all its variants.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[key]; ok {
		c.remove(s)
	}
	return nil
}

// Len returns the number of stored slots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// Size returns the total encoded bytes held.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *Cache) expired(s *slot) bool {
	return c.cfg.MaxAge > 0 && c.now().Sub(s.touched) > c.cfg.MaxAge
}

func (c *Cache) remove(s *slot) {
	c.lru.Remove(s.elem)
	delete(c.slots, s.key)
	c.size -= s.size
}
