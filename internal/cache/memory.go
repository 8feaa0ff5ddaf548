package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// InMemoryCache implements Cache with a bounded LRU list and TTL checked on read.
// Expired entries are removed when Get touches them; nothing sweeps in the background.
type InMemoryCache struct {
	mu  sync.Mutex // guards lru; simplelru is not safe for concurrent use
	lru *simplelru.LRU[string, Entry]
	ttl time.Duration
}

// NewInMemoryCache creates an in-memory cache holding at most maxEntries entries.
// Non-positive arguments fall back to DefaultMaxEntries and DefaultTTL.
func NewInMemoryCache(maxEntries int, ttl time.Duration) (*InMemoryCache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	lru, err := simplelru.NewLRU[string, Entry](maxEntries, nil)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &InMemoryCache{lru: lru, ttl: ttl}, nil
}

// Put stores value with insertion time now, replacing any entry for key.
// When full, the least recently used entry is evicted first.
func (c *InMemoryCache) Put(ctx context.Context, key string, value []byte, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if evicted := c.lru.Add(key, Entry{Payload: value, InsertedAt: now}); evicted {
		observability.CacheEvictionsTotal.WithLabelValues("capacity").Inc()
	}
	return nil
}

// Get returns the payload for key if present and not older than the TTL.
// An expired entry is removed.
func (c *InMemoryCache) Get(ctx context.Context, key string, now time.Time) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if expired(entry.InsertedAt, now, c.ttl) {
		c.lru.Remove(key)
		observability.CacheEvictionsTotal.WithLabelValues("expired").Inc()
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

// IsValid reports whether Get would return a value, without removing or
// promoting the entry.
func (c *InMemoryCache) IsValid(ctx context.Context, key string, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Peek(key)
	return ok && !expired(entry.InsertedAt, now, c.ttl), nil
}

// Clear removes all entries.
func (c *InMemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// InsertedAt returns the insertion time of key's entry, if any.
func (c *InMemoryCache) InsertedAt(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Peek(key)
	return entry.InsertedAt, ok
}
