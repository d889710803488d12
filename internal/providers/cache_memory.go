package providers

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

func init() {
	RegisterCache("memory", func(cfg config.CacheConfig) (Cache, error) {
		return NewMemoryCache(cfg), nil
	})
}

// memoryCache is an LRU with per-entry TTL. Entries expire at the
// provider's default TTL; per-call TTLs shorter than that are honoured by
// stamping a deadline into the stored envelope.
type memoryCache struct {
	lru      *expirable.LRU[string, cacheEntry]
	maxValue int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	data     []byte
	deadline time.Time // zero means the LRU's TTL governs
}

// NewMemoryCache builds an in-process cache from the config.
func NewMemoryCache(cfg config.CacheConfig) Cache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &memoryCache{maxValue: cfg.MaxValueBytes}
	c.lru = expirable.NewLRU[string, cacheEntry](maxEntries, func(string, cacheEntry) {
		c.evictions.Add(1)
	}, ttl)
	return c
}

func (c *memoryCache) Name() string { return "memory" }

func (c *memoryCache) GetJSON(_ context.Context, key string, out any) (bool, error) {
	entry, ok := c.lru.Get(key)
	if ok && !entry.deadline.IsZero() && time.Now().After(entry.deadline) {
		c.lru.Remove(key)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		return false, nil
	}
	c.hits.Add(1)
	if err := json.Unmarshal(entry.data, out); err != nil {
		return false, xerr.Wrap(xerr.Cache, err, "decode cached value %s", key)
	}
	return true, nil
}

func (c *memoryCache) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return xerr.Wrap(xerr.Cache, err, "encode value for %s", key)
	}
	if c.maxValue > 0 && len(data) > c.maxValue {
		return xerr.New(xerr.Cache, "value for %s is %d bytes, limit %d", key, len(data), c.maxValue)
	}
	entry := cacheEntry{data: data}
	if ttl > 0 {
		entry.deadline = time.Now().Add(ttl)
	}
	c.lru.Add(key, entry)
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	entry, ok := c.lru.Peek(key)
	if ok && !entry.deadline.IsZero() && time.Now().After(entry.deadline) {
		c.lru.Remove(key)
		return false, nil
	}
	return ok, nil
}

func (c *memoryCache) Clear(context.Context) error {
	c.lru.Purge()
	return nil
}

func (c *memoryCache) Stats(context.Context) (CacheStats, error) {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.lru.Len(),
	}, nil
}

func (c *memoryCache) Size(context.Context) (int, error) {
	return c.lru.Len(), nil
}
