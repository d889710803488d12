package providers

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// redisKeyPrefix namespaces every cache key so Clear does not touch other
// tenants of the same database.
const redisKeyPrefix = "mcbridge:"

func init() {
	RegisterCache("redis", func(cfg config.CacheConfig) (Cache, error) {
		if cfg.Addr == "" {
			return nil, xerr.New(xerr.Configuration, "redis cache provider requires an address")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		ttl := cfg.DefaultTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		return &redisCache{client: client, defaultTTL: ttl, maxValue: cfg.MaxValueBytes}, nil
	})
}

type redisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	maxValue   int

	hits   atomic.Int64
	misses atomic.Int64
}

func (c *redisCache) Name() string { return "redis" }

func (c *redisCache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return false, nil
	}
	if err != nil {
		return false, xerr.Wrap(xerr.Cache, err, "get %s", key)
	}
	c.hits.Add(1)
	if err := json.Unmarshal(data, out); err != nil {
		return false, xerr.Wrap(xerr.Cache, err, "decode cached value %s", key)
	}
	return true, nil
}

func (c *redisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return xerr.Wrap(xerr.Cache, err, "encode value for %s", key)
	}
	if c.maxValue > 0 && len(data) > c.maxValue {
		return xerr.New(xerr.Cache, "value for %s is %d bytes, limit %d", key, len(data), c.maxValue)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		return xerr.Wrap(xerr.Cache, err, "set %s", key)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return xerr.Wrap(xerr.Cache, err, "delete %s", key)
	}
	return nil
}

func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return false, xerr.Wrap(xerr.Cache, err, "exists %s", key)
	}
	return n > 0, nil
}

func (c *redisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return xerr.Wrap(xerr.Cache, err, "clear")
		}
	}
	if err := iter.Err(); err != nil {
		return xerr.Wrap(xerr.Cache, err, "clear scan")
	}
	return nil
}

func (c *redisCache) Stats(ctx context.Context) (CacheStats, error) {
	size, err := c.Size(ctx)
	if err != nil {
		return CacheStats{}, err
	}
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: size,
	}, nil
}

func (c *redisCache) Size(ctx context.Context) (int, error) {
	var count int
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, xerr.Wrap(xerr.Cache, err, "size scan")
	}
	return count, nil
}
