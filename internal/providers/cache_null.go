package providers

import (
	"context"
	"time"

	"github.com/mcbridge/mcbridge/internal/config"
)

func init() {
	RegisterCache("null", func(config.CacheConfig) (Cache, error) {
		return nullCache{}, nil
	})
}

// nullCache stores nothing. Every read is a miss, every write succeeds.
type nullCache struct{}

func (nullCache) Name() string { return "null" }

func (nullCache) GetJSON(context.Context, string, any) (bool, error) { return false, nil }

func (nullCache) SetJSON(context.Context, string, any, time.Duration) error { return nil }

func (nullCache) Delete(context.Context, string) error { return nil }

func (nullCache) Exists(context.Context, string) (bool, error) { return false, nil }

func (nullCache) Clear(context.Context) error { return nil }

func (nullCache) Stats(context.Context) (CacheStats, error) { return CacheStats{}, nil }

func (nullCache) Size(context.Context) (int, error) { return 0, nil }
