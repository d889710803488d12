// Package providers declares the provider ports (embedding, vector store,
// cache) and the link-time registries that resolve a configured name into a
// live instance. Every kind ships a null provider for tests and explicit
// disablement.
package providers

import (
	"context"
	"time"
)

// Embedding is a fixed-dimension vector produced from text.
type Embedding struct {
	Vector     []float32 `json:"vector"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
}

// HealthStatus classifies a provider's availability.
type HealthStatus int

const (
	Healthy HealthStatus = iota
	Degraded
	Unhealthy
)

func (s HealthStatus) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	}
	return "unknown"
}

// EmbeddingProvider maps text to fixed-dimension vectors. Dimensions is a
// constant for a provider instance; EmbedBatch preserves input order.
type EmbeddingProvider interface {
	Name() string
	Embed(ctx context.Context, text string) (Embedding, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)
	Dimensions() int
	HealthCheck(ctx context.Context) HealthStatus
}

// VectorRecord is a stored vector with its metadata payload.
type VectorRecord struct {
	ID       string            `json:"id"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata"`
}

// SearchResult is one similarity hit. Score is in [0, 1], higher is closer.
type SearchResult struct {
	ID       string            `json:"id"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// VectorStore is a per-collection vector index with metadata payloads.
type VectorStore interface {
	Name() string
	CreateCollection(ctx context.Context, collection string, dims int) error
	CollectionExists(ctx context.Context, collection string) (bool, error)
	DeleteCollection(ctx context.Context, collection string) error
	// InsertVectors requires len(embeddings) == len(metadata) and every
	// vector to match the collection's dimensions.
	InsertVectors(ctx context.Context, collection string, embeddings []Embedding, metadata []map[string]string) ([]string, error)
	SearchSimilar(ctx context.Context, collection string, query []float32, limit int) ([]SearchResult, error)
	DeleteVectors(ctx context.Context, collection string, ids []string) error
	GetVectorsByIDs(ctx context.Context, collection string, ids []string) ([]VectorRecord, error)
	ListVectors(ctx context.Context, collection string, limit int) ([]VectorRecord, error)
}

// CacheStats reports provider counters. Providers without native counters
// return zeros.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// Cache stores JSON-encoded values under string keys with a TTL and a
// per-value size bound. Eviction policy is provider-defined.
type Cache interface {
	Name() string
	// GetJSON decodes the cached value into out and reports whether the
	// key was present.
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (CacheStats, error)
	Size(ctx context.Context) (int, error)
}
