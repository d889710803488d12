package providers

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

func init() {
	RegisterVectorStore("memory", func(config.VectorStoreConfig) (VectorStore, error) {
		return NewMemoryVectorStore(), nil
	})
}

// memoryVectorStore keeps collections in process memory. Search is
// brute-force cosine similarity, normalised into [0, 1].
type memoryVectorStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dims    int
	order   []string // insertion order, for ListVectors
	records map[string]VectorRecord
}

// NewMemoryVectorStore returns an empty in-memory vector store.
func NewMemoryVectorStore() VectorStore {
	return &memoryVectorStore{collections: make(map[string]*memoryCollection)}
}

func (s *memoryVectorStore) Name() string { return "memory" }

func (s *memoryVectorStore) CreateCollection(_ context.Context, collection string, dims int) error {
	if dims <= 0 {
		return xerr.New(xerr.InvalidArgument, "collection dimensions must be positive, got %d", dims)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.collections[collection]; ok {
		if existing.dims != dims {
			return xerr.New(xerr.Conflict, "collection %s exists with %d dimensions", collection, existing.dims)
		}
		return nil
	}
	s.collections[collection] = &memoryCollection{dims: dims, records: make(map[string]VectorRecord)}
	return nil
}

func (s *memoryVectorStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection]
	return ok, nil
}

func (s *memoryVectorStore) DeleteCollection(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}

func (s *memoryVectorStore) InsertVectors(_ context.Context, collection string, embeddings []Embedding, metadata []map[string]string) ([]string, error) {
	if len(embeddings) != len(metadata) {
		return nil, xerr.New(xerr.InvalidArgument,
			"got %d embeddings for %d metadata entries", len(embeddings), len(metadata))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		return nil, xerr.New(xerr.NotFound, "collection %s", collection)
	}
	for i, emb := range embeddings {
		if len(emb.Vector) != coll.dims {
			return nil, xerr.New(xerr.InvalidArgument,
				"vector %d has %d dimensions, collection %s has %d", i, len(emb.Vector), collection, coll.dims)
		}
	}

	ids := make([]string, len(embeddings))
	for i, emb := range embeddings {
		id := uuid.NewString()
		vec := make([]float32, len(emb.Vector))
		copy(vec, emb.Vector)
		coll.records[id] = VectorRecord{ID: id, Vector: vec, Metadata: metadata[i]}
		coll.order = append(coll.order, id)
		ids[i] = id
	}
	return ids, nil
}

func (s *memoryVectorStore) SearchSimilar(_ context.Context, collection string, query []float32, limit int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, ok := s.collections[collection]
	if !ok {
		return nil, xerr.New(xerr.NotFound, "collection %s", collection)
	}
	if len(query) != coll.dims {
		return nil, xerr.New(xerr.InvalidArgument,
			"query has %d dimensions, collection %s has %d", len(query), collection, coll.dims)
	}

	results := make([]SearchResult, 0, len(coll.records))
	for id, rec := range coll.records {
		results = append(results, SearchResult{
			ID:       id,
			Score:    cosineScore(query, rec.Vector),
			Metadata: rec.Metadata,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *memoryVectorStore) DeleteVectors(_ context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		return xerr.New(xerr.NotFound, "collection %s", collection)
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		delete(coll.records, id)
		drop[id] = true
	}
	kept := coll.order[:0]
	for _, id := range coll.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	coll.order = kept
	return nil
}

func (s *memoryVectorStore) GetVectorsByIDs(_ context.Context, collection string, ids []string) ([]VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, ok := s.collections[collection]
	if !ok {
		return nil, xerr.New(xerr.NotFound, "collection %s", collection)
	}
	var out []VectorRecord
	for _, id := range ids {
		if rec, ok := coll.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memoryVectorStore) ListVectors(_ context.Context, collection string, limit int) ([]VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, ok := s.collections[collection]
	if !ok {
		return nil, xerr.New(xerr.NotFound, "collection %s", collection)
	}
	var out []VectorRecord
	for _, id := range coll.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, coll.records[id])
	}
	return out, nil
}

// cosineScore maps cosine similarity from [-1, 1] into [0, 1].
func cosineScore(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	score := (1 + cos) / 2
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return float32(score)
}
