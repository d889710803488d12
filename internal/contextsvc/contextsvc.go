// Package contextsvc owns collection lifecycle on top of the vector store:
// collection initialisation, chunk storage, and raw similarity search.
// Collection existence checks are memoised through the cache provider under
// the keys "collection:<name>" and "collection:<name>:meta".
package contextsvc

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/mcbridge/mcbridge/internal/chunking"
	"github.com/mcbridge/mcbridge/internal/providers"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// metadata keys stored with every chunk vector.
const (
	MetaFilePath  = "file_path"
	MetaContent   = "content"
	MetaStartLine = "start_line"
	MetaEndLine   = "end_line"
	MetaLanguage  = "language"
)

const collectionCacheTTL = time.Hour

// CollectionMeta is the cached per-collection descriptor.
type CollectionMeta struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
	CreatedAt  int64  `json:"created_at"`
}

// Embedder is the slice of the embedding port the service needs. Both a
// single provider and the health-aware router satisfy it.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]providers.Embedding, error)
}

// Service mediates between the chunkers, the embedding router, and the
// vector store.
type Service struct {
	embedder Embedder
	vectors  providers.VectorStore
	cache    providers.Cache
	dims     int
}

// New builds the context service. dims is the embedding dimensionality and
// becomes the dimensionality of every collection the service creates.
func New(embedder Embedder, vectors providers.VectorStore, cache providers.Cache, dims int) *Service {
	return &Service{embedder: embedder, vectors: vectors, cache: cache, dims: dims}
}

func collectionKey(name string) string { return "collection:" + name }
func metaKey(name string) string       { return "collection:" + name + ":meta" }

// Initialize ensures the collection exists, consulting the cache before
// the vector store.
func (s *Service) Initialize(ctx context.Context, collection string) error {
	var cached bool
	if hit, err := s.cache.GetJSON(ctx, collectionKey(collection), &cached); err == nil && hit && cached {
		return nil
	}

	exists, err := s.vectors.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.vectors.CreateCollection(ctx, collection, s.dims); err != nil {
			return err
		}
		meta := CollectionMeta{Name: collection, Dimensions: s.dims, CreatedAt: time.Now().Unix()}
		if err := s.cache.SetJSON(ctx, metaKey(collection), meta, collectionCacheTTL); err != nil {
			slog.Warn("caching collection meta failed", "collection", collection, "error", err)
		}
		slog.Info("collection created", "collection", collection, "dimensions", s.dims)
	}

	if err := s.cache.SetJSON(ctx, collectionKey(collection), true, collectionCacheTTL); err != nil {
		slog.Warn("caching collection flag failed", "collection", collection, "error", err)
	}
	return nil
}

// StoreChunks embeds the chunks and inserts them under the collection.
// Returns the vector ids in chunk order.
func (s *Service) StoreChunks(ctx context.Context, collection, filePath string, chunks []chunking.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, xerr.Wrap(xerr.Embedding, err, "embed %d chunks of %s", len(chunks), filePath)
	}
	if len(embeddings) != len(chunks) {
		return nil, xerr.New(xerr.Embedding, "got %d embeddings for %d chunks", len(embeddings), len(chunks))
	}

	metadata := make([]map[string]string, len(chunks))
	for i, c := range chunks {
		metadata[i] = map[string]string{
			MetaFilePath:  filePath,
			MetaContent:   c.Content,
			MetaStartLine: strconv.Itoa(c.StartLine),
			MetaEndLine:   strconv.Itoa(c.EndLine),
			MetaLanguage:  c.Language,
		}
	}
	return s.vectors.InsertVectors(ctx, collection, embeddings, metadata)
}

// SearchSimilar embeds the query and returns the raw nearest neighbours.
func (s *Service) SearchSimilar(ctx context.Context, collection, query string, limit int) ([]providers.SearchResult, error) {
	if query == "" {
		return nil, xerr.New(xerr.InvalidArgument, "query cannot be empty")
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, xerr.Wrap(xerr.Embedding, err, "embed query")
	}
	return s.vectors.SearchSimilar(ctx, collection, embeddings[0].Vector, limit)
}

// Drop deletes the collection and invalidates its cache entries.
func (s *Service) Drop(ctx context.Context, collection string) error {
	if err := s.vectors.DeleteCollection(ctx, collection); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, collectionKey(collection)); err != nil {
		slog.Warn("dropping collection cache flag failed", "collection", collection, "error", err)
	}
	if err := s.cache.Delete(ctx, metaKey(collection)); err != nil {
		slog.Warn("dropping collection meta failed", "collection", collection, "error", err)
	}
	return nil
}
