package providers

import (
	"context"

	"github.com/google/uuid"

	"github.com/mcbridge/mcbridge/internal/config"
)

func init() {
	RegisterVectorStore("null", func(config.VectorStoreConfig) (VectorStore, error) {
		return nullVectorStore{}, nil
	})
}

// nullVectorStore accepts every write and finds nothing. It exists so the
// server can run with vector search explicitly disabled.
type nullVectorStore struct{}

func (nullVectorStore) Name() string { return "null" }

func (nullVectorStore) CreateCollection(context.Context, string, int) error { return nil }

func (nullVectorStore) CollectionExists(context.Context, string) (bool, error) { return true, nil }

func (nullVectorStore) DeleteCollection(context.Context, string) error { return nil }

func (nullVectorStore) InsertVectors(_ context.Context, _ string, embeddings []Embedding, _ []map[string]string) ([]string, error) {
	ids := make([]string, len(embeddings))
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	return ids, nil
}

func (nullVectorStore) SearchSimilar(context.Context, string, []float32, int) ([]SearchResult, error) {
	return nil, nil
}

func (nullVectorStore) DeleteVectors(context.Context, string, []string) error { return nil }

func (nullVectorStore) GetVectorsByIDs(context.Context, string, []string) ([]VectorRecord, error) {
	return nil, nil
}

func (nullVectorStore) ListVectors(context.Context, string, int) ([]VectorRecord, error) {
	return nil, nil
}
