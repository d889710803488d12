package search

import (
	"context"
	"testing"

	"github.com/mcbridge/mcbridge/internal/chunking"
	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/contextsvc"
	"github.com/mcbridge/mcbridge/internal/providers"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

func newSearchFixture(t *testing.T, hybrid Hybrid) *Service {
	t.Helper()
	embedder, err := providers.ResolveEmbedding(config.EmbeddingConfig{Provider: "null", Dimensions: 16})
	if err != nil {
		t.Fatal(err)
	}
	vectors := providers.NewMemoryVectorStore()
	cache := providers.NewMemoryCache(config.CacheConfig{MaxEntries: 64})
	ctxsvc := contextsvc.New(embedder, vectors, cache, 16)

	ctx := context.Background()
	if err := ctxsvc.Initialize(ctx, "proj"); err != nil {
		t.Fatal(err)
	}
	seed := []struct {
		path    string
		lang    string
		content string
	}{
		{"auth/login.go", "go", "func handleLogin(w http.ResponseWriter) {}"},
		{"auth/token.rs", "rust", "fn issue_token() -> Token {}"},
		{"ui/render.ts", "typescript", "function renderPage(): void {}"},
	}
	for _, s := range seed {
		chunks := []chunking.Chunk{{Content: s.content, StartLine: 1, EndLine: 1, Language: s.lang}}
		if _, err := ctxsvc.StoreChunks(ctx, "proj", s.path, chunks); err != nil {
			t.Fatal(err)
		}
	}
	return NewService(ctxsvc, hybrid)
}

func TestSearchReturnsRankedResults(t *testing.T) {
	svc := newSearchFixture(t, nil)
	results, err := svc.Search(context.Background(), "proj", "func handleLogin(w http.ResponseWriter) {}", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].FilePath != "auth/login.go" {
		t.Fatalf("top result = %s, want auth/login.go", results[0].FilePath)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatal("results not in descending score order")
		}
	}
	if results[0].StartLine != 1 || results[0].Language != "go" {
		t.Fatalf("result fields: %+v", results[0])
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := newSearchFixture(t, nil)

	// A literal empty query is a no-op, not an error.
	results, err := svc.Search(context.Background(), "proj", "", 5)
	if err != nil || len(results) != 0 {
		t.Fatalf("empty query: results=%v err=%v", results, err)
	}

	if _, err := svc.Search(context.Background(), "proj", "   ", 5); !xerr.IsKind(err, xerr.InvalidArgument) {
		t.Fatalf("blank query: %v", err)
	}
}

func TestSearchFilters(t *testing.T) {
	svc := newSearchFixture(t, nil)
	ctx := context.Background()

	// Extension filter.
	results, err := svc.SearchWithFilters(ctx, "proj", "token", 10, &Filters{FileExtensions: []string{"rs"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].FilePath != "auth/token.rs" {
		t.Fatalf("extension filter: %v", results)
	}

	// Language filter, case-insensitive.
	results, err = svc.SearchWithFilters(ctx, "proj", "render", 10, &Filters{Languages: []string{"TypeScript"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Language != "typescript" {
		t.Fatalf("language filter: %v", results)
	}

	// min_score drops strictly-below matches; a threshold above every
	// score yields nothing.
	high := float32(1.1)
	results, err = svc.SearchWithFilters(ctx, "proj", "anything", 10, &Filters{MinScore: &high})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("min_score filter kept %d results", len(results))
	}
}

func TestSearchLimit(t *testing.T) {
	svc := newSearchFixture(t, nil)
	results, err := svc.Search(context.Background(), "proj", "function", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) > 2 {
		t.Fatalf("limit exceeded: %d", len(results))
	}
}

func TestBM25RerankerPrefersLexicalMatch(t *testing.T) {
	r := NewBM25Reranker()
	results := []Result{
		{ID: "a", Content: "completely unrelated text about rendering", Score: 0.60},
		{ID: "b", Content: "token refresh token issuance token store", Score: 0.58},
	}
	out, err := r.Rerank(context.Background(), "token issuance", results, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].ID != "b" {
		t.Fatalf("rerank order = %v", out)
	}
}

func TestBM25RerankerNeverFabricates(t *testing.T) {
	r := NewBM25Reranker()
	out, err := r.Rerank(context.Background(), "query", nil, 5)
	if err != nil || len(out) != 0 {
		t.Fatalf("empty input: %v err=%v", out, err)
	}

	results := []Result{{ID: "a", Content: "x", Score: 0.5}, {ID: "b", Content: "y", Score: 0.4}}
	out, err = r.Rerank(context.Background(), "x", results, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("limit not applied: %v", out)
	}
	if out[0].ID != "a" && out[0].ID != "b" {
		t.Fatalf("fabricated id %s", out[0].ID)
	}
}

func TestHybridModeBoundsResults(t *testing.T) {
	svc := newSearchFixture(t, NewBM25Reranker())
	results, err := svc.Search(context.Background(), "proj", "func handleLogin(w http.ResponseWriter) {}", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) > 2 {
		t.Fatalf("hybrid exceeded limit: %d", len(results))
	}
}
