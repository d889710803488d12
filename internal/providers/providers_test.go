package providers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

func TestResolveUnknownProviderListsKnownNames(t *testing.T) {
	_, err := ResolveEmbedding(config.EmbeddingConfig{Provider: "bogus"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !xerr.IsKind(err, xerr.Configuration) {
		t.Fatalf("kind = %v, want Configuration", xerr.KindOf(err))
	}
	if !strings.Contains(err.Error(), "null") || !strings.Contains(err.Error(), "openai") {
		t.Fatalf("error does not list known names: %v", err)
	}
}

func TestNullEmbeddingDeterministic(t *testing.T) {
	p, err := ResolveEmbedding(config.EmbeddingConfig{Provider: "null", Dimensions: 64})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	a, _ := p.Embed(ctx, "hello world")
	b, _ := p.Embed(ctx, "hello world")
	c, _ := p.Embed(ctx, "something else")

	if len(a.Vector) != 64 || p.Dimensions() != 64 {
		t.Fatalf("dimensions = %d/%d, want 64", len(a.Vector), p.Dimensions())
	}
	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			t.Fatal("equal texts produced different vectors")
		}
	}
	same := true
	for i := range a.Vector {
		if a.Vector[i] != c.Vector[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different texts produced identical vectors")
	}

	batch, err := p.EmbedBatch(ctx, []string{"one", "two", "three"})
	if err != nil || len(batch) != 3 {
		t.Fatalf("batch = %d err=%v", len(batch), err)
	}
	single, _ := p.Embed(ctx, "two")
	if batch[1].Vector[0] != single.Vector[0] {
		t.Fatal("batch does not preserve input order")
	}
}

func TestMemoryVectorStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVectorStore()

	if err := s.CreateCollection(ctx, "code", 3); err != nil {
		t.Fatal(err)
	}
	// Idempotent with matching dims, conflict otherwise.
	if err := s.CreateCollection(ctx, "code", 3); err != nil {
		t.Fatalf("re-create with same dims: %v", err)
	}
	if err := s.CreateCollection(ctx, "code", 5); !xerr.IsKind(err, xerr.Conflict) {
		t.Fatalf("re-create with other dims: %v", err)
	}

	ids, err := s.InsertVectors(ctx, "code",
		[]Embedding{
			{Vector: []float32{1, 0, 0}},
			{Vector: []float32{0, 1, 0}},
			{Vector: []float32{0.9, 0.1, 0}},
		},
		[]map[string]string{
			{"file_path": "a.go"},
			{"file_path": "b.go"},
			{"file_path": "c.go"},
		},
	)
	if err != nil || len(ids) != 3 {
		t.Fatalf("insert: ids=%v err=%v", ids, err)
	}

	// Length mismatch and dimension mismatch are invalid arguments.
	if _, err := s.InsertVectors(ctx, "code", []Embedding{{Vector: []float32{1, 0, 0}}}, nil); !xerr.IsKind(err, xerr.InvalidArgument) {
		t.Fatalf("length mismatch: %v", err)
	}
	if _, err := s.InsertVectors(ctx, "code", []Embedding{{Vector: []float32{1, 0}}}, []map[string]string{{}}); !xerr.IsKind(err, xerr.InvalidArgument) {
		t.Fatalf("dims mismatch: %v", err)
	}

	results, err := s.SearchSimilar(ctx, "code", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Metadata["file_path"] != "a.go" {
		t.Fatalf("best match = %s, want a.go", results[0].Metadata["file_path"])
	}
	if results[0].Score < results[1].Score {
		t.Fatal("results not ordered by score")
	}
	for _, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Fatalf("score %f out of [0, 1]", r.Score)
		}
	}

	if err := s.DeleteVectors(ctx, "code", ids[:1]); err != nil {
		t.Fatal(err)
	}
	remaining, _ := s.ListVectors(ctx, "code", 10)
	if len(remaining) != 2 {
		t.Fatalf("got %d vectors after delete, want 2", len(remaining))
	}

	if err := s.DeleteCollection(ctx, "code"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SearchSimilar(ctx, "code", []float32{1, 0, 0}, 1); !xerr.IsKind(err, xerr.NotFound) {
		t.Fatalf("search on deleted collection: %v", err)
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(config.CacheConfig{MaxEntries: 8, MaxValueBytes: 64, DefaultTTL: time.Minute})

	type payload struct {
		Name string `json:"name"`
	}

	var out payload
	hit, err := c.GetJSON(ctx, "k", &out)
	if err != nil || hit {
		t.Fatalf("miss expected: hit=%v err=%v", hit, err)
	}

	if err := c.SetJSON(ctx, "k", payload{Name: "v"}, 0); err != nil {
		t.Fatal(err)
	}
	hit, err = c.GetJSON(ctx, "k", &out)
	if err != nil || !hit || out.Name != "v" {
		t.Fatalf("get after set: hit=%v out=%+v err=%v", hit, out, err)
	}

	// Oversized values are rejected.
	big := payload{Name: strings.Repeat("x", 100)}
	if err := c.SetJSON(ctx, "big", big, 0); !xerr.IsKind(err, xerr.Cache) {
		t.Fatalf("oversized set: %v", err)
	}

	// Short TTL expires on read.
	if err := c.SetJSON(ctx, "ttl", payload{Name: "t"}, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if hit, _ := c.GetJSON(ctx, "ttl", &out); hit {
		t.Fatal("expired entry still readable")
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 1 || stats.Misses < 2 {
		t.Fatalf("stats = %+v, want 1 hit and >=2 misses", stats)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Size(ctx); n != 0 {
		t.Fatalf("size after clear = %d", n)
	}
}

func TestHealthMonitorThresholds(t *testing.T) {
	m := NewHealthMonitor()
	if m.Status("p") != Healthy {
		t.Fatal("unknown provider should be Healthy")
	}
	m.RecordFailure("p")
	if m.Status("p") != Degraded {
		t.Fatal("one failure should be Degraded")
	}
	m.RecordFailure("p")
	m.RecordFailure("p")
	if m.Status("p") != Unhealthy {
		t.Fatal("three failures should be Unhealthy")
	}
	m.RecordSuccess("p")
	if m.Status("p") != Healthy {
		t.Fatal("success should reset to Healthy")
	}
}

func TestRouterPrefersHealthyPreferred(t *testing.T) {
	ctx := context.Background()
	a := &nullEmbeddingNamed{name: "a", dims: 8}
	b := &nullEmbeddingNamed{name: "b", dims: 8}
	monitor := NewHealthMonitor()
	router := NewEmbeddingRouter([]EmbeddingProvider{a, b}, []string{"a"}, monitor)

	p, err := router.Select(ctx, nil)
	if err != nil || p.Name() != "a" {
		t.Fatalf("select = %v err=%v, want a", p, err)
	}

	// Preferred provider marked Unhealthy falls through to the other.
	monitor.SetStatus("a", Unhealthy)
	p, err = router.Select(ctx, nil)
	if err != nil || p.Name() != "b" {
		t.Fatalf("select with a unhealthy = %v err=%v, want b", p, err)
	}

	// Exclusions are honoured.
	monitor.ClearStatus("a")
	p, err = router.Select(ctx, map[string]bool{"a": true})
	if err != nil || p.Name() != "b" {
		t.Fatalf("select excluding a = %v err=%v, want b", p, err)
	}

	// All unhealthy fails with an infrastructure error.
	monitor.SetStatus("a", Unhealthy)
	monitor.SetStatus("b", Unhealthy)
	if _, err := router.Select(ctx, nil); !xerr.IsKind(err, xerr.Infrastructure) {
		t.Fatalf("all unhealthy: %v", err)
	}
}

func TestRouterFailsOver(t *testing.T) {
	ctx := context.Background()
	failing := &failingEmbedding{name: "primary"}
	backup := &nullEmbeddingNamed{name: "backup", dims: 8}
	monitor := NewHealthMonitor()
	router := NewEmbeddingRouter([]EmbeddingProvider{failing, backup}, []string{"primary"}, monitor)

	emb, err := router.Embed(ctx, "text")
	if err != nil {
		t.Fatalf("embed with failover: %v", err)
	}
	if len(emb.Vector) != 8 {
		t.Fatalf("got %d dims from backup, want 8", len(emb.Vector))
	}
	if monitor.Status("primary") != Degraded {
		t.Fatalf("primary status = %v, want Degraded after one failure", monitor.Status("primary"))
	}
}

// nullEmbeddingNamed wraps the null embedding with a distinct name for
// router tests.
type nullEmbeddingNamed struct {
	name string
	dims int
}

func (p *nullEmbeddingNamed) Name() string    { return p.name }
func (p *nullEmbeddingNamed) Dimensions() int { return p.dims }

func (p *nullEmbeddingNamed) Embed(ctx context.Context, text string) (Embedding, error) {
	inner := &nullEmbedding{dims: p.dims}
	return inner.Embed(ctx, text)
}

func (p *nullEmbeddingNamed) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	inner := &nullEmbedding{dims: p.dims}
	return inner.EmbedBatch(ctx, texts)
}

func (p *nullEmbeddingNamed) HealthCheck(context.Context) HealthStatus { return Healthy }

type failingEmbedding struct {
	name string
}

func (f *failingEmbedding) Name() string    { return f.name }
func (f *failingEmbedding) Dimensions() int { return 8 }

func (f *failingEmbedding) Embed(context.Context, string) (Embedding, error) {
	return Embedding{}, xerr.New(xerr.Embedding, "backend down")
}

func (f *failingEmbedding) EmbedBatch(context.Context, []string) ([]Embedding, error) {
	return nil, xerr.New(xerr.Embedding, "backend down")
}

func (f *failingEmbedding) HealthCheck(context.Context) HealthStatus { return Unhealthy }
