package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcbridge/mcbridge/internal/bus"
	"github.com/mcbridge/mcbridge/internal/chunking"
	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/contextsvc"
	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/ids"
	"github.com/mcbridge/mcbridge/internal/providers"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

func testIndexingConfig() config.IndexingConfig {
	return config.IndexingConfig{
		SupportedExtensions: []string{"go", "rs"},
		IgnorePatterns:      []string{"vendor/", "*.min.js", "generated"},
		MaxFileSize:         1 << 20,
		MaxChunkTokens:      256,
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestService(t *testing.T) (*Service, providers.VectorStore, *bus.Bus) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	embedder, err := providers.ResolveEmbedding(config.EmbeddingConfig{Provider: "null", Dimensions: 16})
	if err != nil {
		t.Fatal(err)
	}
	vectors := providers.NewMemoryVectorStore()
	cache := providers.NewMemoryCache(config.CacheConfig{MaxEntries: 64})
	ctxsvc := contextsvc.New(embedder, vectors, cache, 16)

	b := bus.New()
	t.Cleanup(b.Close)

	svc := NewService(store, ctxsvc, chunking.New(256), NewTracker(), b, testIndexingConfig())
	return svc, vectors, b
}

func TestDiscoverFiltersAndIgnores(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.rs", "fn b() {}")
	writeFile(t, root, "notes.txt", "not source")
	writeFile(t, root, "vendor/dep.go", "package dep")
	writeFile(t, root, "lib/generated_api.go", "package api")

	files, err := Discover(root, testIndexingConfig())
	if err != nil {
		t.Fatal(err)
	}

	got := make(map[string]bool, len(files))
	for _, f := range files {
		got[f.RelPath] = true
	}
	if !got["a.go"] || !got["b.rs"] {
		t.Fatalf("expected a.go and b.rs in %v", files)
	}
	if got["notes.txt"] {
		t.Fatal("unsupported extension not filtered")
	}
	if got["vendor/dep.go"] {
		t.Fatal("directory ignore pattern not applied")
	}
	if got["lib/generated_api.go"] {
		t.Fatal("substring ignore pattern not applied")
	}
}

func TestDiscoverMaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", "package small")
	writeFile(t, root, "big.go", string(make([]byte, 2048)))

	cfg := testIndexingConfig()
	cfg.MaxFileSize = 1024
	files, err := Discover(root, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].RelPath != "small.go" {
		t.Fatalf("files = %v, want only small.go", files)
	}
}

func TestTrackerRejectsConcurrentOps(t *testing.T) {
	tr := NewTracker()
	id1, err := tr.Begin("proj", 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Begin("proj", 3); !xerr.IsKind(err, xerr.Conflict) {
		t.Fatalf("second begin: %v", err)
	}
	// A different collection is fine.
	if _, err := tr.Begin("other", 1); err != nil {
		t.Fatalf("other collection: %v", err)
	}
	// Completion frees the collection.
	tr.Complete(id1, 3, 0, 9)
	if _, err := tr.Begin("proj", 1); err != nil {
		t.Fatalf("begin after complete: %v", err)
	}

	op := tr.Get(id1)
	if op == nil || op.Status != OpCompleted || op.ChunksCreated != 9 {
		t.Fatalf("completed op = %+v", op)
	}
	if tr.Get(ids.NewOperationID()) != nil {
		t.Fatal("unknown op should be nil")
	}
}

func TestTrackerEvictsTerminalOps(t *testing.T) {
	tr := NewTracker()
	clock := time.Now()
	tr.now = func() time.Time { return clock }

	id1, err := tr.Begin("proj", 1)
	if err != nil {
		t.Fatal(err)
	}
	tr.Complete(id1, 1, 0, 3)
	id2, err := tr.Begin("proj", 1)
	if err != nil {
		t.Fatal(err)
	}
	tr.Fail(id2, "boom")

	// Within retention both stay queryable.
	if tr.Get(id1) == nil || tr.Get(id2) == nil {
		t.Fatal("terminal ops should remain queryable within retention")
	}

	clock = clock.Add(opRetention + time.Second)
	if tr.Get(id1) != nil || tr.Get(id2) != nil {
		t.Fatal("terminal ops should be gone after retention")
	}
	// The next Begin sweeps the map for real.
	if _, err := tr.Begin("proj", 1); err != nil {
		t.Fatalf("begin after sweep: %v", err)
	}
	if len(tr.ops) != 1 {
		t.Fatalf("tracker holds %d ops after sweep, want 1", len(tr.ops))
	}
}

func TestIncrementalReindex(t *testing.T) {
	ctx := context.Background()
	svc, vectors, _ := newTestService(t)
	root := t.TempDir()
	writeFile(t, root, "a.rs", "fn a() { println!(\"a\"); }")
	writeFile(t, root, "b.rs", "fn b() { println!(\"b\"); }")
	writeFile(t, root, "c.rs", "fn c() { println!(\"c\"); }")

	op, err := svc.Run(ctx, root, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if op.Status != OpCompleted || op.ProcessedFiles != 3 || op.SkippedFiles != 0 {
		t.Fatalf("first run: %+v", op)
	}
	firstChunks := op.ChunksCreated

	// Unchanged re-index skips everything.
	op, err = svc.Run(ctx, root, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if op.ProcessedFiles != 0 || op.SkippedFiles != 3 {
		t.Fatalf("unchanged run: %+v", op)
	}

	// Modify one file; only it is reprocessed.
	writeFile(t, root, "b.rs", "fn b() { println!(\"b2\"); }\nfn b_extra() {}")
	op, err = svc.Run(ctx, root, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if op.ProcessedFiles != 1 || op.SkippedFiles != 2 {
		t.Fatalf("incremental run: %+v", op)
	}

	stored, err := vectors.ListVectors(ctx, "proj", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) < firstChunks {
		t.Fatalf("store has %d vectors, want at least %d", len(stored), firstChunks)
	}
}

func TestEmptyWorkspaceCompletes(t *testing.T) {
	svc, _, _ := newTestService(t)
	op, err := svc.Run(context.Background(), t.TempDir(), "proj")
	if err != nil {
		t.Fatal(err)
	}
	if op.Status != OpCompleted || op.ProcessedFiles != 0 || op.ChunksCreated != 0 {
		t.Fatalf("empty workspace: %+v", op)
	}
}

func TestStartPublishesEvents(t *testing.T) {
	svc, _, b := newTestService(t)
	_, ch := b.Subscribe()
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n\nfunc A() {}")

	if _, err := svc.Run(context.Background(), root, "proj"); err != nil {
		t.Fatal(err)
	}

	var sawStarted, sawCompleted bool
	for i := 0; i < 16; i++ {
		select {
		case env := <-ch:
			switch e := env.Event.(type) {
			case bus.IndexingStarted:
				if e.Collection == "proj" && e.TotalFiles == 1 {
					sawStarted = true
				}
			case bus.IndexingCompleted:
				if e.Collection == "proj" && e.Chunks > 0 {
					sawCompleted = true
				}
			}
		default:
		}
		if sawStarted && sawCompleted {
			break
		}
	}
	if !sawStarted || !sawCompleted {
		t.Fatalf("events missing: started=%v completed=%v", sawStarted, sawCompleted)
	}
}

func TestClearTombstonesLedger(t *testing.T) {
	ctx := context.Background()
	svc, vectors, _ := newTestService(t)
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n\nfunc A() {}")

	if _, err := svc.Run(ctx, root, "proj"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Clear(ctx, "proj"); err != nil {
		t.Fatal(err)
	}

	if exists, _ := vectors.CollectionExists(ctx, "proj"); exists {
		t.Fatal("collection survives clear")
	}

	// After clear every file counts as changed again.
	op, err := svc.Run(ctx, root, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if op.ProcessedFiles != 1 || op.SkippedFiles != 0 {
		t.Fatalf("run after clear: %+v", op)
	}
}

func TestStartRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, t.TempDir(), ""); !xerr.IsKind(err, xerr.InvalidArgument) {
		t.Fatalf("empty collection: %v", err)
	}
	if _, err := svc.Start(ctx, "/does/not/exist", "proj"); !xerr.IsKind(err, xerr.NotFound) {
		t.Fatalf("missing root: %v", err)
	}
}
