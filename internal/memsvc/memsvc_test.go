package memsvc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/providers"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

func newTestService(t *testing.T) (*Service, providers.VectorStore) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "mem.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	embedder, err := providers.ResolveEmbedding(config.EmbeddingConfig{Provider: "null", Dimensions: 16})
	if err != nil {
		t.Fatal(err)
	}
	vectors := providers.NewMemoryVectorStore()
	svc := New(store, embedder, vectors, "memory")
	if err := svc.EnsureCollection(context.Background(), 16); err != nil {
		t.Fatal(err)
	}
	return svc, vectors
}

func TestStoreObservationDedup(t *testing.T) {
	ctx := context.Background()
	svc, vectors := newTestService(t)

	id1, dup, err := svc.StoreObservation(ctx, "proj", "picked sqlite for the ledger", db.ObsDecision, []string{"storage"}, db.ObservationMetadata{SessionID: "sess-1"})
	if err != nil {
		t.Fatal(err)
	}
	if dup {
		t.Fatal("first write reported as duplicate")
	}

	id2, dup, err := svc.StoreObservation(ctx, "proj", "picked sqlite for the ledger", db.ObsDecision, []string{"other"}, db.ObservationMetadata{SessionID: "sess-2"})
	if err != nil {
		t.Fatal(err)
	}
	if !dup || id2 != id1 {
		t.Fatalf("dedup: dup=%v id1=%s id2=%s", dup, id1, id2)
	}

	// Dedup leaves the original untouched.
	obs, err := svc.store.GetObservation(ctx, id1)
	if err != nil {
		t.Fatal(err)
	}
	if obs.Metadata.SessionID != "sess-1" || obs.Tags[0] != "storage" {
		t.Fatalf("original mutated by dedup: %+v", obs)
	}

	// Same content in another project is a distinct observation.
	id3, dup, err := svc.StoreObservation(ctx, "other-proj", "picked sqlite for the ledger", db.ObsDecision, nil, db.ObservationMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	if dup || id3 == id1 {
		t.Fatalf("cross-project write deduplicated: dup=%v", dup)
	}

	records, err := vectors.ListVectors(ctx, "memory", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d vectors, want 2", len(records))
	}
	if records[0].Metadata["observation_id"] != id1 {
		t.Fatalf("vector metadata = %v", records[0].Metadata)
	}
}

func TestStoreObservationValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, _, err := svc.StoreObservation(ctx, "proj", "", db.ObsContext, nil, db.ObservationMetadata{}); !xerr.IsKind(err, xerr.InvalidArgument) {
		t.Fatalf("empty content: %v", err)
	}
	if _, _, err := svc.StoreObservation(ctx, "proj", "x", "bogus", nil, db.ObservationMetadata{}); !xerr.IsKind(err, xerr.InvalidArgument) {
		t.Fatalf("bogus type: %v", err)
	}
}

func TestSearchHybrid(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	seed := []string{
		"database migrations run on startup",
		"the scheduler retries failed jobs",
		"authentication uses bearer tokens",
	}
	for _, content := range seed {
		if _, _, err := svc.StoreObservation(ctx, "proj", content, db.ObsContext, nil, db.ObservationMetadata{}); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := svc.Search(ctx, "database migrations run on startup", &db.MemoryFilter{ProjectID: "proj"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	if hits[0].Observation.Content != seed[0] {
		t.Fatalf("top hit = %q", hits[0].Observation.Content)
	}
	if hits[0].Score <= 0 || hits[0].Score > 1 {
		t.Fatalf("score out of range: %v", hits[0].Score)
	}
}

func TestSearchEmptyQueryListsByRecency(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	for i := 0; i < 3; i++ {
		if _, _, err := svc.StoreObservation(ctx, "proj", fmt.Sprintf("note %d", i), db.ObsContext, nil, db.ObservationMetadata{}); err != nil {
			t.Fatal(err)
		}
	}
	hits, err := svc.Search(ctx, "", &db.MemoryFilter{ProjectID: "proj"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	for _, h := range hits {
		if h.Score != 0 {
			t.Fatalf("relational hit carries score %v", h.Score)
		}
	}
}

func TestSearchRespectsFilter(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, _, err := svc.StoreObservation(ctx, "proj", "retry logic for the worker pool", db.ObsDecision, nil, db.ObservationMetadata{SessionID: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.StoreObservation(ctx, "proj", "retry logic for the http client", db.ObsContext, nil, db.ObservationMetadata{SessionID: "b"}); err != nil {
		t.Fatal(err)
	}

	hits, err := svc.Search(ctx, "retry logic", &db.MemoryFilter{ProjectID: "proj", Type: db.ObsDecision}, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.Observation.Type != db.ObsDecision {
			t.Fatalf("filter leaked type %s", h.Observation.Type)
		}
	}
}

func TestPreviewTruncation(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := Preview(long)
	if len([]rune(got)) != previewLength+1 || !strings.HasSuffix(got, "…") {
		t.Fatalf("preview = %d runes", len([]rune(got)))
	}
	if Preview("short") != "short" {
		t.Fatal("short content altered")
	}
}

func TestTimeline(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	var anchor string
	base := int64(1_700_000_000)
	for i := 0; i < 5; i++ {
		obs := &db.Observation{
			ID:          fmt.Sprintf("obs-%d", i),
			ProjectID:   "proj",
			Content:     fmt.Sprintf("step %d", i),
			ContentHash: fmt.Sprintf("hash-%d", i),
			Type:        db.ObsContext,
			CreatedAt:   base + int64(i),
		}
		if err := svc.store.InsertObservation(ctx, obs); err != nil {
			t.Fatal(err)
		}
		if i == 2 {
			anchor = obs.ID
		}
	}

	hits, err := svc.Timeline(ctx, anchor, 1, 1, &db.MemoryFilter{ProjectID: "proj"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d entries, want 3", len(hits))
	}
	if hits[1].Observation.ID != anchor {
		t.Fatal("anchor not in the middle")
	}

	if _, err := svc.Timeline(ctx, "missing", 1, 1, nil); !xerr.IsKind(err, xerr.NotFound) {
		t.Fatalf("missing anchor: %v", err)
	}
}

func TestDeleteRemovesVector(t *testing.T) {
	ctx := context.Background()
	svc, vectors := newTestService(t)

	id, _, err := svc.StoreObservation(ctx, "proj", "to be forgotten", db.ObsContext, nil, db.ObservationMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}

	if obs, _ := svc.store.GetObservation(ctx, id); obs != nil {
		t.Fatal("observation still visible after delete")
	}
	records, _ := vectors.ListVectors(ctx, "memory", 10)
	if len(records) != 0 {
		t.Fatalf("got %d vectors after delete, want 0", len(records))
	}

	if err := svc.Delete(ctx, id); !xerr.IsKind(err, xerr.NotFound) {
		t.Fatalf("re-delete: %v", err)
	}
}

func TestQualityGateOverlay(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, _, err := svc.StoreQualityGate(ctx, "proj", db.QualityGateResult{Gate: "lint", Status: "failed", Details: "2 issues"}, db.ObservationMetadata{SessionID: "s"})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.StoreQualityGate(ctx, "proj", db.QualityGateResult{Gate: "lint", Status: "maybe"}, db.ObservationMetadata{}); !xerr.IsKind(err, xerr.InvalidArgument) {
		t.Fatalf("invalid status: %v", err)
	}

	gates, err := svc.ListQualityGates(ctx, "proj", "lint", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(gates) != 1 || gates[0].Metadata.QualityGate.Status != "failed" {
		t.Fatalf("gates = %+v", gates)
	}
}

func TestExecutionOverlay(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, _, err := svc.StoreExecution(ctx, "proj", db.ExecutionMetadata{Command: "go vet ./...", ExitCode: 0}, db.ObservationMetadata{}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.StoreExecution(ctx, "proj", db.ExecutionMetadata{Command: "make test", ExitCode: 2, Stderr: "FAIL"}, db.ObservationMetadata{}); err != nil {
		t.Fatal(err)
	}

	failed, err := svc.ListExecutions(ctx, "proj", true, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].Metadata.Execution.Command != "make test" {
		t.Fatalf("failed executions = %+v", failed)
	}
	all, err := svc.ListExecutions(ctx, "proj", false, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d executions, want 2", len(all))
	}
}

func TestErrorPatternRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, dup, err := svc.StoreErrorPattern(ctx, db.ErrorPattern{
		ProjectID: "proj",
		Signature: "dial tcp: connection refused",
		Category:  "network",
		Solutions: []string{"check the service is listening"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if dup {
		t.Fatal("first pattern reported duplicate")
	}

	patterns, err := svc.RecallErrorPatterns(ctx, "proj", "connection refused", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(patterns) != 1 || patterns[0].Signature != "dial tcp: connection refused" {
		t.Fatalf("patterns = %+v", patterns)
	}
	if patterns[0].OccurrenceCount != 1 || patterns[0].FirstSeenAt == 0 {
		t.Fatalf("defaults not applied: %+v", patterns[0])
	}
}

func TestSessionSummaryOverlay(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.StoreSessionSummary(ctx, &db.SessionSummary{
		ProjectID: "proj",
		SessionID: "sess-9",
		Topics:    []string{"indexing"},
		Decisions: []string{"batch size 32"},
	})
	if err != nil {
		t.Fatal(err)
	}

	summary, err := svc.GetSessionSummary(ctx, "sess-9")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Topics[0] != "indexing" || summary.Decisions[0] != "batch size 32" {
		t.Fatalf("summary = %+v", summary)
	}

	// The mirror observation participates in recall.
	hits, err := svc.Search(ctx, "", &db.MemoryFilter{ProjectID: "proj", Type: db.ObsSummary}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d summary observations, want 1", len(hits))
	}

	if _, err := svc.GetSessionSummary(ctx, "nope"); !xerr.IsKind(err, xerr.NotFound) {
		t.Fatalf("missing summary: %v", err)
	}
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	id, _, err := svc.StoreObservation(ctx, "proj", "indexer skips unchanged files", db.ObsContext, []string{"indexing"}, db.ObservationMetadata{})
	if err != nil {
		t.Fatal(err)
	}

	obs, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if obs.Content != "indexer skips unchanged files" {
		t.Fatalf("content = %q", obs.Content)
	}
	if _, err := svc.Get(ctx, "missing"); !xerr.IsKind(err, xerr.NotFound) {
		t.Fatalf("missing observation: %v", err)
	}

	list, err := svc.List(ctx, &db.MemoryFilter{ProjectID: "proj", Tags: []string{"indexing"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("list = %+v", list)
	}
}
