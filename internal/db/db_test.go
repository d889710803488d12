package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func testObservation(id, project, content string) *Observation {
	return &Observation{
		ID:          id,
		ProjectID:   project,
		Content:     content,
		ContentHash: "hash-" + content,
		Type:        ObsContext,
		Tags:        []string{"test"},
		CreatedAt:   1000,
	}
}

func TestOpenAppliesMigrations(t *testing.T) {
	d := openTestDB(t)

	var version int
	if err := d.conn.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if want := migrations[len(migrations)-1].version; version != want {
		t.Fatalf("schema version = %d, want %d", version, want)
	}
}

func TestOpenRecoversCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.db")
	if err := os.WriteFile(path, []byte("this is not a database"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := Open(path)
	if err != nil {
		t.Fatalf("open after corruption: %v", err)
	}
	defer d.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	backedUp := false
	for _, e := range entries {
		if len(e.Name()) > len("broken.db.corrupt-") && e.Name()[:len("broken.db.corrupt-")] == "broken.db.corrupt-" {
			backedUp = true
		}
	}
	if !backedUp {
		t.Fatal("expected corrupt file to be backed up with a timestamp suffix")
	}
}

func TestObservationInsertAndDedup(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	obs := testObservation("obs-1", "proj", "first fact")
	if err := d.InsertObservation(ctx, obs); err != nil {
		t.Fatalf("insert: %v", err)
	}

	found, err := d.FindObservationByHash(ctx, "proj", obs.ContentHash)
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	if found == nil || found.ID != "obs-1" {
		t.Fatalf("find by hash = %+v, want obs-1", found)
	}

	// Same hash in another project is not a duplicate.
	if got, _ := d.FindObservationByHash(ctx, "other", obs.ContentHash); got != nil {
		t.Fatalf("cross-project hash lookup returned %+v", got)
	}

	dup := testObservation("obs-2", "proj", "first fact")
	err = d.InsertObservation(ctx, dup)
	if err == nil {
		t.Fatal("expected conflict on duplicate (project, content_hash)")
	}
}

func TestObservationDeleteHidesRow(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	obs := testObservation("obs-1", "proj", "deletable fact")
	if err := d.InsertObservation(ctx, obs); err != nil {
		t.Fatal(err)
	}
	if err := d.DeleteObservation(ctx, "obs-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got, _ := d.GetObservation(ctx, "obs-1"); got != nil {
		t.Fatalf("deleted observation still visible: %+v", got)
	}
	hits, err := d.SearchObservationsFTS(ctx, "deletable", "proj", 10)
	if err != nil {
		t.Fatalf("fts: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("deleted observation still in fts index: %v", hits)
	}
}

func TestSearchObservationsFTS(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	for i, content := range []string{
		"the parser handles nested generics",
		"database migrations run at startup",
		"the lexer tokenizes generics syntax",
	} {
		obs := testObservation(fmt.Sprintf("obs-%d", i), "proj", content)
		if err := d.InsertObservation(ctx, obs); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := d.SearchObservationsFTS(ctx, "generics", "proj", 10)
	if err != nil {
		t.Fatalf("fts search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}

	// Project scoping.
	hits, err = d.SearchObservationsFTS(ctx, "generics", "other-proj", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Fatalf("got %d hits in other project, want 0", len(hits))
	}

	// Empty query matches nothing rather than erroring.
	hits, err = d.SearchObservationsFTS(ctx, "   ", "proj", 10)
	if err != nil || hits != nil {
		t.Fatalf("empty query: hits=%v err=%v", hits, err)
	}
}

func TestTimelineOrderingAndAnchor(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	// Five observations at increasing times, two sharing a timestamp.
	times := []int64{100, 200, 300, 300, 400}
	for i, ts := range times {
		obs := testObservation(fmt.Sprintf("obs-%d", i), "proj", fmt.Sprintf("entry %d", i))
		obs.CreatedAt = ts
		if err := d.InsertObservation(ctx, obs); err != nil {
			t.Fatal(err)
		}
	}

	got, err := d.Timeline(ctx, "obs-2", 2, 2, nil)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	want := []string{"obs-0", "obs-1", "obs-2", "obs-3", "obs-4"}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i, obs := range got {
		if obs.ID != want[i] {
			t.Fatalf("position %d = %s, want %s", i, obs.ID, want[i])
		}
	}

	if _, err := d.Timeline(ctx, "missing", 1, 1, nil); err == nil {
		t.Fatal("expected error for unknown anchor")
	}
}

func TestTimelineScansPastNonMatchingNeighbors(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	// Only every other observation carries the filtered tag, so the rows
	// adjacent to the anchor never match and the window must keep scanning.
	times := []int64{100, 200, 300, 400, 500}
	for i, ts := range times {
		obs := testObservation(fmt.Sprintf("obs-%d", i), "proj", fmt.Sprintf("entry %d", i))
		obs.CreatedAt = ts
		if i%2 == 0 {
			obs.Tags = []string{"keep"}
		}
		if err := d.InsertObservation(ctx, obs); err != nil {
			t.Fatal(err)
		}
	}

	got, err := d.Timeline(ctx, "obs-2", 1, 1, &MemoryFilter{Tags: []string{"keep"}})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	want := []string{"obs-0", "obs-2", "obs-4"}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i, obs := range got {
		if obs.ID != want[i] {
			t.Fatalf("position %d = %s, want %s", i, obs.ID, want[i])
		}
	}
}

func TestListObservationsFilter(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	a := testObservation("obs-a", "proj", "tagged fact")
	a.Tags = []string{"auth", "bug"}
	a.Metadata.SessionID = "sess-1"
	b := testObservation("obs-b", "proj", "other fact")
	b.Tags = []string{"perf"}
	for _, obs := range []*Observation{a, b} {
		if err := d.InsertObservation(ctx, obs); err != nil {
			t.Fatal(err)
		}
	}

	got, err := d.ListObservations(ctx, &MemoryFilter{ProjectID: "proj", Tags: []string{"auth"}}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "obs-a" {
		t.Fatalf("tag filter returned %v", got)
	}

	got, err = d.ListObservations(ctx, &MemoryFilter{SessionID: "sess-1"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "obs-a" {
		t.Fatalf("session filter returned %v", got)
	}
}

func TestSessionLifecycleAndCounters(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	sess := &AgentSession{
		ID: "sess-1", AgentType: "coder", StartedAt: 1000,
		Status: SessionActive, ProjectID: "proj",
	}
	if err := d.InsertSession(ctx, sess); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	if err := d.InsertToolCall(ctx, &ToolCall{
		ID: "tc-1", SessionID: "sess-1", ToolName: "search", Success: true, CreatedAt: 1001,
	}); err != nil {
		t.Fatalf("insert tool call: %v", err)
	}

	child := &AgentSession{ID: "sess-2", AgentType: "reviewer", StartedAt: 1002, Status: SessionActive, ParentSessionID: "sess-1"}
	if err := d.InsertSession(ctx, child); err != nil {
		t.Fatal(err)
	}
	if err := d.InsertDelegation(ctx, &Delegation{
		ID: "del-1", ParentSessionID: "sess-1", ChildSessionID: "sess-2",
		Prompt: "review the diff", CreatedAt: 1002,
	}); err != nil {
		t.Fatalf("insert delegation: %v", err)
	}

	got, err := d.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	// The ledger is append-only; counters move only through UpdateSession.
	if got.ToolCallsCount != 0 || got.DelegationsCount != 0 {
		t.Fatalf("counters = (%d, %d), want (0, 0)", got.ToolCallsCount, got.DelegationsCount)
	}

	calls, err := d.ListToolCalls(ctx, "sess-1", 10)
	if err != nil || len(calls) != 1 {
		t.Fatalf("tool calls = %v err=%v", calls, err)
	}
	dels, err := d.ListDelegations(ctx, "sess-1")
	if err != nil || len(dels) != 1 {
		t.Fatalf("delegations = %v err=%v", dels, err)
	}

	got.Status = SessionCompleted
	got.ToolCallsCount = 1
	got.DelegationsCount = 1
	got.EndedAt = 2000
	got.DurationMs = 1000000
	if err := d.UpdateSession(ctx, got); err != nil {
		t.Fatalf("update session: %v", err)
	}
	again, _ := d.GetSession(ctx, "sess-1")
	if again.Status != SessionCompleted || again.EndedAt != 2000 {
		t.Fatalf("update not persisted: %+v", again)
	}

	missing := &AgentSession{ID: "nope", Status: SessionActive}
	if err := d.UpdateSession(ctx, missing); err == nil {
		t.Fatal("expected not found on missing session update")
	}
}

func TestCheckpoints(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	if err := d.InsertSession(ctx, &AgentSession{ID: "sess-1", AgentType: "coder", StartedAt: 1, Status: SessionActive}); err != nil {
		t.Fatal(err)
	}
	cp := &Checkpoint{
		ID: "cp-1", SessionID: "sess-1", Type: CheckpointGit,
		Description: "before refactor", SnapshotData: `{"ref":"abc123"}`, CreatedAt: 10,
	}
	if err := d.InsertCheckpoint(ctx, cp); err != nil {
		t.Fatalf("insert checkpoint: %v", err)
	}

	if err := d.MarkCheckpointRestored(ctx, "cp-1", 20); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, _ := d.GetCheckpoint(ctx, "cp-1")
	if got.RestoredAt != 20 || got.Expired {
		t.Fatalf("checkpoint after restore: %+v", got)
	}

	if err := d.MarkCheckpointExpired(ctx, "cp-1"); err != nil {
		t.Fatal(err)
	}
	active, err := d.ListCheckpoints(ctx, "sess-1", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Fatalf("expired checkpoint still listed: %v", active)
	}
	all, _ := d.ListCheckpoints(ctx, "sess-1", true)
	if len(all) != 1 {
		t.Fatalf("got %d checkpoints with expired included, want 1", len(all))
	}
}

func TestFileHashLedger(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	// Unknown paths count as changed.
	changed, err := d.FileHashChanged(ctx, "coll", "a.go", "h1")
	if err != nil || !changed {
		t.Fatalf("unknown path: changed=%v err=%v", changed, err)
	}

	if err := d.UpsertFileHash(ctx, "coll", "a.go", "h1", 100); err != nil {
		t.Fatal(err)
	}
	if changed, _ = d.FileHashChanged(ctx, "coll", "a.go", "h1"); changed {
		t.Fatal("same hash reported as changed")
	}
	if changed, _ = d.FileHashChanged(ctx, "coll", "a.go", "h2"); !changed {
		t.Fatal("different hash not reported as changed")
	}

	// Tombstoning forces reprocessing even with a matching hash.
	n, err := d.TombstoneCollection(ctx, "coll", 200)
	if err != nil || n != 1 {
		t.Fatalf("tombstone: n=%d err=%v", n, err)
	}
	if changed, _ = d.FileHashChanged(ctx, "coll", "a.go", "h1"); !changed {
		t.Fatal("tombstoned path not reported as changed")
	}

	// Re-upsert clears the tombstone.
	if err := d.UpsertFileHash(ctx, "coll", "a.go", "h1", 300); err != nil {
		t.Fatal(err)
	}
	records, _ := d.ListFileHashes(ctx, "coll")
	if len(records) != 1 || records[0].Tombstone {
		t.Fatalf("ledger after re-upsert: %+v", records)
	}
}

func TestRepositoryRegistry(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	orgID, err := d.EnsureOrganization(ctx, "org-1", "acme", 1)
	if err != nil {
		t.Fatal(err)
	}
	// Second ensure with a different candidate id returns the existing row.
	again, err := d.EnsureOrganization(ctx, "org-2", "acme", 2)
	if err != nil || again != orgID {
		t.Fatalf("ensure twice: id=%s err=%v", again, err)
	}

	repo := &Repository{
		ID: "repo-1", OrgID: orgID, ProjectID: "proj", Name: "backend",
		URL: "https://example.com/backend.git", VCSType: "git",
		CreatedAt: 1, UpdatedAt: 1,
	}
	if err := d.UpsertRepository(ctx, repo); err != nil {
		t.Fatal(err)
	}
	repo.LocalPath = "/srv/backend"
	repo.UpdatedAt = 2
	if err := d.UpsertRepository(ctx, repo); err != nil {
		t.Fatalf("upsert update: %v", err)
	}

	got, err := d.FindRepositoryByName(ctx, "proj", "backend")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.LocalPath != "/srv/backend" {
		t.Fatalf("repository after upsert: %+v", got)
	}

	if err := d.UpsertBranch(ctx, &Branch{ID: "br-1", RepoID: "repo-1", Name: "main", HeadRef: "abc", CreatedAt: 1, UpdatedAt: 1}); err != nil {
		t.Fatal(err)
	}
	if err := d.UpsertWorktree(ctx, &Worktree{ID: "wt-1", RepoID: "repo-1", Branch: "main", Path: "/tmp/wt", CreatedAt: 1, UpdatedAt: 1}); err != nil {
		t.Fatal(err)
	}
	branches, _ := d.ListBranches(ctx, "repo-1")
	worktrees, _ := d.ListWorktrees(ctx, "repo-1")
	if len(branches) != 1 || len(worktrees) != 1 {
		t.Fatalf("registry listing: %d branches, %d worktrees", len(branches), len(worktrees))
	}
}

func TestSessionSummaryRoundTrip(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	s := &SessionSummary{
		ID: "sum-1", ProjectID: "proj", SessionID: "sess-1",
		Topics:    []string{"indexing"},
		Decisions: []string{"use hash gating"},
		NextSteps: []string{"wire the watcher"},
		KeyFiles:  []string{"internal/index/service.go"},
		Origin:    &OriginContext{Hostname: "dev-box", Timestamp: 50},
		CreatedAt: 100,
	}
	if err := d.StoreSessionSummary(ctx, s); err != nil {
		t.Fatal(err)
	}

	got, err := d.GetSessionSummary(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got.Topics) != 1 || got.Origin == nil || got.Origin.Hostname != "dev-box" {
		t.Fatalf("summary round trip: %+v", got)
	}

	if got, _ := d.GetSessionSummary(ctx, "missing"); got != nil {
		t.Fatalf("missing summary = %+v, want nil", got)
	}
}
