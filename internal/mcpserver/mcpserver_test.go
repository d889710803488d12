package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/session"
	"github.com/mcbridge/mcbridge/internal/tools"
)

func newSessionTool(t *testing.T) *SessionTool {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "mcbridge.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewSessionTool(session.New(store, nil))
}

func TestSessionToolLifecycle(t *testing.T) {
	tool := newSessionTool(t)
	ctx := context.Background()

	res := tool.Execute(ctx, map[string]any{
		"action":     "create",
		"agent_type": "coder",
		"model":      "sonnet",
	})
	if res.IsError {
		t.Fatalf("create failed: %s", res.Content)
	}
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal([]byte(res.Content), &created); err != nil {
		t.Fatalf("decode create result: %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("expected a session id")
	}

	res = tool.Execute(ctx, map[string]any{
		"action":      "update",
		"session_id":  created.SessionID,
		"token_count": float64(1234),
	})
	if res.IsError {
		t.Fatalf("update failed: %s", res.Content)
	}

	res = tool.Execute(ctx, map[string]any{
		"action":         "end",
		"session_id":     created.SessionID,
		"status":         "completed",
		"result_summary": "done",
	})
	if res.IsError {
		t.Fatalf("end failed: %s", res.Content)
	}

	res = tool.Execute(ctx, map[string]any{"action": "get", "session_id": created.SessionID})
	if res.IsError {
		t.Fatalf("get failed: %s", res.Content)
	}
	var sess db.AgentSession
	if err := json.Unmarshal([]byte(res.Content), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Status != db.SessionCompleted {
		t.Fatalf("status = %s, want completed", sess.Status)
	}
	if sess.TokenCount != 1234 {
		t.Fatalf("token count = %d, want 1234", sess.TokenCount)
	}
}

func TestSessionToolUpdateDataPayload(t *testing.T) {
	tool := newSessionTool(t)
	ctx := context.Background()

	res := tool.Execute(ctx, map[string]any{"action": "create", "agent_type": "coder"})
	if res.IsError {
		t.Fatalf("create failed: %s", res.Content)
	}
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal([]byte(res.Content), &created); err != nil {
		t.Fatalf("decode create result: %v", err)
	}

	// The identifier inside the payload applies when no argument is set.
	res = tool.Execute(ctx, map[string]any{
		"action":     "update",
		"session_id": created.SessionID,
		"data":       map[string]any{"project_id": "proj-a"},
	})
	if res.IsError {
		t.Fatalf("update with payload failed: %s", res.Content)
	}
	res = tool.Execute(ctx, map[string]any{"action": "get", "session_id": created.SessionID})
	var sess db.AgentSession
	if err := json.Unmarshal([]byte(res.Content), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.ProjectID != "proj-a" {
		t.Fatalf("project id = %q, want proj-a", sess.ProjectID)
	}

	// Argument and payload disagreeing is rejected.
	res = tool.Execute(ctx, map[string]any{
		"action":     "update",
		"session_id": created.SessionID,
		"project_id": "proj-b",
		"data":       map[string]any{"project_id": "proj-c"},
	})
	if !res.IsError {
		t.Fatal("conflicting identifiers should be rejected")
	}
	if !strings.Contains(res.Content, "project_id") {
		t.Fatalf("error should name the field, got %q", res.Content)
	}
}

func TestSessionToolRejectsUnknownAction(t *testing.T) {
	tool := newSessionTool(t)
	res := tool.Execute(context.Background(), map[string]any{"action": "explode"})
	if !res.IsError {
		t.Fatal("expected an error result")
	}
	if !strings.Contains(res.Content, "explode") {
		t.Fatalf("error should name the action, got %q", res.Content)
	}
}

func TestSessionToolRejectsBadEndStatus(t *testing.T) {
	tool := newSessionTool(t)
	res := tool.Execute(context.Background(), map[string]any{
		"action":     "end",
		"session_id": "whatever",
		"status":     "paused",
	})
	if !res.IsError {
		t.Fatal("expected an error result")
	}
}

func TestAgentToolCheckpointRoundTrip(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "mcbridge.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	svc := session.New(store, nil)
	tool := NewAgentTool(svc)
	ctx := context.Background()

	sessID, err := svc.Create(ctx, &db.AgentSession{AgentType: "coder"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	res := tool.Execute(ctx, map[string]any{
		"action":          "checkpoint",
		"session_id":      sessID,
		"checkpoint_type": "git",
		"description":     "before refactor",
		"snapshot_data":   `{"head":"abc123"}`,
	})
	if res.IsError {
		t.Fatalf("checkpoint failed: %s", res.Content)
	}
	var created struct {
		CheckpointID string `json:"checkpoint_id"`
	}
	if err := json.Unmarshal([]byte(res.Content), &created); err != nil {
		t.Fatalf("decode checkpoint result: %v", err)
	}

	res = tool.Execute(ctx, map[string]any{
		"action":        "restore_checkpoint",
		"session_id":    sessID,
		"checkpoint_id": created.CheckpointID,
	})
	if res.IsError {
		t.Fatalf("restore failed: %s", res.Content)
	}
	var cp db.Checkpoint
	if err := json.Unmarshal([]byte(res.Content), &cp); err != nil {
		t.Fatalf("decode checkpoint: %v", err)
	}
	if cp.SnapshotData != `{"head":"abc123"}` {
		t.Fatalf("snapshot payload = %q", cp.SnapshotData)
	}
	if cp.RestoredAt == 0 {
		t.Fatal("restore should stamp restored_at")
	}

	res = tool.Execute(ctx, map[string]any{
		"action":          "checkpoint",
		"session_id":      sessID,
		"checkpoint_type": "tarball",
	})
	if !res.IsError {
		t.Fatal("bogus checkpoint type should be rejected")
	}
}

func TestToolSchemasAreValidJSONSchema(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "mcbridge.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	svc := session.New(store, nil)

	all := []tools.Tool{
		NewSessionTool(svc),
		NewAgentTool(svc),
	}
	for _, tool := range all {
		params := tool.Parameters()
		raw, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("%s: marshal schema: %v", tool.Name(), err)
		}
		var schema struct {
			Type       string         `json:"type"`
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if err := json.Unmarshal(raw, &schema); err != nil {
			t.Fatalf("%s: schema does not round-trip: %v", tool.Name(), err)
		}
		if schema.Type != "object" {
			t.Fatalf("%s: schema type = %q", tool.Name(), schema.Type)
		}
		for _, req := range schema.Required {
			if _, ok := schema.Properties[req]; !ok {
				t.Fatalf("%s: required field %q missing from properties", tool.Name(), req)
			}
		}
	}
}

func TestServerRegistersRegistryTools(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "mcbridge.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	svc := session.New(store, nil)

	registry := tools.NewRegistry()
	registry.Register(NewSessionTool(svc))
	registry.Register(NewAgentTool(svc))

	if _, err := New("test", registry); err != nil {
		t.Fatalf("building server: %v", err)
	}
}
