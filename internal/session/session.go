// Package session is the agent session ledger: lifecycle, tool calls,
// delegations, and restorable checkpoints.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/mcbridge/mcbridge/internal/bus"
	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/ids"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// Service records agent sessions and their activity.
type Service struct {
	store *db.DB
	bus   *bus.Bus
	now   func() time.Time
}

// New wires the session service. b may be nil to disable events.
func New(store *db.DB, b *bus.Bus) *Service {
	return &Service{store: store, bus: b, now: time.Now}
}

// Create writes a new session row with status Active. A missing id is
// generated; a missing start time defaults to now.
func (s *Service) Create(ctx context.Context, sess *db.AgentSession) (string, error) {
	if sess.AgentType == "" {
		return "", xerr.New(xerr.InvalidArgument, "agent_type cannot be empty")
	}
	if sess.ID == "" {
		sess.ID = ids.NewSessionID().String()
	}
	if sess.StartedAt == 0 {
		sess.StartedAt = s.now().Unix()
	}
	sess.Status = db.SessionActive
	if err := s.store.InsertSession(ctx, sess); err != nil {
		return "", err
	}
	slog.Info("session started", "session", sess.ID, "agent_type", sess.AgentType)
	return sess.ID, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id string) (*db.AgentSession, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, xerr.New(xerr.NotFound, "session %s", id)
	}
	return sess, nil
}

// List returns sessions for a project, optionally narrowed by status.
func (s *Service) List(ctx context.Context, projectID string, status db.SessionStatus, limit int) ([]*db.AgentSession, error) {
	return s.store.ListSessions(ctx, projectID, status, limit)
}

// End marks a session terminal. Ending an unknown session is a no-op so
// shutdown paths can end unconditionally. Re-ending an ended session
// overwrites the terminal fields; recovery tooling relies on that.
func (s *Service) End(ctx context.Context, id string, status db.SessionStatus, resultSummary string) error {
	if status != db.SessionCompleted && status != db.SessionFailed {
		return xerr.New(xerr.InvalidArgument, "terminal status must be completed or failed, got %q", status)
	}
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		slog.Debug("end of unknown session ignored", "session", id)
		return nil
	}
	sess.EndedAt = s.now().Unix()
	sess.DurationMs = (sess.EndedAt - sess.StartedAt) * 1000
	sess.Status = status
	sess.ResultSummary = resultSummary
	return s.store.UpdateSession(ctx, sess)
}

// UpdateRequest carries a partial session update. Identifier fields may
// arrive twice, once as an argument and once inside the data payload.
type UpdateRequest struct {
	SessionID string

	ProjectID     string
	WorktreeID    string
	PromptSummary string
	ResultSummary string

	// Data is the embedded payload; identifier fields inside it must agree
	// with the top-level arguments.
	Data *UpdateData

	TokenCount       *int64
	ToolCallsCount   *int64
	DelegationsCount *int64
}

// UpdateData is the embedded payload portion of an update.
type UpdateData struct {
	ProjectID  string `json:"project_id,omitempty"`
	WorktreeID string `json:"worktree_id,omitempty"`
}

// resolveIdent applies the precedence rule shared by project and worktree
// identifiers: when both the argument and the payload carry a value they
// must agree, otherwise whichever is set wins.
func resolveIdent(arg, payload, field string) (string, error) {
	if arg != "" && payload != "" && arg != payload {
		return "", xerr.New(xerr.InvalidArgument,
			"%s mismatch: argument %q vs payload %q", field, arg, payload)
	}
	if arg != "" {
		return arg, nil
	}
	return payload, nil
}

// Update applies a partial update to a session.
func (s *Service) Update(ctx context.Context, req UpdateRequest) error {
	payloadProject, payloadWorktree := "", ""
	if req.Data != nil {
		payloadProject = req.Data.ProjectID
		payloadWorktree = req.Data.WorktreeID
	}
	projectID, err := resolveIdent(req.ProjectID, payloadProject, "project_id")
	if err != nil {
		return err
	}
	worktreeID, err := resolveIdent(req.WorktreeID, payloadWorktree, "worktree_id")
	if err != nil {
		return err
	}

	sess, err := s.Get(ctx, req.SessionID)
	if err != nil {
		return err
	}
	if projectID != "" {
		sess.ProjectID = projectID
	}
	if worktreeID != "" {
		sess.WorktreeID = worktreeID
	}
	if req.PromptSummary != "" {
		sess.PromptSummary = req.PromptSummary
	}
	if req.ResultSummary != "" {
		sess.ResultSummary = req.ResultSummary
	}
	if req.TokenCount != nil {
		sess.TokenCount = *req.TokenCount
	}
	if req.ToolCallsCount != nil {
		sess.ToolCallsCount = *req.ToolCallsCount
	}
	if req.DelegationsCount != nil {
		sess.DelegationsCount = *req.DelegationsCount
	}
	return s.store.UpdateSession(ctx, sess)
}

// StoreToolCall appends a tool call to the ledger. Parent counters are the
// caller's responsibility, maintained through Update.
func (s *Service) StoreToolCall(ctx context.Context, tc *db.ToolCall) (string, error) {
	if tc.SessionID == "" || tc.ToolName == "" {
		return "", xerr.New(xerr.InvalidArgument, "tool call requires session_id and tool_name")
	}
	if tc.ID == "" {
		tc.ID = ids.NewSessionID().String()
	}
	if tc.CreatedAt == 0 {
		tc.CreatedAt = s.now().Unix()
	}
	if err := s.store.InsertToolCall(ctx, tc); err != nil {
		return "", err
	}
	return tc.ID, nil
}

// ListToolCalls returns a session's tool calls, oldest first.
func (s *Service) ListToolCalls(ctx context.Context, sessionID string, limit int) ([]*db.ToolCall, error) {
	return s.store.ListToolCalls(ctx, sessionID, limit)
}

// StoreDelegation appends a parent→child hand-off to the ledger.
func (s *Service) StoreDelegation(ctx context.Context, del *db.Delegation) (string, error) {
	if del.ParentSessionID == "" || del.ChildSessionID == "" {
		return "", xerr.New(xerr.InvalidArgument, "delegation requires parent and child session ids")
	}
	if del.ID == "" {
		del.ID = ids.NewSessionID().String()
	}
	if del.CreatedAt == 0 {
		del.CreatedAt = s.now().Unix()
	}
	if err := s.store.InsertDelegation(ctx, del); err != nil {
		return "", err
	}
	return del.ID, nil
}

// CompleteDelegation records the child's result on a delegation.
func (s *Service) CompleteDelegation(ctx context.Context, id, result string, success bool) error {
	del, err := s.store.GetDelegation(ctx, id)
	if err != nil {
		return err
	}
	if del == nil {
		return xerr.New(xerr.NotFound, "delegation %s", id)
	}
	completedAt := s.now().Unix()
	return s.store.CompleteDelegation(ctx, id, result, success, completedAt, (completedAt-del.CreatedAt)*1000)
}

// ListDelegations returns the delegations issued by a parent session.
func (s *Service) ListDelegations(ctx context.Context, parentSessionID string) ([]*db.Delegation, error) {
	return s.store.ListDelegations(ctx, parentSessionID)
}

// StoreCheckpoint persists a restorable snapshot for a session and
// announces it on the bus.
func (s *Service) StoreCheckpoint(ctx context.Context, cp *db.Checkpoint) (string, error) {
	if cp.SessionID == "" {
		return "", xerr.New(xerr.InvalidArgument, "checkpoint requires a session id")
	}
	if _, ok := db.ParseCheckpointType(string(cp.Type)); !ok {
		return "", xerr.New(xerr.InvalidArgument, "unknown checkpoint type %q", cp.Type)
	}
	if cp.ID == "" {
		cp.ID = ids.NewSessionID().String()
	}
	if cp.CreatedAt == 0 {
		cp.CreatedAt = s.now().Unix()
	}
	if err := s.store.InsertCheckpoint(ctx, cp); err != nil {
		return "", err
	}
	if s.bus != nil {
		s.bus.Publish(bus.SnapshotCreated{SessionID: cp.SessionID, CheckpointID: cp.ID})
	}
	return cp.ID, nil
}

// GetCheckpoint returns the full checkpoint payload for replay.
func (s *Service) GetCheckpoint(ctx context.Context, id string) (*db.Checkpoint, error) {
	cp, err := s.store.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, xerr.New(xerr.NotFound, "checkpoint %s", id)
	}
	return cp, nil
}

// RestoreCheckpoint marks a checkpoint as restored and returns its payload.
// Applying the snapshot is the caller's job.
func (s *Service) RestoreCheckpoint(ctx context.Context, id string) (*db.Checkpoint, error) {
	cp, err := s.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	cp.RestoredAt = s.now().Unix()
	if err := s.store.MarkCheckpointRestored(ctx, id, cp.RestoredAt); err != nil {
		return nil, err
	}
	return cp, nil
}

// ListCheckpoints returns a session's checkpoints, newest first.
func (s *Service) ListCheckpoints(ctx context.Context, sessionID string, includeExpired bool) ([]*db.Checkpoint, error) {
	return s.store.ListCheckpoints(ctx, sessionID, includeExpired)
}
