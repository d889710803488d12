package db

import (
	"context"
	"database/sql"

	"github.com/mcbridge/mcbridge/internal/xerr"
)

// InsertSession records the start of an agent session.
func (d *DB) InsertSession(ctx context.Context, s *AgentSession) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO agent_sessions
		 (id, session_summary_id, agent_type, model, parent_session_id, started_at, ended_at,
		  duration_ms, status, prompt_summary, result_summary, token_count,
		  tool_calls_count, delegations_count, project_id, worktree_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, nullStr(s.SessionSummaryID), s.AgentType, nullStr(s.Model),
		nullStr(s.ParentSessionID), s.StartedAt, nullInt(s.EndedAt),
		nullInt(s.DurationMs), string(s.Status), nullStr(s.PromptSummary),
		nullStr(s.ResultSummary), s.TokenCount, s.ToolCallsCount,
		s.DelegationsCount, nullStr(s.ProjectID), nullStr(s.WorktreeID),
	)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "insert session")
	}
	return nil
}

// UpdateSession rewrites the mutable fields of a session row.
func (d *DB) UpdateSession(ctx context.Context, s *AgentSession) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE agent_sessions SET
		   session_summary_id = ?, ended_at = ?, duration_ms = ?, status = ?,
		   prompt_summary = ?, result_summary = ?, token_count = ?,
		   tool_calls_count = ?, delegations_count = ?, project_id = ?, worktree_id = ?
		 WHERE id = ?`,
		nullStr(s.SessionSummaryID), nullInt(s.EndedAt), nullInt(s.DurationMs),
		string(s.Status), nullStr(s.PromptSummary), nullStr(s.ResultSummary),
		s.TokenCount, s.ToolCallsCount, s.DelegationsCount,
		nullStr(s.ProjectID), nullStr(s.WorktreeID), s.ID,
	)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "update session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return xerr.New(xerr.NotFound, "session %s", s.ID)
	}
	return nil
}

const sessionColumns = `id, session_summary_id, agent_type, model, parent_session_id, started_at,
	ended_at, duration_ms, status, prompt_summary, result_summary, token_count,
	tool_calls_count, delegations_count, project_id, worktree_id`

// GetSession returns the session by id, or nil when absent.
func (d *DB) GetSession(ctx context.Context, id string) (*AgentSession, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM agent_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions returns sessions newest-first, optionally scoped to a
// project and status.
func (d *DB) ListSessions(ctx context.Context, projectID string, status SessionStatus, limit int) ([]*AgentSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM agent_sessions WHERE 1=1`
	var args []any
	if projectID != "" {
		q += ` AND project_id = ?`
		args = append(args, projectID)
	}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "list sessions")
	}
	defer rows.Close()

	var out []*AgentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertToolCall records one tool invocation. Session counters are the
// caller's responsibility; the ledger is append-only.
func (d *DB) InsertToolCall(ctx context.Context, tc *ToolCall) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO tool_calls (id, session_id, tool_name, params_summary, success, error_message, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tc.ID, tc.SessionID, tc.ToolName, nullStr(tc.ParamsSummary),
		boolInt(tc.Success), nullStr(tc.ErrorMessage), nullInt(tc.DurationMs), tc.CreatedAt,
	)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "insert tool call")
	}
	return nil
}

// ListToolCalls returns a session's tool calls in call order.
func (d *DB) ListToolCalls(ctx context.Context, sessionID string, limit int) ([]*ToolCall, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, session_id, tool_name, params_summary, success, error_message, duration_ms, created_at
		 FROM tool_calls WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "list tool calls")
	}
	defer rows.Close()

	var out []*ToolCall
	for rows.Next() {
		var tc ToolCall
		var params, errMsg sql.NullString
		var success int
		var duration sql.NullInt64
		if err := rows.Scan(&tc.ID, &tc.SessionID, &tc.ToolName, &params, &success, &errMsg, &duration, &tc.CreatedAt); err != nil {
			return nil, xerr.Wrap(xerr.Database, err, "scan tool call")
		}
		tc.ParamsSummary = params.String
		tc.Success = success != 0
		tc.ErrorMessage = errMsg.String
		tc.DurationMs = duration.Int64
		out = append(out, &tc)
	}
	return out, rows.Err()
}

// InsertDelegation records a parent→child hand-off. As with tool calls,
// the parent's counters are maintained by the caller through UpdateSession.
func (d *DB) InsertDelegation(ctx context.Context, del *Delegation) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO delegations
		 (id, parent_session_id, child_session_id, prompt, prompt_embedding_id, result, success, created_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		del.ID, del.ParentSessionID, del.ChildSessionID, del.Prompt,
		nullStr(del.PromptEmbeddingID), nullStr(del.Result), boolInt(del.Success),
		del.CreatedAt, nullInt(del.CompletedAt), nullInt(del.DurationMs),
	)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "insert delegation")
	}
	return nil
}

// CompleteDelegation records the result of a delegation.
func (d *DB) CompleteDelegation(ctx context.Context, id, result string, success bool, completedAt, durationMs int64) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE delegations SET result = ?, success = ?, completed_at = ?, duration_ms = ? WHERE id = ?`,
		result, boolInt(success), completedAt, durationMs, id,
	)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "complete delegation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return xerr.New(xerr.NotFound, "delegation %s", id)
	}
	return nil
}

// GetDelegation returns a delegation by id, or nil when absent.
func (d *DB) GetDelegation(ctx context.Context, id string) (*Delegation, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, parent_session_id, child_session_id, prompt, prompt_embedding_id, result, success, created_at, completed_at, duration_ms
		 FROM delegations WHERE id = ?`, id)

	var del Delegation
	var embID, result sql.NullString
	var success int
	var completedAt, durationMs sql.NullInt64
	err := row.Scan(&del.ID, &del.ParentSessionID, &del.ChildSessionID,
		&del.Prompt, &embID, &result, &success, &del.CreatedAt, &completedAt, &durationMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "get delegation")
	}
	del.PromptEmbeddingID = embID.String
	del.Result = result.String
	del.Success = success != 0
	del.CompletedAt = completedAt.Int64
	del.DurationMs = durationMs.Int64
	return &del, nil
}

// ListDelegations returns a parent session's delegations in creation order.
func (d *DB) ListDelegations(ctx context.Context, parentSessionID string) ([]*Delegation, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, parent_session_id, child_session_id, prompt, prompt_embedding_id, result, success, created_at, completed_at, duration_ms
		 FROM delegations WHERE parent_session_id = ? ORDER BY created_at ASC, id ASC`,
		parentSessionID,
	)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "list delegations")
	}
	defer rows.Close()

	var out []*Delegation
	for rows.Next() {
		var del Delegation
		var embID, result sql.NullString
		var success int
		var completedAt, durationMs sql.NullInt64
		if err := rows.Scan(&del.ID, &del.ParentSessionID, &del.ChildSessionID,
			&del.Prompt, &embID, &result, &success, &del.CreatedAt, &completedAt, &durationMs); err != nil {
			return nil, xerr.Wrap(xerr.Database, err, "scan delegation")
		}
		del.PromptEmbeddingID = embID.String
		del.Result = result.String
		del.Success = success != 0
		del.CompletedAt = completedAt.Int64
		del.DurationMs = durationMs.Int64
		out = append(out, &del)
	}
	return out, rows.Err()
}

// InsertCheckpoint stores a snapshot attached to a session.
func (d *DB) InsertCheckpoint(ctx context.Context, cp *Checkpoint) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO checkpoints (id, session_id, checkpoint_type, description, snapshot_data, created_at, restored_at, expired)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.SessionID, string(cp.Type), cp.Description, cp.SnapshotData,
		cp.CreatedAt, nullInt(cp.RestoredAt), boolInt(cp.Expired),
	)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "insert checkpoint")
	}
	return nil
}

// GetCheckpoint returns the checkpoint by id, or nil when absent.
func (d *DB) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, session_id, checkpoint_type, description, snapshot_data, created_at, restored_at, expired
		 FROM checkpoints WHERE id = ?`, id)
	return scanCheckpoint(row)
}

// ListCheckpoints returns a session's checkpoints newest-first. Expired
// checkpoints are excluded unless includeExpired is set.
func (d *DB) ListCheckpoints(ctx context.Context, sessionID string, includeExpired bool) ([]*Checkpoint, error) {
	q := `SELECT id, session_id, checkpoint_type, description, snapshot_data, created_at, restored_at, expired
	      FROM checkpoints WHERE session_id = ?`
	if !includeExpired {
		q += ` AND expired = 0`
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := d.conn.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "list checkpoints")
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// MarkCheckpointRestored sets restored_at on a checkpoint.
func (d *DB) MarkCheckpointRestored(ctx context.Context, id string, restoredAt int64) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE checkpoints SET restored_at = ? WHERE id = ?`, restoredAt, id)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "mark checkpoint restored")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return xerr.New(xerr.NotFound, "checkpoint %s", id)
	}
	return nil
}

// MarkCheckpointExpired flags a checkpoint as expired. Retention tooling
// calls this; nothing in the server sets it on its own.
func (d *DB) MarkCheckpointExpired(ctx context.Context, id string) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE checkpoints SET expired = 1 WHERE id = ?`, id)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "mark checkpoint expired")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return xerr.New(xerr.NotFound, "checkpoint %s", id)
	}
	return nil
}

func scanSession(row rowScanner) (*AgentSession, error) {
	var s AgentSession
	var summaryID, model, parentID, prompt, result, projectID, worktreeID sql.NullString
	var endedAt, durationMs, tokenCount, toolCalls, delegations sql.NullInt64
	var status string
	err := row.Scan(&s.ID, &summaryID, &s.AgentType, &model, &parentID,
		&s.StartedAt, &endedAt, &durationMs, &status, &prompt, &result,
		&tokenCount, &toolCalls, &delegations, &projectID, &worktreeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "scan session")
	}
	s.SessionSummaryID = summaryID.String
	s.Model = model.String
	s.ParentSessionID = parentID.String
	s.EndedAt = endedAt.Int64
	s.DurationMs = durationMs.Int64
	s.Status = SessionStatus(status)
	s.PromptSummary = prompt.String
	s.ResultSummary = result.String
	s.TokenCount = tokenCount.Int64
	s.ToolCallsCount = toolCalls.Int64
	s.DelegationsCount = delegations.Int64
	s.ProjectID = projectID.String
	s.WorktreeID = worktreeID.String
	return &s, nil
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var cp Checkpoint
	var typ string
	var restoredAt sql.NullInt64
	var expired int
	err := row.Scan(&cp.ID, &cp.SessionID, &typ, &cp.Description,
		&cp.SnapshotData, &cp.CreatedAt, &restoredAt, &expired)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "scan checkpoint")
	}
	cp.Type = CheckpointType(typ)
	cp.RestoredAt = restoredAt.Int64
	cp.Expired = expired != 0
	return &cp, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
