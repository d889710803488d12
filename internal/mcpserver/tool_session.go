package mcpserver

import (
	"context"

	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/session"
	"github.com/mcbridge/mcbridge/internal/tools"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// SessionTool manages agent session lifecycle.
type SessionTool struct {
	svc *session.Service
}

func NewSessionTool(svc *session.Service) *SessionTool { return &SessionTool{svc: svc} }

func (t *SessionTool) Name() string { return "session" }

func (t *SessionTool) Description() string {
	return "Agent session lifecycle. Actions: create (start a session), end (mark it completed " +
		"or failed), update (partial update including counters), get, list."
}

func (t *SessionTool) Parameters() map[string]any {
	return objectSchema([]string{"action"}, map[string]any{
		"action":            prop("string", "One of: create, end, update, get, list"),
		"session_id":        prop("string", "Session id (end, update, get)"),
		"agent_type":        prop("string", "Agent kind, e.g. coder, reviewer (create)"),
		"model":             prop("string", "Model identifier (create)"),
		"parent_session_id": prop("string", "Parent session for delegated runs (create)"),
		"project_id":        prop("string", "Project association (create, update, list)"),
		"worktree_id":       prop("string", "Worktree association (create, update)"),
		"status":            prop("string", "Terminal status: completed or failed (end); filter (list)"),
		"prompt_summary":    prop("string", "Prompt summary (create, update)"),
		"result_summary":    prop("string", "Result summary (end, update)"),
		"data": map[string]any{
			"type":        "object",
			"description": "Embedded payload; project_id/worktree_id inside it must agree with the top-level arguments (update)",
		},
		"token_count":       prop("integer", "Token counter (update)"),
		"tool_calls_count":  prop("integer", "Tool call counter (update)"),
		"delegations_count": prop("integer", "Delegation counter (update)"),
		"limit":             prop("integer", "Max sessions returned (list)"),
	})
}

func (t *SessionTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	switch action := argString(args, "action"); action {
	case "create":
		id, err := t.svc.Create(ctx, &db.AgentSession{
			AgentType:       argString(args, "agent_type"),
			Model:           argString(args, "model"),
			ParentSessionID: argString(args, "parent_session_id"),
			ProjectID:       argString(args, "project_id"),
			WorktreeID:      argString(args, "worktree_id"),
			PromptSummary:   argString(args, "prompt_summary"),
		})
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]string{"session_id": id})

	case "end":
		status, ok := db.ParseSessionStatus(argString(args, "status"))
		if !ok {
			return tools.ErrorResultf(xerr.InvalidArgument, "unknown session status %q", argString(args, "status"))
		}
		if err := t.svc.End(ctx, argString(args, "session_id"), status, argString(args, "result_summary")); err != nil {
			return tools.ErrorResult(err)
		}
		return tools.NewResult("session ended")

	case "update":
		req := session.UpdateRequest{
			SessionID:     argString(args, "session_id"),
			ProjectID:     argString(args, "project_id"),
			WorktreeID:    argString(args, "worktree_id"),
			PromptSummary: argString(args, "prompt_summary"),
			ResultSummary: argString(args, "result_summary"),
		}
		if payload, ok := args["data"].(map[string]any); ok {
			req.Data = &session.UpdateData{
				ProjectID:  argString(payload, "project_id"),
				WorktreeID: argString(payload, "worktree_id"),
			}
		}
		if _, ok := args["token_count"]; ok {
			v := argInt64(args, "token_count", 0)
			req.TokenCount = &v
		}
		if _, ok := args["tool_calls_count"]; ok {
			v := argInt64(args, "tool_calls_count", 0)
			req.ToolCallsCount = &v
		}
		if _, ok := args["delegations_count"]; ok {
			v := argInt64(args, "delegations_count", 0)
			req.DelegationsCount = &v
		}
		if err := t.svc.Update(ctx, req); err != nil {
			return tools.ErrorResult(err)
		}
		return tools.NewResult("session updated")

	case "get":
		sess, err := t.svc.Get(ctx, argString(args, "session_id"))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(sess)

	case "list":
		status, _ := db.ParseSessionStatus(argString(args, "status"))
		sessions, err := t.svc.List(ctx, argString(args, "project_id"), status, argInt(args, "limit", 20))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"sessions": sessions, "count": len(sessions)})

	default:
		return tools.ErrorResultf(xerr.InvalidArgument, "unknown session action %q", action)
	}
}
