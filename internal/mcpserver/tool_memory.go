package mcpserver

import (
	"context"

	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/memsvc"
	"github.com/mcbridge/mcbridge/internal/tools"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// MemoryTool is the observation memory surface: store, search, timeline,
// delete, plus the typed overlays for quality gates, executions, and error
// patterns.
type MemoryTool struct {
	svc *memsvc.Service
}

func NewMemoryTool(svc *memsvc.Service) *MemoryTool { return &MemoryTool{svc: svc} }

func (t *MemoryTool) Name() string { return "memory" }

func (t *MemoryTool) Description() string {
	return "Persistent observation memory. Actions: store (write a deduplicated observation), " +
		"get (fetch one observation in full), list (newest first by filter), search (hybrid " +
		"semantic+lexical recall with filters), timeline (window around an observation), " +
		"delete, quality_gate, execution, error_pattern (store a recurring error signature), " +
		"recall_errors (find known error patterns), summary (store or fetch a session summary)."
}

func (t *MemoryTool) Parameters() map[string]any {
	return objectSchema([]string{"action", "project"}, map[string]any{
		"action":     prop("string", "One of: store, get, list, search, timeline, delete, quality_gate, execution, error_pattern, recall_errors, summary"),
		"project":    prop("string", "Project id scoping the memory"),
		"content":    prop("string", "Observation content (store)"),
		"type":       prop("string", "Observation type: code, context, decision, execution, quality_gate, error, summary"),
		"tags":       arrayProp("Tags attached to the observation"),
		"query":      prop("string", "Search query; empty lists by recency (search, recall_errors)"),
		"limit":      prop("integer", "Max results (default 10)"),
		"id":         prop("string", "Observation id (timeline anchor, delete)"),
		"before":     prop("integer", "Entries before the anchor (timeline)"),
		"after":      prop("integer", "Entries after the anchor (timeline)"),
		"session_id": prop("string", "Session id for metadata or filtering"),
		"repo_id":    prop("string", "Repository id for metadata or filtering"),
		"branch":     prop("string", "Branch captured at write time"),
		"commit":     prop("string", "Commit captured at write time"),
		"file_path":  prop("string", "File the observation refers to"),
		"gate":       prop("string", "Quality gate name (quality_gate)"),
		"status":     prop("string", "Gate status: passed, failed, skipped (quality_gate)"),
		"details":    prop("string", "Gate details (quality_gate)"),
		"command":    prop("string", "Executed command (execution)"),
		"exit_code":  prop("integer", "Command exit code (execution)"),
		"stderr":     prop("string", "Command stderr (execution)"),
		"signature":  prop("string", "Error signature (error_pattern)"),
		"category":   prop("string", "Error category (error_pattern)"),
		"solutions":  arrayProp("Known solutions (error_pattern)"),
		"topics":     arrayProp("Summary topics (summary)"),
		"decisions":  arrayProp("Summary decisions (summary)"),
		"next_steps": arrayProp("Summary next steps (summary)"),
		"key_files":  arrayProp("Summary key files (summary)"),
	})
}

func (t *MemoryTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	project := argString(args, "project")
	meta := db.ObservationMetadata{
		SessionID: argString(args, "session_id"),
		RepoID:    argString(args, "repo_id"),
		Branch:    argString(args, "branch"),
		Commit:    argString(args, "commit"),
		FilePath:  argString(args, "file_path"),
	}

	switch action := argString(args, "action"); action {
	case "store":
		id, dedup, err := t.svc.StoreObservation(ctx, project,
			argString(args, "content"),
			db.ObservationType(argString(args, "type")),
			argStrings(args, "tags"), meta)
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"id": id, "deduplicated": dedup})

	case "get":
		obs, err := t.svc.Get(ctx, argString(args, "id"))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(obs)

	case "list":
		obs, err := t.svc.List(ctx, t.filter(args), argInt(args, "limit", 10))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"observations": obs, "count": len(obs)})

	case "search":
		hits, err := t.svc.Search(ctx, argString(args, "query"), t.filter(args), argInt(args, "limit", 10))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"hits": hits, "count": len(hits)})

	case "timeline":
		hits, err := t.svc.Timeline(ctx, argString(args, "id"),
			argInt(args, "before", 2), argInt(args, "after", 2), t.filter(args))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"entries": hits})

	case "delete":
		if err := t.svc.Delete(ctx, argString(args, "id")); err != nil {
			return tools.ErrorResult(err)
		}
		return tools.NewResult("observation deleted")

	case "quality_gate":
		id, dedup, err := t.svc.StoreQualityGate(ctx, project, db.QualityGateResult{
			Gate:    argString(args, "gate"),
			Status:  argString(args, "status"),
			Details: argString(args, "details"),
		}, meta)
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"id": id, "deduplicated": dedup})

	case "execution":
		id, dedup, err := t.svc.StoreExecution(ctx, project, db.ExecutionMetadata{
			Command:  argString(args, "command"),
			ExitCode: argInt(args, "exit_code", 0),
			Stderr:   argString(args, "stderr"),
		}, meta)
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"id": id, "deduplicated": dedup})

	case "error_pattern":
		id, dedup, err := t.svc.StoreErrorPattern(ctx, db.ErrorPattern{
			ProjectID: project,
			Signature: argString(args, "signature"),
			Category:  argString(args, "category"),
			Solutions: argStrings(args, "solutions"),
			Tags:      argStrings(args, "tags"),
		})
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"id": id, "deduplicated": dedup})

	case "recall_errors":
		patterns, err := t.svc.RecallErrorPatterns(ctx, project, argString(args, "query"), argInt(args, "limit", 5))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"patterns": patterns})

	case "summary":
		// Without summary content this is a fetch, otherwise a store.
		if len(argStrings(args, "topics")) == 0 && len(argStrings(args, "decisions")) == 0 &&
			len(argStrings(args, "next_steps")) == 0 && len(argStrings(args, "key_files")) == 0 {
			summary, err := t.svc.GetSessionSummary(ctx, argString(args, "session_id"))
			if err != nil {
				return tools.ErrorResult(err)
			}
			return tools.JSONResult(summary)
		}
		id, err := t.svc.StoreSessionSummary(ctx, &db.SessionSummary{
			ProjectID: project,
			SessionID: argString(args, "session_id"),
			Topics:    argStrings(args, "topics"),
			Decisions: argStrings(args, "decisions"),
			NextSteps: argStrings(args, "next_steps"),
			KeyFiles:  argStrings(args, "key_files"),
		})
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]string{"id": id})

	default:
		return tools.ErrorResultf(xerr.InvalidArgument, "unknown memory action %q", action)
	}
}

func (t *MemoryTool) filter(args map[string]any) *db.MemoryFilter {
	return &db.MemoryFilter{
		ProjectID: argString(args, "project"),
		Type:      db.ObservationType(argString(args, "type")),
		Tags:      argStrings(args, "tags"),
		SessionID: argString(args, "session_id"),
		RepoID:    argString(args, "repo_id"),
		Branch:    argString(args, "branch"),
		Commit:    argString(args, "commit"),
	}
}
