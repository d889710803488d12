package mcpserver

import (
	"context"

	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/session"
	"github.com/mcbridge/mcbridge/internal/tools"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// AgentTool records the artefacts a running agent produces: tool calls,
// delegations to child sessions, and restorable checkpoints.
type AgentTool struct {
	svc *session.Service
}

func NewAgentTool(svc *session.Service) *AgentTool { return &AgentTool{svc: svc} }

func (t *AgentTool) Name() string { return "agent" }

func (t *AgentTool) Description() string {
	return "Agent activity ledger. Actions: tool_call (log an invocation), delegate, " +
		"complete_delegation, delegations, checkpoint (store a snapshot), get_checkpoint, " +
		"restore_checkpoint, checkpoints."
}

func (t *AgentTool) Parameters() map[string]any {
	return objectSchema([]string{"action", "session_id"}, map[string]any{
		"action":           prop("string", "One of: tool_call, delegate, complete_delegation, delegations, checkpoint, get_checkpoint, restore_checkpoint, checkpoints"),
		"session_id":       prop("string", "Owning session id"),
		"tool_name":        prop("string", "Invoked tool name (tool_call)"),
		"params_summary":   prop("string", "Short parameter summary (tool_call)"),
		"success":          prop("boolean", "Whether the call or delegation succeeded"),
		"error_message":    prop("string", "Error message on failure (tool_call)"),
		"duration_ms":      prop("integer", "Call duration in milliseconds (tool_call)"),
		"child_session_id": prop("string", "Delegated child session (delegate)"),
		"prompt":           prop("string", "Delegation prompt (delegate)"),
		"delegation_id":    prop("string", "Delegation id (complete_delegation)"),
		"result":           prop("string", "Delegation result summary (complete_delegation)"),
		"checkpoint_type":  prop("string", "git, file or config (checkpoint)"),
		"description":      prop("string", "Human description of the snapshot (checkpoint)"),
		"snapshot_data":    prop("string", "Opaque JSON snapshot payload (checkpoint)"),
		"checkpoint_id":    prop("string", "Checkpoint id (get_checkpoint, restore_checkpoint)"),
		"include_expired":  prop("boolean", "Include expired checkpoints (checkpoints)"),
	})
}

func (t *AgentTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	sessionID := argString(args, "session_id")

	switch action := argString(args, "action"); action {
	case "tool_call":
		id, err := t.svc.StoreToolCall(ctx, &db.ToolCall{
			SessionID:     sessionID,
			ToolName:      argString(args, "tool_name"),
			ParamsSummary: argString(args, "params_summary"),
			Success:       argBool(args, "success"),
			ErrorMessage:  argString(args, "error_message"),
			DurationMs:    argInt64(args, "duration_ms", 0),
		})
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]string{"tool_call_id": id})

	case "delegate":
		id, err := t.svc.StoreDelegation(ctx, &db.Delegation{
			ParentSessionID: sessionID,
			ChildSessionID:  argString(args, "child_session_id"),
			Prompt:          argString(args, "prompt"),
		})
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]string{"delegation_id": id})

	case "complete_delegation":
		err := t.svc.CompleteDelegation(ctx, argString(args, "delegation_id"), argString(args, "result"), argBool(args, "success"))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.NewResult("delegation completed")

	case "delegations":
		dels, err := t.svc.ListDelegations(ctx, sessionID)
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"delegations": dels, "count": len(dels)})

	case "checkpoint":
		cpType, ok := db.ParseCheckpointType(argString(args, "checkpoint_type"))
		if !ok {
			return tools.ErrorResultf(xerr.InvalidArgument, "unknown checkpoint type %q", argString(args, "checkpoint_type"))
		}
		id, err := t.svc.StoreCheckpoint(ctx, &db.Checkpoint{
			SessionID:    sessionID,
			Type:         cpType,
			Description:  argString(args, "description"),
			SnapshotData: argString(args, "snapshot_data"),
		})
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]string{"checkpoint_id": id})

	case "get_checkpoint":
		cp, err := t.svc.GetCheckpoint(ctx, argString(args, "checkpoint_id"))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(cp)

	case "restore_checkpoint":
		cp, err := t.svc.RestoreCheckpoint(ctx, argString(args, "checkpoint_id"))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(cp)

	case "checkpoints":
		cps, err := t.svc.ListCheckpoints(ctx, sessionID, argBool(args, "include_expired"))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"checkpoints": cps, "count": len(cps)})

	default:
		return tools.ErrorResultf(xerr.InvalidArgument, "unknown agent action %q", action)
	}
}
