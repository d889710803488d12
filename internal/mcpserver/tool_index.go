package mcpserver

import (
	"context"

	"github.com/mcbridge/mcbridge/internal/ids"
	"github.com/mcbridge/mcbridge/internal/index"
	"github.com/mcbridge/mcbridge/internal/tools"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// IndexTool drives the indexing pipeline: start a run, poll its status,
// clear a collection.
type IndexTool struct {
	svc *index.Service
}

func NewIndexTool(svc *index.Service) *IndexTool { return &IndexTool{svc: svc} }

func (t *IndexTool) Name() string { return "index" }

func (t *IndexTool) Description() string {
	return "Index a workspace into a searchable collection. Actions: start (begin a background " +
		"indexing run, returns an operation id), status (poll an operation), clear (drop a " +
		"collection's vectors and reset its file ledger)."
}

func (t *IndexTool) Parameters() map[string]any {
	return objectSchema([]string{"action"}, map[string]any{
		"action":       prop("string", "One of: start, status, clear"),
		"root":         prop("string", "Workspace root directory (start)"),
		"collection":   prop("string", "Collection name (start, clear)"),
		"operation_id": prop("string", "Operation id returned by start (status)"),
	})
}

func (t *IndexTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	switch action := argString(args, "action"); action {
	case "start":
		opID, err := t.svc.Start(ctx, argString(args, "root"), argString(args, "collection"))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]string{"operation_id": opID.String()})

	case "status":
		opID, err := ids.ParseOperationID(argString(args, "operation_id"))
		if err != nil {
			return tools.ErrorResult(xerr.Wrap(xerr.InvalidArgument, err, "parse operation id"))
		}
		op := t.svc.Tracker().Get(opID)
		if op == nil {
			return tools.ErrorResultf(xerr.NotFound, "operation %s", opID)
		}
		return tools.JSONResult(op)

	case "clear":
		collection := argString(args, "collection")
		if collection == "" {
			return tools.ErrorResultf(xerr.InvalidArgument, "collection is required")
		}
		if err := t.svc.Clear(ctx, collection); err != nil {
			return tools.ErrorResult(err)
		}
		return tools.NewResult("collection " + collection + " cleared")

	default:
		return tools.ErrorResultf(xerr.InvalidArgument, "unknown index action %q", action)
	}
}
