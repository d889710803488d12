package mcpserver

import (
	"context"

	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/memsvc"
	"github.com/mcbridge/mcbridge/internal/search"
	"github.com/mcbridge/mcbridge/internal/tools"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// SearchTool runs hybrid search over either an indexed code collection or
// the observation memory, selected by the resource argument.
type SearchTool struct {
	svc *search.Service
	mem *memsvc.Service
}

func NewSearchTool(svc *search.Service, mem *memsvc.Service) *SearchTool {
	return &SearchTool{svc: svc, mem: mem}
}

func (t *SearchTool) Name() string { return "search" }

func (t *SearchTool) Description() string {
	return "Hybrid semantic search. resource=code searches an indexed collection and returns " +
		"ranked chunks with file path, line range, language, and similarity score; " +
		"resource=memory searches stored observations. Optional filters narrow by minimum " +
		"score, file extension, language, tags, or session."
}

func (t *SearchTool) Parameters() map[string]any {
	return objectSchema([]string{"query"}, map[string]any{
		"resource":        prop("string", "code (default) or memory"),
		"collection":      prop("string", "Collection to search (code)"),
		"query":           prop("string", "Natural-language or code query"),
		"limit":           prop("integer", "Max results (default 10)"),
		"min_score":       prop("number", "Drop results scoring below this (code)"),
		"file_extensions": arrayProp("Keep only these file extensions (code)"),
		"languages":       arrayProp("Keep only these languages (code)"),
		"project":         prop("string", "Project scope (memory)"),
		"tags":            arrayProp("Tag filter (memory)"),
		"session_id":      prop("string", "Session filter (memory)"),
	})
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	switch resource := argString(args, "resource"); resource {
	case "", "code":
		return t.searchCode(ctx, args)
	case "memory":
		return t.searchMemory(ctx, args)
	default:
		return tools.ErrorResultf(xerr.InvalidArgument, "unknown search resource %q, known: [code memory]", resource)
	}
}

func (t *SearchTool) searchCode(ctx context.Context, args map[string]any) *tools.Result {
	var filters *search.Filters
	if min, ok := argFloat(args, "min_score"); ok {
		filters = &search.Filters{MinScore: &min}
	}
	if exts := argStrings(args, "file_extensions"); len(exts) > 0 {
		if filters == nil {
			filters = &search.Filters{}
		}
		filters.FileExtensions = exts
	}
	if langs := argStrings(args, "languages"); len(langs) > 0 {
		if filters == nil {
			filters = &search.Filters{}
		}
		filters.Languages = langs
	}

	results, err := t.svc.SearchWithFilters(ctx,
		argString(args, "collection"), argString(args, "query"),
		argInt(args, "limit", 10), filters)
	if err != nil {
		return tools.ErrorResult(err)
	}
	return tools.JSONResult(map[string]any{"results": results, "count": len(results)})
}

func (t *SearchTool) searchMemory(ctx context.Context, args map[string]any) *tools.Result {
	filter := &db.MemoryFilter{
		ProjectID: argString(args, "project"),
		Tags:      argStrings(args, "tags"),
		SessionID: argString(args, "session_id"),
	}
	hits, err := t.mem.Search(ctx, argString(args, "query"), filter, argInt(args, "limit", 10))
	if err != nil {
		return tools.ErrorResult(err)
	}
	return tools.JSONResult(map[string]any{"hits": hits, "count": len(hits)})
}
