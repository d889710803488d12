package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mcbridge/mcbridge/internal/tools"
)

// New builds the MCP server and registers every tool from the registry.
// Tools are bridged generically so the registry's rate limiting and span
// recording apply to MCP calls the same way they apply to direct calls.
func New(version string, registry *tools.Registry) (*server.MCPServer, error) {
	s := server.NewMCPServer(
		"mcbridge",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	for _, name := range registry.List() {
		t, ok := registry.Get(name)
		if !ok {
			continue
		}
		schema, err := json.Marshal(t.Parameters())
		if err != nil {
			return nil, fmt.Errorf("marshaling schema for tool %s: %w", name, err)
		}
		mcpTool := mcp.NewToolWithRawSchema(name, t.Description(), schema)
		s.AddTool(mcpTool, bridgeHandler(registry, name))
	}

	return s, nil
}

// Serve runs the server on stdio until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// bridgeHandler adapts one registry tool to the MCP handler contract. The
// session_id argument, when present, attributes the call for rate limiting
// and tracing; it is passed through to the tool untouched.
func bridgeHandler(registry *tools.Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		res := registry.Execute(ctx, argString(args, "session_id"), name, args)
		if res.IsError {
			return mcp.NewToolResultError(res.Content), nil
		}
		return mcp.NewToolResultText(res.Content), nil
	}
}

func serverInstructions() string {
	return `mcbridge is a code intelligence backend for coding agents. It keeps a
searchable semantic index of one or more codebases, a persistent observation
memory, and a ledger of agent sessions.

Tools:
- index: start incremental indexing of a collection, poll operation status,
  or clear a collection. Indexing is hash-gated; unchanged files are skipped.
- search: hybrid semantic + keyword search over an indexed collection.
  Results carry file path, line range, a snippet, and a relevance score.
- memory: store and retrieve observations per project. Supports hybrid
  search, timelines around an anchor observation, quality gate results,
  execution records, error patterns, and session summaries.
- session: create, update, and end agent sessions. Associate sessions with
  projects and worktrees, and track token and tool call counters.
- agent: record tool calls, delegations to child sessions, and restorable
  checkpoints within a session.
- vcs: open repositories and query branches, files, history, diffs, and
  change impact without switching branches on disk.

Pass your session_id on every call so activity is attributed correctly.
Store observations as you work (decisions, fixes, discoveries) and search
memory at session start to recover context from prior runs.`
}
