package tools

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mcbridge/mcbridge/internal/xerr"
)

// SpanSink receives one record per executed tool call. The tracing
// collector implements it; nil disables span emission.
type SpanSink interface {
	RecordToolCall(sessionID, toolName, paramsSummary string, success bool, errMsg string, duration time.Duration)
}

// Registry manages tool registration and execution.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	limiter *RateLimiter // nil = no rate limiting
	sink    SpanSink     // nil = no span emission
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// SetRateLimiter enables per-session tool rate limiting.
func (r *Registry) SetRateLimiter(rl *RateLimiter) {
	r.limiter = rl
}

// SetSpanSink attaches a span sink invoked after every execution.
func (r *Registry) SetSpanSink(sink SpanSink) {
	r.sink = sink
}

// Register adds a tool to the registry, replacing any previous tool with
// the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name. Errors come back as structured results with
// is_error set; the registry never panics or leaks internal error chains.
// sessionID scopes rate limiting and span attribution; it may be empty.
func (r *Registry) Execute(ctx context.Context, sessionID, name string, args map[string]any) *Result {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return ErrorResultf(xerr.NotFound, "unknown tool %q", name)
	}

	if r.limiter != nil && sessionID != "" {
		if err := r.limiter.Allow(sessionID); err != nil {
			return ErrorResult(err)
		}
	}

	start := time.Now()
	result := tool.Execute(ctx, args)
	duration := time.Since(start)

	if result == nil {
		result = ErrorResultf(xerr.Internal, "tool %q returned no result", name)
	}

	if r.sink != nil {
		errMsg := ""
		if result.IsError {
			errMsg = result.Content
		}
		r.sink.RecordToolCall(sessionID, name, summarizeArgs(args), !result.IsError, errMsg, duration)
	}

	slog.Debug("tool executed",
		"tool", name,
		"session", sessionID,
		"duration_ms", duration.Milliseconds(),
		"is_error", result.IsError,
	)
	return result
}

// summarizeArgs renders argument keys only. Values can hold prompts or file
// contents and stay out of the ledger.
func summarizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k
	}
	return out
}
