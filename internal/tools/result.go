package tools

import (
	"encoding/json"

	"github.com/mcbridge/mcbridge/internal/xerr"
)

// Result is the unified return type from tool execution. Content is the
// human-readable first content item; Data carries an optional structured
// payload serialised alongside it.
type Result struct {
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
	IsError bool   `json:"is_error"`
	Err     error  `json:"-"` // internal error, never serialised
}

// NewResult returns a successful result with a text content item.
func NewResult(content string) *Result {
	return &Result{Content: content}
}

// JSONResult returns a successful result whose content is the payload
// rendered as JSON.
func JSONResult(data any) *Result {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return ErrorResult(xerr.Wrap(xerr.Internal, err, "encode tool result"))
	}
	return &Result{Content: string(b), Data: data}
}

// ErrorResult converts an error into a structured failure result. Only the
// kind and message cross the boundary; source chains and provider types
// stay internal.
func ErrorResult(err error) *Result {
	return &Result{
		Content: string(xerr.KindOf(err)) + ": " + xerr.Message(err),
		IsError: true,
		Err:     err,
	}
}

// ErrorResultf builds a failure result from a fresh error.
func ErrorResultf(kind xerr.Kind, format string, args ...any) *Result {
	return ErrorResult(xerr.New(kind, format, args...))
}
