// Package tools defines the tool interface, the structured result shape
// returned at the tool boundary, and the registry that executes tools with
// rate limiting and span emission.
package tools

import "context"

// Tool is the interface every exposed tool implements. Parameters returns
// a JSON-schema style description of the accepted arguments.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) *Result
}
