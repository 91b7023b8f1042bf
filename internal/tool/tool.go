// Package tool defines the capabilities a model may invoke during a
// tool-augmented answer and the registry that dispatches them.
package tool

import (
	"context"
	"encoding/json"

	"github.com/meditreat/meditreat/internal/provider"
)

// Tool is one model-invocable capability.
type Tool interface {
	// Name is the identifier the model calls the tool by.
	Name() string

	// Description tells the model when the tool is useful.
	Description() string

	// Schema is the JSON Schema of the tool's arguments.
	Schema() json.RawMessage

	// Execute runs the tool with model-supplied arguments.
	Execute(ctx context.Context, args json.RawMessage) (Output, error)
}

// Output is the result of one tool execution.
type Output struct {
	// Content is fed back to the model verbatim.
	Content string

	// IsError marks Content as an error report rather than a result.
	IsError bool

	// Sources lists documents the tool consulted.
	Sources []provider.Source
}
