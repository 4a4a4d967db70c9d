// Package tool defines the runtime's tool contract: the Tool interface a
// capability registers under, the Registry it is looked up from, and the
// Executor that runs validated calls against it. Tool calls execute
// sequentially, in the order the model emitted them — an agent reasoning
// about a file it just wrote cannot be scheduled concurrently with the
// write itself, so no parallel fan-out exists here the way some tool
// executors offer for independent calls.
package tool

import (
	"context"
	"encoding/json"
)

// Result is a tool's output: text content plus whether it represents an
// error condition. It becomes a models.Message of kind MessageToolResult
// once attached to the tool call ID that produced it.
type Result struct {
	Content string
	IsError bool
}

// Tool is a single callable capability exposed to the model.
type Tool interface {
	// Name is the function name the model calls by. Must match the name
	// the tool is registered under.
	Name() string
	// Description is shown to the model to help it decide when to call
	// this tool.
	Description() string
	// Schema is the tool's parameters as a JSON Schema document. It is
	// checked for structural validity once, at registration
	// (validate.SchemaWellFormed), and its flattened top-level shape
	// (validate.ParamSchema) is checked against every call's arguments.
	Schema() json.RawMessage
	// Execute runs the tool against already-validated arguments.
	Execute(ctx context.Context, args json.RawMessage) (Result, error)
}
