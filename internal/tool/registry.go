package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentcore/runtime/internal/validate"
	"github.com/agentcore/runtime/pkg/models"
)

// MaxToolNameLength and MaxParamsSize bound a call before it ever reaches a
// registered tool, the same resource-exhaustion guard a registry lookup
// applies ahead of validation.
const (
	MaxToolNameLength = 256
	MaxParamsSize     = 10 << 20
)

// registered is one entry in the Registry: the Tool itself plus the
// flattened parameter schema validate.Arguments checks every call against.
type registered struct {
	tool   Tool
	params validate.ParamSchema
}

// Registry is the thread-safe set of tools available to the agent loop for
// a given run.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// Register adds t, rejecting it if its schema is not structurally valid
// JSON Schema (validate.SchemaWellFormed). A tool with the same name is
// replaced.
func (r *Registry) Register(t Tool) error {
	schema := t.Schema()
	if err := validate.SchemaWellFormed(schema); err != nil {
		return fmt.Errorf("tool %q: %w", t.Name(), err)
	}
	params, err := validate.ParseParamSchema(schema)
	if err != nil {
		return fmt.Errorf("tool %q: %w", t.Name(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = registered{tool: t, params: params}
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg.tool, ok
}

// ValidateArguments runs validate.Arguments against the named tool's
// parameter schema, returning the exact per-field error strings the model
// sees when it needs to self-correct a call.
func (r *Registry) ValidateArguments(name string, args map[string]any) ([]string, bool) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return validate.Arguments(reg.params, args), true
}

// Specs returns the tool specs the provider layer sends to the model,
// sorted by nothing in particular — callers that need stable order should
// sort the result themselves.
func (r *Registry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, reg := range r.tools {
		specs = append(specs, ToolSpec{
			Name:        reg.tool.Name(),
			Description: reg.tool.Description(),
			Parameters:  reg.tool.Schema(),
		})
	}
	return specs
}

// ToolSpec mirrors internal/provider.ToolSpec; the tool package does not
// import internal/provider (that would invert the dependency direction),
// so callers convert between the two with the same three fields.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Execute runs the named tool against params, enforcing the same name and
// payload size limits every call passes through before the tool body runs.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (Result, error) {
	if len(name) > MaxToolNameLength {
		return Result{}, NewError(name, fmt.Errorf("tool name exceeds maximum length of %d characters", MaxToolNameLength))
	}
	if len(params) > MaxParamsSize {
		return Result{}, NewError(name, fmt.Errorf("tool parameters exceed maximum size of %d bytes", MaxParamsSize))
	}
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, NewError(name, ErrToolNotFound).WithKind(KindNotFound)
	}
	return reg.tool.Execute(ctx, params)
}

// ToToolResult converts an executed tool outcome into the models.Message
// representation a session entry stores. The message ID is derived from the
// tool call ID it answers, since a ToolResult message is always produced
// exactly once per call.
func ToToolResult(call models.ToolCall, res Result, execErr error) models.Message {
	id := call.ID + ":result"
	if execErr != nil {
		return models.NewToolResult(id, call.ID, call.Name, execErr.Error(), true)
	}
	return models.NewToolResult(id, call.ID, call.Name, res.Content, res.IsError)
}
