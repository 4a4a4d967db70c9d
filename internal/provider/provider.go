// Package provider defines the canonical streaming contract every LLM
// backend adapter implements, plus the registry the agent loop resolves a
// provider from at request time.
//
// Every adapter (internal/provider/anthropic, openaichat, openairesponses,
// gemini) decodes its own wire format — Anthropic's typed SSE events,
// OpenAI Chat Completions' delta chunks, OpenAI Responses' item-based
// stream, Gemini's candidate stream — into the same ordered sequence of
// AssistantMessageEvent values defined here, so the agent loop never
// branches on which API produced a response.
package provider

import (
	"context"
	"sync"

	"github.com/agentcore/runtime/pkg/models"
)

// EventKind discriminates an AssistantMessageEvent.
type EventKind string

const (
	// EventMessageStart opens a new assistant message. Exactly one per turn.
	EventMessageStart EventKind = "message_start"
	// EventBlockStart opens a content block (text, thinking, or tool call).
	EventBlockStart EventKind = "block_start"
	// EventTextDelta appends text to the current text block.
	EventTextDelta EventKind = "text_delta"
	// EventThinkingDelta appends text to the current thinking block.
	EventThinkingDelta EventKind = "thinking_delta"
	// EventToolCallDelta appends a raw JSON fragment to the current tool
	// call's argument buffer.
	EventToolCallDelta EventKind = "tool_call_delta"
	// EventBlockStop closes the current content block. A ToolCall block's
	// arguments are parsed exactly once at this point.
	EventBlockStop EventKind = "block_stop"
	// EventUsage carries a usage snapshot, merged by field-wise maximum with
	// any prior snapshot for this message (models.MergeMax).
	EventUsage EventKind = "usage"
	// EventMessageStop closes the assistant message with its stop reason.
	// Exactly one per turn, always the final event unless EventError fired.
	EventMessageStop EventKind = "message_stop"
	// EventError aborts the stream. No further events follow it.
	EventError EventKind = "error"
)

// AssistantMessageEvent is the single canonical event type all three
// adapters emit. Fields are populated according to Kind; see the EventKind
// constants for which fields apply to which kind.
//
// Ordering invariants enforced by every adapter:
//   - exactly one EventMessageStart, first
//   - exactly one EventMessageStop or EventError, last
//   - a block's delta events never appear before its EventBlockStart or
//     after its EventBlockStop
//   - blocks do not interleave: EventBlockStart for block N+1 never arrives
//     before EventBlockStop for block N
type AssistantMessageEvent struct {
	Kind EventKind

	// BlockIndex identifies which content block a block-scoped event
	// belongs to (EventBlockStart/Stop, *Delta).
	BlockIndex int

	// EventBlockStart only: the kind of block being opened.
	BlockKind models.BlockKind

	// EventBlockStart only, ToolCall blocks: id/name are known up front,
	// arguments arrive incrementally via EventToolCallDelta.
	ToolCallID   string
	ToolCallName string

	// EventTextDelta / EventThinkingDelta / EventToolCallDelta.
	Delta string

	// EventBlockStop, ToolCall blocks only: the fully parsed call.
	ToolCall *models.ToolCall

	// EventUsage only.
	Usage models.Usage

	// EventMessageStop only.
	StopReason models.StopReason

	// EventError only.
	Err *Error
}

// StreamRequest is the provider-agnostic shape of one completion request.
// Adapters translate it into their own wire request.
type StreamRequest struct {
	Model         models.LLMModel
	System        string
	Messages      []models.Message
	Tools         []ToolSpec
	MaxTokens     int
	ThinkingLevel models.ThinkingLevel
}

// ToolSpec is the provider-agnostic shape of one tool definition offered to
// the model, translated by each adapter into its own tool-declaration wire
// format (Anthropic's input_schema, OpenAI's function parameters, ...).
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []byte // JSON schema, already validated well-formed at registration time
}

// Provider streams one assistant turn at a time. Implementations must be
// safe for concurrent use by multiple goroutines driving independent
// sessions; the agent loop itself only ever has one stream in flight per
// session, but a single Provider instance is shared across sessions.
type Provider interface {
	// Name identifies the provider for logging, metrics, and error messages.
	Name() string

	// Api identifies which wire shape this provider speaks.
	Api() models.Api

	// Stream sends req and returns the channel of canonical events. The
	// channel is closed after the terminal EventMessageStop or EventError.
	// Cancelling ctx closes the channel promptly with a terminal EventError
	// carrying Kind: KindAborted.
	Stream(ctx context.Context, req StreamRequest) (<-chan AssistantMessageEvent, error)
}

// Registry resolves a Provider by the Api it speaks. The agent loop looks
// up a provider once per turn via the model's declared Api field, never by
// provider name directly, so swapping the backend behind a given Api is a
// config change, not a code change.
type Registry struct {
	mu        sync.RWMutex
	providers map[models.Api]Provider
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[models.Api]Provider)}
}

// Register associates a Provider with the Api it implements, replacing any
// previous registration for that Api.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Api()] = p
}

// Resolve looks up the provider for api. The zero value, false is returned
// when nothing is registered — the agent loop turns this into a
// KindNoProvider error rather than a panic.
func (r *Registry) Resolve(api models.Api) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[api]
	return p, ok
}
