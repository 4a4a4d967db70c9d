// Package models defines the canonical data model shared by the provider
// layer, the agent loop, and the session store: messages, tool calls,
// session entries, and the small value types (usage, stop reasons,
// thinking levels, model descriptors) that thread through all three.
package models

// Api identifies the wire shape a provider speaks, independent of which
// vendor is behind it (an OpenAI-compatible gateway speaks ChatCompletions
// even though it isn't OpenAI).
type Api string

const (
	ApiAnthropicMessages    Api = "anthropic-messages"
	ApiOpenAIChatCompletion Api = "openai-chat-completions"
	ApiOpenAIResponses      Api = "openai-responses"
)

// StopReason is why an assistant turn ended.
type StopReason string

const (
	StopReasonStop     StopReason = "stop"
	StopReasonLength   StopReason = "length"
	StopReasonToolUse  StopReason = "tool_use"
	StopReasonError    StopReason = "error"
	StopReasonAborted  StopReason = "aborted"
)

// ThinkingLevel controls the depth of extended reasoning a model performs.
// Ordering is meaningful: Off < Minimal < Low < Medium < High < XHigh.
type ThinkingLevel string

const (
	ThinkingOff     ThinkingLevel = "off"
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
	ThinkingXHigh   ThinkingLevel = "xhigh"
)

var thinkingRank = map[ThinkingLevel]int{
	ThinkingOff:     0,
	ThinkingMinimal: 1,
	ThinkingLow:     2,
	ThinkingMedium:  3,
	ThinkingHigh:    4,
	ThinkingXHigh:   5,
}

// Rank returns the ordinal position of the level, for comparisons.
func (t ThinkingLevel) Rank() int {
	if r, ok := thinkingRank[t]; ok {
		return r
	}
	return 0
}

// Less reports whether t is a shallower thinking level than other.
func (t ThinkingLevel) Less(other ThinkingLevel) bool {
	return t.Rank() < other.Rank()
}

// anthropicThinkingBudgets is the hard-coded default budget table used when
// constructing an Anthropic-style Messages request with reasoning enabled
// (spec §4.2). ThinkingOff has no budget because reasoning is disabled.
var anthropicThinkingBudgets = map[ThinkingLevel]int{
	ThinkingMinimal: 1024,
	ThinkingLow:     2048,
	ThinkingMedium:  4096,
	ThinkingHigh:    8192,
	ThinkingXHigh:   32768,
}

// AnthropicBudgetTokens returns the default budget_tokens value for a
// thinking level under the Anthropic-style Messages API. ok is false for
// ThinkingOff or an unrecognized level.
func AnthropicBudgetTokens(level ThinkingLevel) (tokens int, ok bool) {
	tokens, ok = anthropicThinkingBudgets[level]
	return tokens, ok
}

// ReasoningEffort is the OpenAI-style `reasoning_effort` / `reasoning.effort`
// value, shared between Chat Completions and Responses requests.
type ReasoningEffort string

const (
	ReasoningEffortLow    ReasoningEffort = "low"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortHigh   ReasoningEffort = "high"
)

// ReasoningEffortFor maps a thinking level onto the coarser three-tier
// OpenAI effort scale (spec §4.2): Minimal/Low -> low, Medium -> medium,
// High/XHigh -> high. ok is false for ThinkingOff, which omits the field.
func ReasoningEffortFor(level ThinkingLevel) (effort ReasoningEffort, ok bool) {
	switch level {
	case ThinkingMinimal, ThinkingLow:
		return ReasoningEffortLow, true
	case ThinkingMedium:
		return ReasoningEffortMedium, true
	case ThinkingHigh, ThinkingXHigh:
		return ReasoningEffortHigh, true
	default:
		return "", false
	}
}

// Usage tracks token and cost accounting for a single assistant response.
// When two usage snapshots arrive for the same response, MergeMax combines
// them by taking the larger of each field (spec §3, §8) rather than summing
// — safe only if the provider's snapshots are cumulative, not additive; see
// SPEC_FULL.md / DESIGN.md for the open question this leaves unresolved.
type Usage struct {
	Input      int     `json:"input"`
	Output     int     `json:"output"`
	CacheRead  int     `json:"cacheRead,omitempty"`
	CacheWrite int     `json:"cacheWrite,omitempty"`
	Total      int     `json:"total"`
	Cost       float64 `json:"cost,omitempty"`
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// MergeMax returns the field-wise maximum of two usage snapshots.
func MergeMax(a, b Usage) Usage {
	return Usage{
		Input:      maxInt(a.Input, b.Input),
		Output:     maxInt(a.Output, b.Output),
		CacheRead:  maxInt(a.CacheRead, b.CacheRead),
		CacheWrite: maxInt(a.CacheWrite, b.CacheWrite),
		Total:      maxInt(a.Total, b.Total),
		Cost:       maxFloat(a.Cost, b.Cost),
	}
}

// Cost is a four-way per-million-token price split.
type Cost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cacheRead"`
	CacheWrite float64 `json:"cacheWrite"`
}

// LLMModel describes a model a provider can be asked to drive. Stable
// identity is ID; everything else is descriptive metadata consumed by the
// provider layer (request construction) and the compaction trigger (context
// window sizing).
type LLMModel struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Api           Api               `json:"api"`
	Provider      string            `json:"provider"`
	BaseURL       string            `json:"baseUrl,omitempty"`
	Reasoning     bool              `json:"reasoning"`
	Modalities    []string          `json:"modalities"`
	Cost          Cost              `json:"cost"`
	ContextWindow int               `json:"contextWindow"`
	MaxTokens     int               `json:"maxTokens"`
	Headers       map[string]string `json:"headers,omitempty"`
}
