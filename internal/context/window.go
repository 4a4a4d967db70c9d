// Package context renders a model's context-window usage for display: given
// a token count and a window size, it reports how much room is left and
// whether that's getting tight. internal/compaction owns the decision of
// when to actually reclaim space (Trigger, ComputeStatus); this package is
// the human-facing view on top of that same number, used by the CLI's
// session inspect command.
package context

import (
	"fmt"
	"unicode/utf8"
)

// Default token limits.
const (
	// DefaultContextWindow is used when a caller has no window size of its
	// own to report (Source becomes "default").
	DefaultContextWindow = 128000

	// MinContextWindow is the remaining-token floor below which a window is
	// reported as critical.
	MinContextWindow = 16000

	// WarnBelowTokens is the remaining-token ceiling below which a window is
	// reported as a warning.
	WarnBelowTokens = 32000

	// TokensPerChar is a rough estimate of tokens per character (conservative).
	TokensPerChar = 0.25
)

// WindowInfo is a point-in-time snapshot of a Window's usage.
type WindowInfo struct {
	TotalTokens     int     `json:"total_tokens"`
	UsedTokens      int     `json:"used_tokens"`
	RemainingTokens int     `json:"remaining_tokens"`
	UsedPercent     float64 `json:"used_percent"`

	// Source names where TotalTokens came from ("model", "config", "default").
	Source string `json:"source"`
}

// Status returns "critical", "warning", or "ok".
func (w *WindowInfo) Status() string {
	if w.ShouldBlock() {
		return "critical"
	}
	if w.ShouldWarn() {
		return "warning"
	}
	return "ok"
}

// ShouldWarn returns true if the context is getting low.
func (w *WindowInfo) ShouldWarn() bool {
	return w.RemainingTokens < WarnBelowTokens
}

// ShouldBlock returns true if the context is too low to continue.
func (w *WindowInfo) ShouldBlock() bool {
	return w.RemainingTokens < MinContextWindow
}

// String returns a human-readable description, the line session inspect
// prints after a reconstructed context.
func (w *WindowInfo) String() string {
	return fmt.Sprintf("%d/%d tokens (%.1f%% used, %s)",
		w.UsedTokens, w.TotalTokens, w.UsedPercent, w.Status())
}

// Window tracks token usage against a fixed total.
type Window struct {
	totalTokens int
	usedTokens  int
	source      string
}

// NewWindow returns a Window of the given size. A non-positive size falls
// back to DefaultContextWindow with Source "default", for a model whose
// catalog entry left ContextWindow unset.
func NewWindow(totalTokens int, source string) *Window {
	if totalTokens <= 0 {
		totalTokens = DefaultContextWindow
		source = "default"
	}
	return &Window{totalTokens: totalTokens, source: source}
}

// Add adds tokens to the used count.
func (w *Window) Add(tokens int) {
	w.usedTokens += tokens
}

// AddText estimates and adds tokens for text content.
func (w *Window) AddText(text string) int {
	tokens := EstimateTokens(text)
	w.Add(tokens)
	return tokens
}

// Reset resets the used token count.
func (w *Window) Reset() {
	w.usedTokens = 0
}

// SetUsed sets the used token count directly, the entry point session
// inspect uses after summing compaction.EstimateTokens over a reconstructed
// context.
func (w *Window) SetUsed(tokens int) {
	w.usedTokens = tokens
}

// Info returns the current window information.
func (w *Window) Info() *WindowInfo {
	remaining := w.Remaining()
	var usedPercent float64
	if w.totalTokens > 0 {
		usedPercent = float64(w.usedTokens) / float64(w.totalTokens) * 100
	}
	return &WindowInfo{
		TotalTokens:     w.totalTokens,
		UsedTokens:      w.usedTokens,
		RemainingTokens: remaining,
		UsedPercent:     usedPercent,
		Source:          w.source,
	}
}

// Remaining returns the remaining tokens, floored at zero.
func (w *Window) Remaining() int {
	remaining := w.totalTokens - w.usedTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanFit returns true if the given number of tokens will fit.
func (w *Window) CanFit(tokens int) bool {
	return w.Remaining() >= tokens
}

// CanFitText returns true if the estimated tokens for text will fit.
func (w *Window) CanFitText(text string) bool {
	return w.CanFit(EstimateTokens(text))
}

// EstimateTokens estimates the number of tokens in text using a
// conservative ~4-characters-per-token ratio. Separate from
// compaction.EstimateTokens, which estimates a whole models.Message
// (including tool-call argument payloads); this one is for plain text a
// caller hasn't wrapped in a Message yet.
func EstimateTokens(text string) int {
	charCount := utf8.RuneCountInString(text)
	tokens := int(float64(charCount) * TokensPerChar)
	if tokens == 0 && charCount > 0 {
		return 1
	}
	return tokens
}

// EstimateTokensForMessages estimates tokens for a batch of raw text
// contents, adding a small per-message formatting overhead to each.
func EstimateTokensForMessages(contents []string) int {
	total := 0
	for _, content := range contents {
		total += EstimateTokens(content) + 4
	}
	return total
}
