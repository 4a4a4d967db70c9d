// Package compaction implements spec §4.7: detecting when a session's
// reconstructed context has grown too large for its model's window,
// choosing a safe cut point in the message history, summarizing the
// discarded portion through the same provider pathway a normal turn uses,
// and committing the result as a Compaction session entry.
package compaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore/runtime/internal/observability"
	"github.com/agentcore/runtime/internal/provider"
	"github.com/agentcore/runtime/pkg/models"
)

// Default thresholds, named directly after spec §4.7.
const (
	DefaultReserveTokens    = 16384
	DefaultKeepRecentTokens = 20000
	MaxBoundaryScan         = 5
)

// ErrCannotCompact indicates no safe cut point exists: either the whole
// history already fits inside keepRecentTokens, or the forward boundary
// scan never found a non-ToolResult message within MaxBoundaryScan steps.
var ErrCannotCompact = errors.New("compaction: cannot compact")

// TokenEstimator estimates one message's token footprint. Swappable so
// tests can use an exact stand-in instead of a character-count heuristic.
type TokenEstimator func(models.Message) int

// EstimateTokens is the default char/4-plus-overhead heuristic, the same
// shape as the teacher's own estimateTokens helper.
func EstimateTokens(m models.Message) int {
	chars := len(m.Text())
	for _, b := range m.Content {
		switch b.Kind {
		case models.BlockThinking:
			chars += len(b.Text)
		case models.BlockToolCall:
			if b.ToolCall != nil {
				chars += len(b.ToolCall.RawArguments)
			}
		}
	}
	const perMessageOverhead = 4
	return chars/4 + perMessageOverhead
}

// Trigger reports whether compaction should run: the reconstructed
// context's token count exceeds the model's window minus reserved
// headroom.
func Trigger(ctxTokens, window, reserve int) bool {
	if reserve <= 0 {
		reserve = DefaultReserveTokens
	}
	return ctxTokens > window-reserve
}

// CutPoint names where a compaction pass should divide history: messages
// at index < Index are summarized and discarded; messages at or after
// Index are kept verbatim.
type CutPoint struct {
	Index           int
	KeptTokens      int
	SummarizedCount int
}

// FindCutPoint walks messages newest-to-oldest accumulating token counts
// until keepRecentTokens is reached, then scans forward at most
// MaxBoundaryScan messages for a cut point that does not land on a
// ToolResult — cutting there would orphan the ToolCall that preceded it.
func FindCutPoint(messages []models.Message, keepRecentTokens int, estimate TokenEstimator) (CutPoint, error) {
	if keepRecentTokens <= 0 {
		keepRecentTokens = DefaultKeepRecentTokens
	}
	if estimate == nil {
		estimate = EstimateTokens
	}
	if len(messages) == 0 {
		return CutPoint{}, ErrCannotCompact
	}

	kept := 0
	idx := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		if kept >= keepRecentTokens {
			idx = i + 1
			break
		}
		kept += estimate(messages[i])
		idx = i
	}

	scanned := 0
	for idx < len(messages) && messages[idx].Kind == models.MessageToolResult && scanned < MaxBoundaryScan {
		idx++
		scanned++
	}
	if idx <= 0 || idx >= len(messages) || messages[idx].Kind == models.MessageToolResult {
		return CutPoint{}, ErrCannotCompact
	}

	return CutPoint{Index: idx, KeptTokens: kept, SummarizedCount: idx}, nil
}

// SummaryPrompt renders the six required sections spec §4.7 names:
// Goal, Progress, Current State, Key Decisions, Next Steps, Files Modified.
const SummaryPrompt = `Summarize the conversation below into exactly six sections, each on its own line prefixed with its heading:

Goal: what the user is ultimately trying to accomplish.
Progress: what has been done so far.
Current State: the state of the code or environment right now.
Key Decisions: notable choices made and why.
Next Steps: what remains to be done.
Files Modified: files touched, one per line if more than one.

Conversation:
%s`

// BuildSummaryPrompt renders SummaryPrompt against the messages being
// discarded, in order.
func BuildSummaryPrompt(messages []models.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(string(m.Kind))
		b.WriteString(": ")
		b.WriteString(m.Text())
		b.WriteString("\n")
	}
	return fmt.Sprintf(SummaryPrompt, b.String())
}

// Summarizer produces the structured summary of a discarded message range.
// The "same provider pathway" requirement in spec §4.7 means a concrete
// Summarizer sends BuildSummaryPrompt's rendering through the normal
// provider.Provider.Stream call a turn would use, not a separate API.
type Summarizer interface {
	Summarize(ctx context.Context, messages []models.Message) (string, error)
}

// ProviderSummarizer implements Summarizer over an internal/provider
// Provider, draining its stream and concatenating text deltas.
type ProviderSummarizer struct {
	Provider provider.Provider
	Model    models.LLMModel
	// MaxTokens bounds the summary response; defaults to 1024 if unset.
	MaxTokens int
}

// Summarize implements Summarizer.
func (s *ProviderSummarizer) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	maxTokens := s.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	req := provider.StreamRequest{
		Model:     s.Model,
		Messages:  []models.Message{models.NewUserMessage("compaction-prompt", BuildSummaryPrompt(messages))},
		MaxTokens: maxTokens,
	}
	ch, err := s.Provider.Stream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("compaction: summarizer stream: %w", err)
	}
	var text strings.Builder
	for ev := range ch {
		switch ev.Kind {
		case provider.EventTextDelta:
			text.WriteString(ev.Delta)
		case provider.EventError:
			if ev.Err != nil {
				return "", fmt.Errorf("compaction: summarizer error: %w", ev.Err)
			}
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("compaction: summarizer produced no text")
	}
	return text.String(), nil
}

// Config configures a Compactor.
type Config struct {
	ReserveTokens    int
	KeepRecentTokens int
	Estimate         TokenEstimator

	// Metrics and Tracer are optional observability sinks. Both are
	// nil-safe: a Compactor built without them runs identically, just
	// without recorded counters and spans.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

func (c Config) sanitized() Config {
	if c.ReserveTokens <= 0 {
		c.ReserveTokens = DefaultReserveTokens
	}
	if c.KeepRecentTokens <= 0 {
		c.KeepRecentTokens = DefaultKeepRecentTokens
	}
	if c.Estimate == nil {
		c.Estimate = EstimateTokens
	}
	return c
}

// EntryAppender is the narrow session-store contract a Compactor needs:
// commit the summary as a Compaction entry. internal/session.Store and
// internal/session.MemoryStore both implement it.
type EntryAppender interface {
	AppendEntry(entry models.SessionEntry) (string, error)
}

// Compactor runs compaction passes against a session's reconstructed
// history.
type Compactor struct {
	config     Config
	summarizer Summarizer
}

// New returns a Compactor backed by summarizer.
func New(config Config, summarizer Summarizer) *Compactor {
	return &Compactor{config: config.sanitized(), summarizer: summarizer}
}

// Run executes one compaction pass: finds a cut point in messages,
// summarizes the discarded prefix, and commits the result as a Compaction
// entry via store. entryIDs must be parallel to messages (the session
// entry ID each message came from), so FirstKeptEntryID can be recorded
// precisely.
func (c *Compactor) Run(ctx context.Context, store EntryAppender, messages []models.Message, entryIDs []string) (CutPoint, error) {
	if len(messages) != len(entryIDs) {
		return CutPoint{}, fmt.Errorf("compaction: messages and entryIDs length mismatch (%d vs %d)", len(messages), len(entryIDs))
	}

	spanCtx := ctx
	if c.config.Tracer != nil && len(entryIDs) > 0 {
		var span trace.Span
		spanCtx, span = c.config.Tracer.TraceCompaction(ctx, entryIDs[0])
		defer span.End()
	}

	cut, err := FindCutPoint(messages, c.config.KeepRecentTokens, c.config.Estimate)
	if err != nil {
		if c.config.Metrics != nil && errors.Is(err, ErrCannotCompact) {
			c.config.Metrics.RecordCompaction("cannot_compact", 0)
		}
		if c.config.Tracer != nil {
			c.config.Tracer.RecordError(trace.SpanFromContext(spanCtx), err)
		}
		return CutPoint{}, err
	}

	summary, err := c.summarizer.Summarize(spanCtx, messages[:cut.Index])
	if err != nil {
		if c.config.Metrics != nil {
			c.config.Metrics.RecordCompaction("summarizer_error", 0)
		}
		if c.config.Tracer != nil {
			c.config.Tracer.RecordError(trace.SpanFromContext(spanCtx), err)
		}
		return CutPoint{}, err
	}

	tokensBefore := 0
	for _, m := range messages {
		tokensBefore += c.config.Estimate(m)
	}
	tokensAfter := 0
	for _, m := range messages[cut.Index:] {
		tokensAfter += c.config.Estimate(m)
	}

	entry := models.SessionEntry{
		EntryType: models.EntryCompaction,
		Compaction: &models.CompactionData{
			Summary:          summary,
			FirstKeptEntryID: entryIDs[cut.Index],
			TokensBefore:     tokensBefore,
		},
	}
	if _, err := store.AppendEntry(entry); err != nil {
		return CutPoint{}, fmt.Errorf("compaction: commit: %w", err)
	}
	if c.config.Metrics != nil {
		c.config.Metrics.RecordCompaction("committed", tokensBefore-tokensAfter)
	}
	return cut, nil
}
