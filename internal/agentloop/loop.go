// Package agentloop drives the turn-by-turn conversation between a
// provider stream and local tool execution: accumulate an assistant
// message from provider events, execute any tool calls it requested
// sequentially, feed the results back, and repeat until the model stops
// requesting tools, a host cancels the run, or the turn bound trips.
package agentloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore/runtime/internal/compaction"
	"github.com/agentcore/runtime/internal/observability"
	"github.com/agentcore/runtime/internal/provider"
	"github.com/agentcore/runtime/internal/tool"
	"github.com/agentcore/runtime/pkg/models"
)

// DefaultTurnBound is the maximum number of model round-trips a single Run
// performs before it gives up. Overflowing it is a fatal, non-retried
// condition distinct from a retryable provider error: it means the model
// kept requesting tools past any reasonable budget, not that a single
// request failed.
const DefaultTurnBound = 50

// SessionStore is the narrow persistence contract the loop needs: append a
// turn's messages to the active branch and reconstruct the context that
// feeds the next provider request. internal/session implements this over
// the append-only file store; tests substitute an in-memory fake.
type SessionStore interface {
	Append(ctx context.Context, msg models.AgentMessage) error
	Reconstruct(ctx context.Context) ([]models.Message, error)
}

// Config configures a Loop.
type Config struct {
	TurnBound      int // default DefaultTurnBound
	MaxTokens      int
	ThinkingLevel  models.ThinkingLevel
	System         string
	ExecutorConfig tool.ExecutorConfig
	Permission     PermissionFunc // nil = every call is allowed
	Confirm        ConfirmFunc
	FollowUpMode   FollowUpMode

	// Logger, Metrics, and Tracer are optional observability sinks. All
	// three are nil-safe: a Loop built without them runs identically, just
	// without the structured log lines, prometheus counters, and spans.
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

func (c Config) sanitized() Config {
	if c.TurnBound <= 0 {
		c.TurnBound = DefaultTurnBound
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.ExecutorConfig.Timeout <= 0 {
		c.ExecutorConfig = tool.DefaultExecutorConfig()
	}
	return c
}

// EventKind discriminates a streamed loop Event, the host-facing channel
// the teacher's ResponseChunk plays the same role for.
type EventKind string

const (
	EventTextDelta     EventKind = "text_delta"
	EventThinkingDelta EventKind = "thinking_delta"
	EventToolStart     EventKind = "tool_start"
	EventToolResult    EventKind = "tool_result"
	EventTurnEnd       EventKind = "turn_end"
	EventAgentEnd      EventKind = "agent_end"
	EventError         EventKind = "error"
)

// Event is one unit of progress the loop reports to the host while Run is
// in flight.
type Event struct {
	Kind       EventKind
	Delta      string
	ToolCallID string
	ToolName   string
	ToolResult tool.Result
	StopReason models.StopReason
	Err        error
}

// Loop binds a provider registry, tool registry/executor, and session store
// together into the turn-by-turn driver described in the package doc.
type Loop struct {
	providers *provider.Registry
	tools     *tool.Registry
	executor  *tool.Executor
	store     SessionStore
	config    Config
}

// New returns a Loop ready to Run.
func New(providers *provider.Registry, tools *tool.Registry, store SessionStore, config Config) *Loop {
	config = config.sanitized()
	return &Loop{
		providers: providers,
		tools:     tools,
		executor:  tool.NewExecutor(tools, config.ExecutorConfig),
		store:     store,
		config:    config,
	}
}

// logInfo is a nil-safe wrapper around Config.Logger.Info.
func (l *Loop) logInfo(ctx context.Context, msg string, args ...any) {
	if l.config.Logger != nil {
		l.config.Logger.Info(ctx, msg, args...)
	}
}

// logError is a nil-safe wrapper around Config.Logger.Error, also
// recording the failure against Config.Metrics.ErrorCounter when set.
func (l *Loop) logError(ctx context.Context, component string, err error) {
	if l.config.Logger != nil {
		l.config.Logger.Error(ctx, "loop error", "component", component, "error", err)
	}
	if l.config.Metrics != nil {
		l.config.Metrics.RecordError(component, fmt.Sprintf("%T", err))
	}
}

// Run drives the loop for one user message against model, emitting Events
// on the returned channel until the model produces a final answer with no
// pending tool calls, a follow-up queue goes dry, the context is cancelled,
// the turn bound is exceeded, or a stream attempt fails. A failed stream
// attempt ends the run with StopReason=Error rather than retrying: see
// Continue. The channel is always closed before Run's goroutine exits.
func (l *Loop) Run(ctx context.Context, model models.LLMModel, userMessage models.Message) <-chan Event {
	events := make(chan Event, 16)
	go l.run(ctx, model, &userMessage, events)
	return events
}

// Continue resumes the inner loop from the session's existing leaf without
// appending a new user message. This is the host's response to a turn that
// ended with StopReason=Error: the failed attempt is already recorded as an
// assistant message, and Continue simply streams another turn against the
// same history.
func (l *Loop) Continue(ctx context.Context, model models.LLMModel) <-chan Event {
	events := make(chan Event, 16)
	go l.run(ctx, model, nil, events)
	return events
}

func (l *Loop) run(ctx context.Context, model models.LLMModel, userMessage *models.Message, events chan<- Event) {
	defer close(events)

	emit := func(e Event) bool {
		select {
		case events <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if userMessage != nil {
		if err := l.store.Append(ctx, models.WrapMessage(*userMessage)); err != nil {
			err = fmt.Errorf("append user message: %w", err)
			l.logError(ctx, "loop", err)
			emit(Event{Kind: EventError, Err: err})
			return
		}
	}

	steeringQueue := SteeringQueueFromContext(ctx)

	for turn := 1; turn <= l.config.TurnBound; turn++ {
		if ctx.Err() != nil {
			if l.config.Metrics != nil {
				l.config.Metrics.RecordLoopIteration("error")
			}
			emit(Event{Kind: EventAgentEnd, StopReason: models.StopReasonAborted, Err: ctx.Err()})
			return
		}

		history, err := l.store.Reconstruct(ctx)
		if err != nil {
			err = fmt.Errorf("reconstruct context: %w", err)
			l.logError(ctx, "session", err)
			if l.config.Metrics != nil {
				l.config.Metrics.RecordLoopIteration("error")
			}
			emit(Event{Kind: EventError, Err: err})
			return
		}

		assistantMsg, streamErr := l.streamTurn(ctx, model, history, events)
		if streamErr != nil {
			l.logError(ctx, "provider", streamErr)
			providerName := ""
			if p, ok := l.providers.Resolve(model.Api); ok {
				providerName = p.Name()
			}
			errMsg := models.Message{
				Kind:       models.MessageAssistant,
				Timestamp:  time.Now(),
				Api:        model.Api,
				Provider:   providerName,
				Model:      model.ID,
				StopReason: models.StopReasonError,
				Error:      streamErr.Error(),
			}
			if err := l.store.Append(ctx, models.WrapMessage(errMsg)); err != nil {
				emit(Event{Kind: EventError, Err: fmt.Errorf("append error message: %w", err)})
				return
			}
			if l.config.Metrics != nil {
				l.config.Metrics.RecordLoopIteration("error")
			}
			emit(Event{Kind: EventAgentEnd, StopReason: models.StopReasonError, Err: streamErr})
			return
		}
		l.logInfo(ctx, "turn streamed", "turn", turn, "stop_reason", assistantMsg.StopReason)

		if err := l.store.Append(ctx, models.WrapMessage(assistantMsg)); err != nil {
			emit(Event{Kind: EventError, Err: fmt.Errorf("append assistant message: %w", err)})
			return
		}

		calls := assistantMsg.ToolCalls()
		if len(calls) == 0 {
			if !emit(Event{Kind: EventTurnEnd, StopReason: assistantMsg.StopReason}) {
				return
			}
			followUps := drainFollowUps(steeringQueue, l.config.FollowUpMode)
			if len(followUps) == 0 {
				if l.config.Metrics != nil {
					l.config.Metrics.RecordLoopIteration("done")
				}
				emit(Event{Kind: EventAgentEnd, StopReason: assistantMsg.StopReason})
				return
			}
			for _, f := range followUps {
				if err := l.store.Append(ctx, models.WrapMessage(models.NewUserMessage(followUpID(turn), f.Content))); err != nil {
					err = fmt.Errorf("append follow-up: %w", err)
					l.logError(ctx, "loop", err)
					emit(Event{Kind: EventError, Err: err})
					return
				}
			}
			if l.config.Metrics != nil {
				l.config.Metrics.RecordLoopIteration("continued")
			}
			continue
		}

		if !l.executeTurn(ctx, calls, steeringQueue, events, emit) {
			return
		}
		if l.config.Metrics != nil {
			l.config.Metrics.RecordLoopIteration("continued")
		}
	}

	if l.config.Metrics != nil {
		l.config.Metrics.RecordLoopIteration("turn_bound_exceeded")
	}
	emit(Event{Kind: EventAgentEnd, StopReason: models.StopReasonError, Err: fmt.Errorf("reached turn bound of %d", l.config.TurnBound)})
}

// streamTurn resolves the provider for model, makes exactly one stream
// attempt, and accumulates the canonical event sequence into a single
// models.Message. It does not retry: per the retry policy, a retryable
// failure surfaces as an Error-terminated assistant message and the inner
// loop exits, leaving the decision to retry (and its backoff) to the host
// via Loop.Continue.
func (l *Loop) streamTurn(ctx context.Context, model models.LLMModel, history []models.Message, events chan<- Event) (models.Message, error) {
	p, ok := l.providers.Resolve(model.Api)
	if !ok {
		return models.Message{}, fmt.Errorf("no provider registered for api %q", model.Api)
	}

	req := provider.StreamRequest{
		Model:         model,
		System:        l.config.System,
		Messages:      history,
		Tools:         toProviderToolSpecs(l.tools.Specs()),
		MaxTokens:     l.config.MaxTokens,
		ThinkingLevel: l.config.ThinkingLevel,
	}

	spanCtx := ctx
	if l.config.Tracer != nil {
		var span trace.Span
		spanCtx, span = l.config.Tracer.TraceProviderStream(ctx, p.Name(), model.ID)
		defer span.End()
	}

	start := time.Now()
	msg, err := l.streamOnce(spanCtx, p, req, events)
	duration := time.Since(start).Seconds()
	if err != nil {
		if l.config.Metrics != nil {
			l.config.Metrics.RecordLLMRequest(p.Name(), model.ID, "error", duration, 0, 0)
		}
		if l.config.Tracer != nil {
			l.config.Tracer.RecordError(trace.SpanFromContext(spanCtx), err)
		}
		return models.Message{}, err
	}

	promptTokens, completionTokens := 0, 0
	if msg.Usage != nil {
		promptTokens, completionTokens = msg.Usage.Input, msg.Usage.Output
	}
	if l.config.Metrics != nil {
		l.config.Metrics.RecordLLMRequest(p.Name(), model.ID, "success", duration, promptTokens, completionTokens)
		if msg.Usage != nil && msg.Usage.Cost > 0 {
			l.config.Metrics.RecordLLMCost(p.Name(), model.ID, msg.Usage.Cost)
		}
		ctxTokens := 0
		for _, m := range history {
			ctxTokens += compaction.EstimateTokens(m)
		}
		l.config.Metrics.RecordContextWindow(p.Name(), model.ID, ctxTokens)
	}
	return msg, nil
}

// streamOnce drives a single Stream call to completion, relaying deltas as
// Events and accumulating blocks into a Message.
func (l *Loop) streamOnce(ctx context.Context, p provider.Provider, req provider.StreamRequest, events chan<- Event) (models.Message, error) {
	ch, err := p.Stream(ctx, req)
	if err != nil {
		return models.Message{}, err
	}

	msg := models.Message{Kind: models.MessageAssistant, Api: p.Api(), Provider: p.Name(), Model: req.Model.ID}
	blockKinds := map[int]models.BlockKind{}
	blockText := map[int]*string{}

	for ev := range ch {
		switch ev.Kind {
		case provider.EventBlockStart:
			blockKinds[ev.BlockIndex] = ev.BlockKind
			s := ""
			blockText[ev.BlockIndex] = &s
			select {
			case events <- Event{Kind: EventToolStart, ToolCallID: ev.ToolCallID, ToolName: ev.ToolCallName}:
			case <-ctx.Done():
			}
		case provider.EventTextDelta:
			if s := blockText[ev.BlockIndex]; s != nil {
				*s += ev.Delta
			}
			select {
			case events <- Event{Kind: EventTextDelta, Delta: ev.Delta}:
			case <-ctx.Done():
			}
		case provider.EventThinkingDelta:
			if s := blockText[ev.BlockIndex]; s != nil {
				*s += ev.Delta
			}
			select {
			case events <- Event{Kind: EventThinkingDelta, Delta: ev.Delta}:
			case <-ctx.Done():
			}
		case provider.EventBlockStop:
			kind := blockKinds[ev.BlockIndex]
			switch kind {
			case models.BlockToolCall:
				if ev.ToolCall != nil {
					msg.Content = append(msg.Content, models.ToolCallBlock(*ev.ToolCall))
				}
			case models.BlockText:
				text := ""
				if s := blockText[ev.BlockIndex]; s != nil {
					text = *s
				}
				msg.Content = append(msg.Content, models.TextBlock(text))
			case models.BlockThinking:
				text := ""
				if s := blockText[ev.BlockIndex]; s != nil {
					text = *s
				}
				msg.Content = append(msg.Content, models.ThinkingBlock(text))
			}
		case provider.EventUsage:
			if msg.Usage == nil {
				u := ev.Usage
				msg.Usage = &u
			} else {
				merged := models.MergeMax(*msg.Usage, ev.Usage)
				msg.Usage = &merged
			}
		case provider.EventMessageStop:
			msg.StopReason = ev.StopReason
		case provider.EventError:
			if ev.Err != nil {
				return models.Message{}, ev.Err
			}
			return models.Message{}, errors.New("provider stream error with no detail")
		}
	}

	if msg.StopReason == "" {
		if len(msg.ToolCalls()) > 0 {
			msg.StopReason = models.StopReasonToolUse
		} else {
			msg.StopReason = models.StopReasonStop
		}
	}
	return msg, nil
}

// executeTurn resolves permission, validates arguments, and sequentially
// executes every pending tool call, honoring a steering short-circuit
// between calls. Returns false if the run should stop (emit failed because
// the context closed).
func (l *Loop) executeTurn(ctx context.Context, calls []models.ToolCall, steeringQueue *SteeringQueue, events chan<- Event, emit func(Event) bool) bool {
	skipRemaining := false
	results := make([]*tool.ExecutionResult, len(calls))

	for i, call := range calls {
		if skipRemaining {
			results[i] = &tool.ExecutionResult{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Result:     tool.Result{Content: SkippedToolResultPlaceholder, IsError: false},
			}
			continue
		}

		if steeringQueue != nil {
			for _, s := range steeringQueue.DrainSteering() {
				if err := l.store.Append(ctx, models.WrapMessage(models.NewUserMessage(steeringID(call.ID), s.Content))); err != nil {
					emit(Event{Kind: EventError, Err: fmt.Errorf("append steering message: %w", err)})
					return false
				}
				if s.SkipRemainingTools {
					skipRemaining = true
				}
			}
			if skipRemaining {
				results[i] = &tool.ExecutionResult{
					ToolCallID: call.ID,
					ToolName:   call.Name,
					Result:     tool.Result{Content: SkippedToolResultPlaceholder, IsError: false},
				}
				continue
			}
		}

		call.ParseArguments()

		if errs, known := l.tools.ValidateArguments(call.Name, call.Arguments); !known {
			results[i] = &tool.ExecutionResult{ToolCallID: call.ID, ToolName: call.Name, Error: tool.NewError(call.Name, tool.ErrToolNotFound).WithKind(tool.KindNotFound)}
		} else if len(errs) > 0 {
			results[i] = &tool.ExecutionResult{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Error:      tool.NewError(call.Name, fmt.Errorf("%s", joinErrors(errs))).WithKind(tool.KindInvalidInput),
			}
		} else if decision := l.checkPermission(ctx, call); decision.Outcome == PermissionDeny {
			results[i] = &tool.ExecutionResult{ToolCallID: call.ID, ToolName: call.Name, Error: tool.NewError(call.Name, fmt.Errorf("denied: %s", decision.Reason)).WithKind(tool.KindPermission)}
		} else {
			if !emit(Event{Kind: EventToolStart, ToolCallID: call.ID, ToolName: call.Name}) {
				return false
			}
			toolCtx := ctx
			var toolSpan trace.Span
			if l.config.Tracer != nil {
				toolCtx, toolSpan = l.config.Tracer.TraceToolExecution(ctx, call.Name)
			}
			results[i] = l.executor.Execute(toolCtx, call)
			if toolSpan != nil {
				if results[i].Error != nil {
					l.config.Tracer.RecordError(toolSpan, results[i].Error)
				}
				toolSpan.End()
			}
			if l.config.Metrics != nil {
				status := "success"
				if results[i].Error != nil || results[i].Result.IsError {
					status = "error"
				}
				l.config.Metrics.RecordToolExecution(call.Name, status, results[i].Duration.Seconds())
			}
		}

		if !emit(Event{Kind: EventToolResult, ToolCallID: call.ID, ToolName: call.Name, ToolResult: effectiveResult(results[i])}) {
			return false
		}
	}

	msgs := tool.ResultsToMessages(calls, results)
	for _, m := range msgs {
		if err := l.store.Append(ctx, models.WrapMessage(m)); err != nil {
			emit(Event{Kind: EventError, Err: fmt.Errorf("append tool result: %w", err)})
			return false
		}
	}
	return true
}

// effectiveResult derives the tool.Result an EventToolResult should carry,
// whether the call actually ran or was turned away before execution: a
// failed validation/permission/execution step has no Result of its own, only
// an Error, so the event mirrors exactly what ToToolResult would persist.
func effectiveResult(r *tool.ExecutionResult) tool.Result {
	if r.Error != nil {
		return tool.Result{Content: r.Error.Error(), IsError: true}
	}
	return r.Result
}

func (l *Loop) checkPermission(ctx context.Context, call models.ToolCall) PermissionResult {
	if l.config.Permission == nil {
		return PermissionResult{Outcome: PermissionAllow}
	}
	res := l.config.Permission(ctx, call)
	if res.Outcome != PermissionNeedsConfirmation {
		return res
	}
	if l.config.Confirm != nil && l.config.Confirm(ctx, call, res.Reason) {
		return PermissionResult{Outcome: PermissionAllow}
	}
	return PermissionResult{Outcome: PermissionDeny, Reason: res.Reason}
}

func drainFollowUps(q *SteeringQueue, mode FollowUpMode) []FollowUpMessage {
	if q == nil {
		return nil
	}
	return q.DrainFollowUps(mode)
}

func toProviderToolSpecs(specs []tool.ToolSpec) []provider.ToolSpec {
	out := make([]provider.ToolSpec, len(specs))
	for i, s := range specs {
		out[i] = provider.ToolSpec{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
	}
	return out
}

func joinErrors(errs []string) string {
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}

func followUpID(turn int) string { return fmt.Sprintf("follow-up-%d", turn) }
func steeringID(callID string) string { return "steering-" + callID }
