package tool

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/agentcore/runtime/pkg/models"
)

// ExecutorConfig configures timeout and retry behavior. Unlike a fan-out
// executor, there is no concurrency limit to configure here: calls run one
// at a time, in the order the model emitted them, so a later call always
// observes the filesystem/process state the earlier one left behind.
type ExecutorConfig struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// DefaultExecutorConfig returns sane defaults: a 30s per-call timeout, 2
// retries on a retryable error, starting at 100ms and capped at 5s.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Timeout:         30 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
	}
}

// Executor runs tool calls against a Registry sequentially.
type Executor struct {
	registry *Registry
	config   ExecutorConfig
}

// NewExecutor returns an Executor bound to registry.
func NewExecutor(registry *Registry, config ExecutorConfig) *Executor {
	return &Executor{registry: registry, config: config}
}

// ExecutionResult is the outcome of one tool call.
type ExecutionResult struct {
	ToolCallID string
	ToolName   string
	Result     Result
	Error      error
	Duration   time.Duration
	Attempts   int
}

// ExecuteAll runs calls one after another, in order, stopping for nothing —
// a failing call still produces an ExecutionResult (with Error set) so the
// remaining calls in the batch still run and the agent loop turns every
// call's outcome into a ToolResult message. Results are returned in the
// same order as calls.
func (e *Executor) ExecuteAll(ctx context.Context, calls []models.ToolCall) []*ExecutionResult {
	if len(calls) == 0 {
		return nil
	}
	results := make([]*ExecutionResult, len(calls))
	for i, call := range calls {
		results[i] = e.Execute(ctx, call)
		if ctx.Err() != nil {
			for j := i + 1; j < len(calls); j++ {
				results[j] = &ExecutionResult{
					ToolCallID: calls[j].ID,
					ToolName:   calls[j].Name,
					Error:      NewError(calls[j].Name, ctx.Err()).WithKind(KindTimeout).WithToolCallID(calls[j].ID),
				}
			}
			break
		}
	}
	return results
}

// Execute runs a single tool call with retry and timeout handling.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) *ExecutionResult {
	start := time.Now()
	result := &ExecutionResult{ToolCallID: call.ID, ToolName: call.Name}

	backoff := e.config.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		res, err := e.executeWithTimeout(ctx, call)
		if err == nil {
			result.Result = res
			result.Duration = time.Since(start)
			return result
		}
		lastErr = err

		if !IsRetryable(err) || ctx.Err() != nil || attempt >= e.config.MaxRetries {
			break
		}

		sleep := backoff * time.Duration(1<<uint(attempt))
		if sleep > e.config.MaxRetryBackoff {
			sleep = e.config.MaxRetryBackoff
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			lastErr = NewError(call.Name, ctx.Err()).WithKind(KindTimeout).WithToolCallID(call.ID)
		}
	}

	if te, ok := AsError(lastErr); ok {
		te.WithAttempts(result.Attempts)
	}
	result.Error = lastErr
	result.Duration = time.Since(start)
	return result
}

// executeWithTimeout bounds a single attempt and recovers from a panicking
// tool body, converting it into a KindPanic error rather than crashing the
// loop that called Execute.
func (e *Executor) executeWithTimeout(ctx context.Context, call models.ToolCall) (Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	type outcome struct {
		result Result
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: NewError(call.Name, fmt.Errorf("panic: %v\n%s", r, debug.Stack())).
					WithKind(KindPanic).WithToolCallID(call.ID)}
			}
		}()
		res, err := e.registry.Execute(execCtx, call.Name, call.RawArguments)
		if err != nil {
			ch <- outcome{err: NewError(call.Name, err).WithToolCallID(call.ID)}
			return
		}
		ch <- outcome{result: res}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return Result{}, NewError(call.Name, ctx.Err()).WithKind(KindTimeout).WithToolCallID(call.ID).WithMessage("context cancelled")
		}
		return Result{}, NewError(call.Name, ErrToolTimeout).WithKind(KindTimeout).WithToolCallID(call.ID).
			WithMessage(fmt.Sprintf("execution timed out after %s", e.config.Timeout))
	}
}

// ResultsToMessages converts a batch of execution results into ToolResult
// messages, one per call, suitable for appending to the session in order.
func ResultsToMessages(calls []models.ToolCall, results []*ExecutionResult) []models.Message {
	out := make([]models.Message, len(results))
	for i, r := range results {
		out[i] = ToToolResult(calls[i], r.Result, r.Error)
	}
	return out
}

// AnyErrors reports whether any result in the batch failed.
func AnyErrors(results []*ExecutionResult) bool {
	for _, r := range results {
		if r.Error != nil {
			return true
		}
	}
	return false
}
