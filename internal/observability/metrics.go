package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting runtime
// metrics. The metrics system is built on Prometheus and tracks:
//   - Agent loop iterations and turn-bound outcomes
//   - LLM request performance, token usage, and cost
//   - Tool execution patterns and latencies
//   - Retry attempts and outcomes
//   - Compaction passes and the context they reclaim
//   - Error rates categorized by type and component
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.RecordLLMRequest("anthropic", "claude-3-5-sonnet", "success", time.Since(start).Seconds(), 100, 500)
type Metrics struct {
	// LoopIterations counts agent-loop turns by outcome.
	// Labels: outcome (continued|done|turn_bound_exceeded|error)
	LoopIterations *prometheus.CounterVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD tracks estimated cost in USD.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// RetryAttempts counts retry attempts by operation and outcome.
	// Labels: operation, outcome (retried|succeeded|exhausted|permanent)
	RetryAttempts *prometheus.CounterVec

	// CompactionRuns counts compaction passes by outcome.
	// Labels: outcome (committed|cannot_compact|summarizer_error)
	CompactionRuns *prometheus.CounterVec

	// CompactionTokensReclaimed measures tokens discarded per successful
	// compaction pass.
	// Buckets: 1000, 4000, 8000, 16000, 32000, 64000, 128000
	CompactionTokensReclaimed prometheus.Histogram

	// ContextWindowUsed tracks context window utilization.
	// Labels: provider, model
	// Buckets: 1000, 4000, 8000, 16000, 32000, 64000, 128000
	ContextWindowUsed *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and error type.
	// Labels: component (loop|provider|tool|session|compaction), error_type
	ErrorCounter *prometheus.CounterVec

	// RunAttempts counts run attempts by status, for retry tracking at
	// the process level (distinct from the agent loop's turn bound).
	// Labels: status (success|retry|failed)
	RunAttempts *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics against the
// default registry. Call once at process startup; metrics are served at
// /metrics by the prometheus HTTP handler.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// newMetrics registers all metrics against reg, letting tests use an
// isolated prometheus.NewRegistry() instead of colliding on repeated
// registration against the process-wide default registry.
func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LoopIterations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_loop_iterations_total",
				Help: "Total number of agent-loop turns by outcome",
			},
			[]string{"outcome"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		LLMCostUSD: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_llm_cost_usd_total",
				Help: "Estimated LLM API cost in USD",
			},
			[]string{"provider", "model"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		RetryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_retry_attempts_total",
				Help: "Total number of retry attempts by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		CompactionRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_compaction_runs_total",
				Help: "Total number of compaction passes by outcome",
			},
			[]string{"outcome"},
		),

		CompactionTokensReclaimed: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentcore_compaction_tokens_reclaimed",
				Help:    "Tokens discarded per successful compaction pass",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
		),

		ContextWindowUsed: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_context_window_tokens",
				Help:    "Context window tokens used",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
			[]string{"provider", "model"},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		RunAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_run_attempts_total",
				Help: "Total number of run attempts by status",
			},
			[]string{"status"},
		),
	}
}

// RecordLoopIteration records one agent-loop turn outcome.
//
// Example:
//
//	metrics.RecordLoopIteration("turn_bound_exceeded")
func (m *Metrics) RecordLoopIteration(outcome string) {
	m.LoopIterations.WithLabelValues(outcome).Inc()
}

// RecordLLMRequest records metrics for an LLM API request.
//
// Example:
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-3-5-sonnet-latest", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordLLMCost records estimated API cost.
//
// Example:
//
//	metrics.RecordLLMCost("anthropic", "claude-3-5-sonnet-latest", 0.015)
func (m *Metrics) RecordLLMCost(provider, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("read_file", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordRetry records one retry attempt's outcome.
//
// Example:
//
//	metrics.RecordRetry("provider_stream", "retried")
//	metrics.RecordRetry("provider_stream", "exhausted")
func (m *Metrics) RecordRetry(operation, outcome string) {
	m.RetryAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordCompaction records one compaction pass's outcome and, when it
// committed, how many tokens it reclaimed.
//
// Example:
//
//	metrics.RecordCompaction("committed", 42000)
//	metrics.RecordCompaction("cannot_compact", 0)
func (m *Metrics) RecordCompaction(outcome string, tokensReclaimed int) {
	m.CompactionRuns.WithLabelValues(outcome).Inc()
	if outcome == "committed" {
		m.CompactionTokensReclaimed.Observe(float64(tokensReclaimed))
	}
}

// RecordContextWindow records context window utilization.
//
// Example:
//
//	metrics.RecordContextWindow("anthropic", "claude-3-5-sonnet-latest", 45000)
func (m *Metrics) RecordContextWindow(provider, model string, tokensUsed int) {
	m.ContextWindowUsed.WithLabelValues(provider, model).Observe(float64(tokensUsed))
}

// RecordError increments the error counter for a given component and
// error type.
//
// Example:
//
//	metrics.RecordError("loop", "turn_bound_exceeded")
//	metrics.RecordError("provider", "rate_limited")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// RecordRunAttempt records a run attempt.
//
// Example:
//
//	metrics.RecordRunAttempt("success")
//	metrics.RecordRunAttempt("retry")
//	metrics.RecordRunAttempt("failed")
func (m *Metrics) RecordRunAttempt(status string) {
	m.RunAttempts.WithLabelValues(status).Inc()
}
