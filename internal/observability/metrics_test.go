package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return newMetrics(prometheus.NewRegistry())
}

func TestNewMetricsRegistersWithoutPanicking(t *testing.T) {
	m := newTestMetrics(t)
	if m.LoopIterations == nil || m.LLMRequestCounter == nil || m.CompactionRuns == nil {
		t.Fatal("expected NewMetrics to populate every metric field")
	}
}

func TestRecordLoopIteration(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordLoopIteration("done")
	m.RecordLoopIteration("done")
	m.RecordLoopIteration("turn_bound_exceeded")

	expected := `
		# HELP agentcore_loop_iterations_total Total number of agent-loop turns by outcome
		# TYPE agentcore_loop_iterations_total counter
		agentcore_loop_iterations_total{outcome="done"} 2
		agentcore_loop_iterations_total{outcome="turn_bound_exceeded"} 1
	`
	if err := testutil.CollectAndCompare(m.LoopIterations, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestRecordLLMRequest(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordLLMRequest("anthropic", "claude-3-5-sonnet-latest", "success", 1.5, 100, 500)
	m.RecordLLMRequest("anthropic", "claude-3-5-sonnet-latest", "error", 0.2, 0, 0)

	if count := testutil.CollectAndCount(m.LLMRequestCounter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}

	expectedTokens := `
		# HELP agentcore_llm_tokens_total Total number of tokens used by provider, model, and type
		# TYPE agentcore_llm_tokens_total counter
		agentcore_llm_tokens_total{model="claude-3-5-sonnet-latest",provider="anthropic",type="completion"} 500
		agentcore_llm_tokens_total{model="claude-3-5-sonnet-latest",provider="anthropic",type="prompt"} 100
	`
	if err := testutil.CollectAndCompare(m.LLMTokensUsed, strings.NewReader(expectedTokens)); err != nil {
		t.Errorf("unexpected token metric value: %v", err)
	}
}

func TestRecordLLMRequestSkipsZeroTokenObservations(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordLLMRequest("openai", "gpt-4o", "error", 0.1, 0, 0)

	if count := testutil.CollectAndCount(m.LLMTokensUsed); count != 0 {
		t.Errorf("expected no token observations for a zero-token request, got %d", count)
	}
}

func TestRecordLLMCost(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordLLMCost("anthropic", "claude-3-5-sonnet-latest", 0.015)
	m.RecordLLMCost("anthropic", "claude-3-5-sonnet-latest", 0.005)

	expected := `
		# HELP agentcore_llm_cost_usd_total Estimated LLM API cost in USD
		# TYPE agentcore_llm_cost_usd_total counter
		agentcore_llm_cost_usd_total{model="claude-3-5-sonnet-latest",provider="anthropic"} 0.02
	`
	if err := testutil.CollectAndCompare(m.LLMCostUSD, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestRecordToolExecution(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordToolExecution("read_file", "success", 0.01)
	m.RecordToolExecution("read_file", "success", 0.02)
	m.RecordToolExecution("shell", "error", 1.5)

	if count := testutil.CollectAndCount(m.ToolExecutionCounter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
}

func TestRecordRetry(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordRetry("provider_stream", "retried")
	m.RecordRetry("provider_stream", "exhausted")

	expected := `
		# HELP agentcore_retry_attempts_total Total number of retry attempts by operation and outcome
		# TYPE agentcore_retry_attempts_total counter
		agentcore_retry_attempts_total{operation="provider_stream",outcome="exhausted"} 1
		agentcore_retry_attempts_total{operation="provider_stream",outcome="retried"} 1
	`
	if err := testutil.CollectAndCompare(m.RetryAttempts, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestRecordCompactionOnlyObservesTokensWhenCommitted(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordCompaction("committed", 42000)
	m.RecordCompaction("cannot_compact", 0)

	if count := testutil.CollectAndCount(m.CompactionRuns); count != 2 {
		t.Errorf("expected 2 outcomes recorded, got %d", count)
	}
	if count := testutil.CollectAndCount(m.CompactionTokensReclaimed); count != 1 {
		t.Errorf("expected exactly 1 histogram observation (only the committed run), got %d", count)
	}
}

func TestRecordContextWindow(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordContextWindow("anthropic", "claude-3-5-sonnet-latest", 45000)

	if count := testutil.CollectAndCount(m.ContextWindowUsed); count != 1 {
		t.Errorf("expected 1 observation, got %d", count)
	}
}

func TestRecordError(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordError("loop", "turn_bound_exceeded")
	m.RecordError("loop", "turn_bound_exceeded")
	m.RecordError("provider", "rate_limited")

	expected := `
		# HELP agentcore_errors_total Total number of errors by component and error type
		# TYPE agentcore_errors_total counter
		agentcore_errors_total{component="loop",error_type="turn_bound_exceeded"} 2
		agentcore_errors_total{component="provider",error_type="rate_limited"} 1
	`
	if err := testutil.CollectAndCompare(m.ErrorCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestRecordRunAttempt(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordRunAttempt("success")
	m.RecordRunAttempt("retry")
	m.RecordRunAttempt("retry")

	expected := `
		# HELP agentcore_run_attempts_total Total number of run attempts by status
		# TYPE agentcore_run_attempts_total counter
		agentcore_run_attempts_total{status="retry"} 2
		agentcore_run_attempts_total{status="success"} 1
	`
	if err := testutil.CollectAndCompare(m.RunAttempts, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}
