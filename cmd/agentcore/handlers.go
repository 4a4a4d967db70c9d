package main

import (
	stdcontext "context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentcore/runtime/internal/agentloop"
	"github.com/agentcore/runtime/internal/compaction"
	ctxwindow "github.com/agentcore/runtime/internal/context"
	"github.com/agentcore/runtime/internal/observability"
	"github.com/agentcore/runtime/internal/provider"
	"github.com/agentcore/runtime/internal/retry"
	"github.com/agentcore/runtime/pkg/models"
)

type runRunOpts struct {
	configPath  string
	sessionPath string
	model       string
	message     string
	cwd         string
}

// runRun opens (or creates) the session named by opts.sessionPath, drives
// one user turn through the agent loop against the resolved model, and
// relays every Event to stdout as it arrives.
func runRun(cmd *cobra.Command, opts runRunOpts) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfigOrDefault(opts.configPath)
	if err != nil {
		return err
	}

	model, err := resolveModel(cfg, opts.model)
	if err != nil {
		return err
	}

	registry, err := buildProviderRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, opts.sessionPath, "", opts.cwd, "")
	if err != nil {
		return fmt.Errorf("agentcore: open session: %w", err)
	}
	defer store.Close()

	logger, metrics, tracer, shutdown := buildObservability(cfg)
	defer shutdown(ctx)
	loopCfg := agentloop.Config{
		TurnBound:  cfg.TurnBound,
		MaxTokens:  cfg.MaxTokens,
		Permission: buildPermissionFunc(cfg.ToolSafety),
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
	}
	loop := agentloop.New(registry, newToolRegistry(), store, loopCfg)

	events := loop.Run(ctx, model, models.NewUserMessage("", opts.message))
	return drainWithRetry(ctx, out, loop, model, events, cfg.Retry.AsRetryConfig(), metrics)
}

// drainWithRetry relays a run's events to out and implements the retry
// policy: when a run ends on a retryable provider error (StopReason=Error
// whose Err classifies as provider.ErrorKind.Retryable), it backs off
// exponentially and calls Loop.Continue to re-enter the inner loop with no
// new prompt, up to retryCfg.MaxAttempts -- a counter distinct from the
// loop's own turn bound.
func drainWithRetry(ctx stdcontext.Context, out io.Writer, loop *agentloop.Loop, model models.LLMModel, events <-chan agentloop.Event, retryCfg retry.Config, metrics *observability.Metrics) error {
	delay := retryCfg.InitialDelay
	for attempt := 1; ; attempt++ {
		var last agentloop.Event
		for ev := range events {
			if err := printEvent(out, ev); err != nil {
				return err
			}
			last = ev
		}
		if last.Kind != agentloop.EventAgentEnd || last.StopReason != models.StopReasonError {
			return nil
		}
		perr, ok := last.Err.(*provider.Error)
		if !ok || !perr.Kind.Retryable() || attempt >= retryCfg.MaxAttempts {
			if metrics != nil && ok {
				metrics.RecordRetry("provider_stream", "exhausted")
			}
			return nil
		}
		if metrics != nil {
			metrics.RecordRetry("provider_stream", "retried")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * retryCfg.Factor)
		if delay > retryCfg.MaxDelay {
			delay = retryCfg.MaxDelay
		}
		events = loop.Continue(ctx, model)
	}
}

// printEvent renders one agentloop.Event to out in the terse streaming
// style a terminal user expects: text/thinking deltas print raw, tool and
// turn boundaries print a bracketed marker line.
func printEvent(out io.Writer, ev agentloop.Event) error {
	switch ev.Kind {
	case agentloop.EventTextDelta:
		_, err := fmt.Fprint(out, ev.Delta)
		return err
	case agentloop.EventThinkingDelta:
		_, err := fmt.Fprint(out, ev.Delta)
		return err
	case agentloop.EventToolStart:
		_, err := fmt.Fprintf(out, "\n[tool: %s]\n", ev.ToolName)
		return err
	case agentloop.EventToolResult:
		status := "ok"
		if ev.ToolResult.IsError {
			status = "error"
		}
		_, err := fmt.Fprintf(out, "[tool result: %s (%s)]\n", ev.ToolName, status)
		return err
	case agentloop.EventTurnEnd:
		_, err := fmt.Fprintf(out, "\n")
		return err
	case agentloop.EventAgentEnd:
		if ev.Err != nil {
			_, err := fmt.Fprintf(out, "\n[agent end: %s (%v)]\n", ev.StopReason, ev.Err)
			return err
		}
		_, err := fmt.Fprintf(out, "\n[agent end: %s]\n", ev.StopReason)
		return err
	case agentloop.EventError:
		_, err := fmt.Fprintf(out, "\n[error: %v]\n", ev.Err)
		return err
	}
	return nil
}

type runSessionInspectOpts struct {
	sessionPath string
	model       string
	tree        bool
}

// runSessionInspect prints either the branch tree (--tree) or the
// reconstructed context of a session file, plus a compaction-status line
// when --model names a known model.
func runSessionInspect(cmd *cobra.Command, opts runSessionInspectOpts) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfigOrDefault(defaultConfigPath)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, opts.sessionPath, "", "", "")
	if err != nil {
		return fmt.Errorf("agentcore: open session: %w", err)
	}
	defer store.Close()

	if opts.tree {
		return printBranchTree(out, store.Entries())
	}

	messages, err := store.Reconstruct(ctx)
	if err != nil {
		return fmt.Errorf("agentcore: reconstruct: %w", err)
	}
	for _, m := range messages {
		fmt.Fprintf(out, "--- %s ---\n%s\n", m.Kind, m.Text())
	}

	if opts.model == "" {
		return nil
	}
	model, err := resolveModel(cfg, opts.model)
	if err != nil {
		return err
	}
	ctxTokens := 0
	for _, m := range messages {
		ctxTokens += compaction.EstimateTokens(m)
	}
	status := compaction.ComputeStatus(ctxTokens, model.ContextWindow, cfg.Compaction.ReserveTokens)

	window := ctxwindow.NewWindow(model.ContextWindow, "model")
	window.SetUsed(ctxTokens)
	fmt.Fprintf(out, "\ncontext window: %s\ncompaction would trigger: %v (threshold %d, overflow %d)\n",
		window.Info(), status.WouldTrigger, status.Threshold, status.TokensOverflow)
	return nil
}

// printBranchTree prints every entry in file order as id, kind, and
// parent id -- the minimal forest listing a host needs to find branch
// points without reimplementing chain-walking itself.
func printBranchTree(out io.Writer, entries []models.SessionEntry) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPARENT\tKIND")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ID, e.ParentID, e.EntryType)
	}
	return tw.Flush()
}

type runSessionCompactOpts struct {
	configPath  string
	sessionPath string
	model       string
}

// runSessionCompact forces one compaction.Compactor pass over a session's
// current branch, using the provider its model resolves to as the
// summarizer -- the same pathway a normal turn streams through.
func runSessionCompact(cmd *cobra.Command, opts runSessionCompactOpts) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfigOrDefault(opts.configPath)
	if err != nil {
		return err
	}
	model, err := resolveModel(cfg, opts.model)
	if err != nil {
		return err
	}
	registry, err := buildProviderRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	p, ok := registry.Resolve(model.Api)
	if !ok {
		return fmt.Errorf("agentcore: no provider registered for api %q", model.Api)
	}

	store, err := openStore(cfg, opts.sessionPath, "", "", "")
	if err != nil {
		return fmt.Errorf("agentcore: open session: %w", err)
	}
	defer store.Close()

	messages, entryIDs, err := store.ReconstructWithEntryIDs(ctx)
	if err != nil {
		return fmt.Errorf("agentcore: reconstruct: %w", err)
	}

	_, metrics, tracer, shutdown := buildObservability(cfg)
	defer shutdown(ctx)
	compactor := compaction.New(compaction.Config{
		ReserveTokens:    cfg.Compaction.ReserveTokens,
		KeepRecentTokens: cfg.Compaction.KeepRecentTokens,
		Metrics:          metrics,
		Tracer:           tracer,
	}, &compaction.ProviderSummarizer{Provider: p, Model: model})

	cut, err := compactor.Run(ctx, store, messages, entryIDs)
	if err != nil {
		return fmt.Errorf("agentcore: compact: %w", err)
	}
	fmt.Fprintf(out, "compacted %d messages, kept %d tokens of recent history\n", cut.SummarizedCount, cut.KeptTokens)
	return nil
}

// runSessionBranch reassigns the leaf cursor of a session file to an
// already-present entry ID.
func runSessionBranch(cmd *cobra.Command, sessionPath, to string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfigOrDefault(defaultConfigPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, sessionPath, "", "", "")
	if err != nil {
		return fmt.Errorf("agentcore: open session: %w", err)
	}
	defer store.Close()

	if err := store.Branch(to); err != nil {
		return fmt.Errorf("agentcore: branch: %w", err)
	}
	fmt.Fprintf(out, "leaf set to %s\n", to)
	return nil
}
