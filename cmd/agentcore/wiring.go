package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentcore/runtime/internal/agentloop"
	"github.com/agentcore/runtime/internal/apikey"
	"github.com/agentcore/runtime/internal/config"
	"github.com/agentcore/runtime/internal/modelcatalog"
	"github.com/agentcore/runtime/internal/observability"
	"github.com/agentcore/runtime/internal/provider"
	"github.com/agentcore/runtime/internal/session"
	"github.com/agentcore/runtime/internal/sessionindex"
	"github.com/agentcore/runtime/internal/tool"
	"github.com/agentcore/runtime/internal/toolsafety"
	"github.com/agentcore/runtime/pkg/models"
)

// defaultConfigPath is the --config flag's default value, also used by
// subcommands that don't expose a --config flag of their own (session
// inspect/branch need only the ambient config's session-index setting).
const defaultConfigPath = "agentcore.yaml"

// loadConfigOrDefault behaves like config.Load, except a missing config
// file (the common case for agentcore.yaml's own default path) yields an
// empty Config instead of an error — every Config field degrades to a
// workable default, so "no config file" and "default config file" mean
// the same thing.
func loadConfigOrDefault(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// resolveModel looks up id first against configured provider overrides,
// then modelcatalog's built-in table, the same order the agent loop
// expects: an explicit config entry always wins over a baked-in default.
func resolveModel(cfg *config.Config, id string) (models.LLMModel, error) {
	if entry, ok := modelcatalog.Get(id); ok {
		model := entry.Model
		if pc, ok := cfg.ProviderByName(model.Provider); ok && pc.BaseURL != "" {
			model.BaseURL = pc.BaseURL
		}
		return model, nil
	}
	for _, pc := range cfg.Providers {
		if pc.DefaultModel == id {
			return models.LLMModel{
				ID:       id,
				Api:      models.Api(pc.Api),
				Provider: pc.Provider,
				BaseURL:  pc.BaseURL,
			}, nil
		}
	}
	return models.LLMModel{}, fmt.Errorf("agentcore: unknown model %q (not in the built-in catalog or any configured provider)", id)
}

// buildProviderRegistry constructs every adapter this runtime knows how to
// speak, registering each one only if a credential resolves for its
// provider name -- a model that names an unconfigured provider surfaces as
// a provider.KindNoProvider error at Stream time, not a startup failure,
// since a single CLI invocation only ever exercises one model.
func buildProviderRegistry(ctx context.Context, cfg *config.Config) (*provider.Registry, error) {
	storePath := cfg.APIKeyStorePath
	if storePath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			storePath = filepath.Join(home, ".agentcore", "apikeys.json")
		}
	}
	store, err := apikey.Open(storePath)
	if err != nil {
		return nil, fmt.Errorf("agentcore: open API key store: %w", err)
	}
	resolver := apikey.NewStaticResolver(store, nil)
	registry := provider.NewRegistry()

	if cred, err := resolver.Resolve(ctx, "anthropic"); err == nil {
		registry.Register(provider.NewAnthropicProvider(cred.APIKey, cred.BaseURL))
	}
	if cred, err := resolver.Resolve(ctx, "openai"); err == nil {
		registry.Register(provider.NewOpenAIChatProvider(cred.APIKey, cred.BaseURL))
		registry.Register(provider.NewOpenAIResponsesProvider(cred.APIKey, cred.BaseURL))
	}
	if cred, err := resolver.Resolve(ctx, "google"); err == nil {
		gemini, err := provider.NewGeminiProvider(ctx, cred.APIKey)
		if err != nil {
			return nil, fmt.Errorf("agentcore: construct gemini provider: %w", err)
		}
		registry.Register(gemini)
	}
	return registry, nil
}

// buildPermissionFunc turns a ToolSafetyConfig's name-based overrides plus
// toolsafety's pattern classification into the agent loop's PermissionFunc.
// A config override always takes precedence over pattern classification;
// among patterns, the shell-command and path-write classifications are
// merged to the more restrictive of the two when a call's arguments
// supply both a "command" and a "path" field.
func buildPermissionFunc(cfg config.ToolSafetyConfig) agentloop.PermissionFunc {
	overrides := map[string]toolsafety.Decision{}
	for _, name := range cfg.AlwaysAllow {
		overrides[name] = toolsafety.DecisionAllow
	}
	for _, name := range cfg.AlwaysConfirm {
		overrides[name] = toolsafety.DecisionNeedsConfirmation
	}
	for _, name := range cfg.AlwaysBlock {
		overrides[name] = toolsafety.DecisionBlock
	}

	return func(ctx context.Context, call models.ToolCall) agentloop.PermissionResult {
		if d, ok := overrides[call.Name]; ok {
			return permissionResultFor(d, "configured override for "+call.Name)
		}

		decision := toolsafety.DecisionAllow
		if command, ok := call.Arguments["command"].(string); ok {
			decision = toolsafety.Merge(decision, toolsafety.ClassifyShellCommand(command))
		}
		if path, ok := call.Arguments["path"].(string); ok {
			decision = toolsafety.Merge(decision, toolsafety.ClassifyPathWrite(path))
		}
		return permissionResultFor(decision, "pattern classification for "+call.Name)
	}
}

func permissionResultFor(d toolsafety.Decision, reason string) agentloop.PermissionResult {
	switch d {
	case toolsafety.DecisionBlock:
		return agentloop.PermissionResult{Outcome: agentloop.PermissionDeny, Reason: reason}
	case toolsafety.DecisionNeedsConfirmation:
		return agentloop.PermissionResult{Outcome: agentloop.PermissionNeedsConfirmation, Reason: reason}
	default:
		return agentloop.PermissionResult{Outcome: agentloop.PermissionAllow}
	}
}

// openStore opens the session file, wiring a sqlite index alongside it
// when cfg names one.
func openStore(cfg *config.Config, path, sessionID, cwd, parentSession string) (*session.Store, error) {
	store, err := session.Open(path, sessionID, cwd, parentSession)
	if err != nil {
		return nil, err
	}
	if cfg.SessionIndexPath == "" {
		return store, nil
	}
	idx, err := sessionindex.Open(cfg.SessionIndexPath)
	if err != nil {
		return nil, fmt.Errorf("agentcore: open session index: %w", err)
	}
	store.WithIndex(idx)
	return store, nil
}

// buildObservability constructs the logger every subcommand uses, a
// Metrics instance when cfg.Observability.MetricsEnabled is set, and a
// Tracer when cfg.Observability.TraceEndpoint names a collector. The
// returned shutdown func flushes the tracer's exporter and must be called
// before the process exits; it is a no-op when tracing was never enabled.
// A single CLI invocation runs exactly one subcommand, so registering
// Metrics against the Prometheus default registry here is safe -- there is
// no second call in the same process to collide with.
func buildObservability(cfg *config.Config) (*observability.Logger, *observability.Metrics, *observability.Tracer, func(context.Context) error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics()
	}
	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:  "agentcore",
		Endpoint:     cfg.Observability.TraceEndpoint,
		SamplingRate: cfg.Observability.SamplingRate,
	})
	return logger, metrics, tracer, shutdown
}

// newToolRegistry returns an empty tool registry. Built-in tool
// implementations (shelling out, reading/writing files) are outside this
// runtime's scope -- a host embedding this core registers its own
// tool.Tool implementations before driving the loop; the CLI offers none
// by default, so a run with no tools configured simply produces a
// text-only turn.
func newToolRegistry() *tool.Registry {
	return tool.NewRegistry()
}
