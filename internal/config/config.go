package config

import (
	"fmt"
	"time"

	"github.com/agentcore/runtime/internal/retry"
	"github.com/agentcore/runtime/pkg/models"
)

// ProviderConfig names one provider this runtime can drive: the wire
// protocol it speaks, its base URL (empty uses the provider adapter's
// built-in default), and the models.Api worth of credentials it needs.
// Actual API keys never live here — they're resolved at request time
// through internal/apikey, keyed by Provider.
type ProviderConfig struct {
	Provider     string `yaml:"provider"`
	Api          string `yaml:"api"`
	BaseURL      string `yaml:"base_url,omitempty"`
	DefaultModel string `yaml:"default_model,omitempty"`
}

// RetryConfig mirrors internal/retry.Config in YAML-friendly form.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts,omitempty"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
	MaxDelay     time.Duration `yaml:"max_delay,omitempty"`
	Factor       float64       `yaml:"factor,omitempty"`
	Jitter       bool          `yaml:"jitter,omitempty"`
}

// AsRetryConfig converts to the type internal/retry.Do consumes, falling
// back to retry.ProviderRetryConfig() for any field left at its zero
// value.
func (r RetryConfig) AsRetryConfig() retry.Config {
	base := retry.ProviderRetryConfig()
	if r.MaxAttempts > 0 {
		base.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelay > 0 {
		base.InitialDelay = r.InitialDelay
	}
	if r.MaxDelay > 0 {
		base.MaxDelay = r.MaxDelay
	}
	if r.Factor > 0 {
		base.Factor = r.Factor
	}
	base.Jitter = r.Jitter
	return base
}

// CompactionConfig configures when and how much a Compactor reclaims.
// Field names mirror internal/compaction.Config; kept separate so this
// package has no import-time dependency on the compaction package's
// Estimate function type.
type CompactionConfig struct {
	ReserveTokens    int `yaml:"reserve_tokens,omitempty"`
	KeepRecentTokens int `yaml:"keep_recent_tokens,omitempty"`
}

// ToolSafetyConfig layers config-driven overrides on top of
// internal/toolsafety's built-in pattern classification. A tool name
// listed in more than one slice resolves via toolsafety.Merge, which
// always prefers the more restrictive decision.
type ToolSafetyConfig struct {
	AlwaysAllow   []string `yaml:"always_allow,omitempty"`
	AlwaysConfirm []string `yaml:"always_confirm,omitempty"`
	AlwaysBlock   []string `yaml:"always_block,omitempty"`
}

// LoggingConfig configures internal/observability.NewLogger.
type LoggingConfig struct {
	Level     string `yaml:"level,omitempty"`
	Format    string `yaml:"format,omitempty"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// ObservabilityConfig configures metrics and tracing wiring.
type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled,omitempty"`
	TraceEndpoint  string `yaml:"trace_endpoint,omitempty"`
	SamplingRate   float64 `yaml:"sampling_rate,omitempty"`
}

// Config is the root runtime configuration, loaded from YAML (optionally
// JSON5) via LoadRaw's $include and ${VAR} expansion. Every field has a
// zero value that degrades to a workable default, so a minimal config
// file only needs to set what it wants to override.
type Config struct {
	Providers []ProviderConfig `yaml:"providers,omitempty"`

	TurnBound int `yaml:"turn_bound,omitempty"`
	MaxTokens int `yaml:"max_tokens,omitempty"`

	Retry      RetryConfig       `yaml:"retry,omitempty"`
	Compaction CompactionConfig  `yaml:"compaction,omitempty"`
	ToolSafety ToolSafetyConfig  `yaml:"tool_safety,omitempty"`
	Logging    LoggingConfig     `yaml:"logging,omitempty"`
	Observability ObservabilityConfig `yaml:"observability,omitempty"`

	// APIKeyStorePath is the path to the internal/apikey JSON-array
	// credential store. Defaults to "~/.agentcore/apikeys.json" when empty.
	APIKeyStorePath string `yaml:"api_key_store_path,omitempty"`

	// SessionIndexPath is the path to the optional sqlite session index.
	// Empty disables the index; session history still lives in the
	// append-only file store regardless.
	SessionIndexPath string `yaml:"session_index_path,omitempty"`
}

// Load reads path (resolving $include directives and ${VAR} expansion)
// and decodes it into a Config.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ProviderByName returns the configured provider entry matching name, or
// false if none is configured (the caller should fall back to
// internal/modelcatalog's built-in defaults).
func (c *Config) ProviderByName(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Provider == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// DefaultThinkingLevel is the thinking level a Config applies when a
// session doesn't request one explicitly.
func DefaultThinkingLevel() models.ThinkingLevel {
	return models.ThinkingOff
}
