package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to keep command wiring testable.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentcore",
		Short: "agentcore - a provider-agnostic coding-agent runtime core",
		Long: `agentcore drives a turn-by-turn agent loop against a branched,
append-only session file and a configured LLM provider.

Supported providers: Anthropic Messages, OpenAI Chat Completions,
OpenAI Responses, and (as a domain-stack enrichment) Gemini.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildSessionCmd(),
	)
	return rootCmd
}

func buildRunCmd() *cobra.Command {
	var (
		configPath string
		sessionPath string
		model       string
		message     string
		cwd         string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive one user turn through the agent loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, runRunOpts{
				configPath:  configPath,
				sessionPath: sessionPath,
				model:       model,
				message:     message,
				cwd:         cwd,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&sessionPath, "session", "", "Path to the session file (created if absent)")
	cmd.Flags().StringVar(&model, "model", "", "Model ID to drive this turn with")
	cmd.Flags().StringVar(&message, "message", "", "User message text for this turn")
	cmd.Flags().StringVar(&cwd, "cwd", ".", "Working directory recorded in a freshly created session's Header entry")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("model")
	cmd.MarkFlagRequired("message")
	return cmd
}

func buildSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and edit session files directly",
	}
	cmd.AddCommand(
		buildSessionInspectCmd(),
		buildSessionCompactCmd(),
		buildSessionBranchCmd(),
	)
	return cmd
}

func buildSessionInspectCmd() *cobra.Command {
	var (
		sessionPath string
		model       string
		tree        bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a session's reconstructed context, or its branch tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionInspect(cmd, runSessionInspectOpts{
				sessionPath: sessionPath,
				model:       model,
				tree:        tree,
			})
		},
	}
	cmd.Flags().StringVar(&sessionPath, "session", "", "Path to the session file")
	cmd.Flags().StringVar(&model, "model", "", "Model ID to report compaction status against (optional)")
	cmd.Flags().BoolVar(&tree, "tree", false, "Print the branch tree (ids + kinds only) instead of the reconstructed context")
	cmd.MarkFlagRequired("session")
	return cmd
}

func buildSessionCompactCmd() *cobra.Command {
	var (
		configPath  string
		sessionPath string
		model       string
	)
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Force a compaction pass over a session's current branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionCompact(cmd, runSessionCompactOpts{
				configPath:  configPath,
				sessionPath: sessionPath,
				model:       model,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&sessionPath, "session", "", "Path to the session file")
	cmd.Flags().StringVar(&model, "model", "", "Model ID whose provider summarizes the discarded portion")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("model")
	return cmd
}

func buildSessionBranchCmd() *cobra.Command {
	var (
		sessionPath string
		to          string
	)
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Move a session's leaf cursor to an existing entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionBranch(cmd, sessionPath, to)
		},
	}
	cmd.Flags().StringVar(&sessionPath, "session", "", "Path to the session file")
	cmd.Flags().StringVar(&to, "to", "", "Entry ID to set as the new leaf")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("to")
	return cmd
}
