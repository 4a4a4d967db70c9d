// Package main provides the CLI entry point for the agentcore runtime.
//
// agentcore drives the turn-by-turn agent loop (§4.2) against a
// provider-agnostic session file (§4.6) and inspects or edits that file
// directly — there is no server process and no channel adapter; every
// subcommand runs once and exits.
//
// # Basic usage
//
// Run a single turn against a session:
//
//	agentcore run --session ./sess.jsonl --model claude-3-5-sonnet-latest --message "hello"
//
// Inspect a session's reconstructed context or branch tree:
//
//	agentcore session inspect --session ./sess.jsonl
//	agentcore session inspect --session ./sess.jsonl --tree
//
// Force a compaction pass, or move the leaf cursor to an earlier entry:
//
//	agentcore session compact --session ./sess.jsonl --model claude-3-5-sonnet-latest
//	agentcore session branch --session ./sess.jsonl --to <entry-id>
//
// # Environment variables
//
// Provider credentials fall back to the environment when no config file
// or API-key store entry supplies one: ANTHROPIC_API_KEY, OPENAI_API_KEY,
// GOOGLE_API_KEY.
package main

import (
	"fmt"
	"os"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
