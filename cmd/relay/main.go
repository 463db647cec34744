// Package main provides the CLI entry point for relay, the local
// multi-model inference router and tool-dispatch engine.
//
// # Basic Usage
//
// Start the server (Telegram front-end plus metrics endpoint):
//
//	relay serve --config relay.yaml
//
// Route a single request from the command line:
//
//	relay ask "write a haiku about channels"
//
// Inspect the configured models and their health:
//
//	relay models
//	relay health
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "relay - local multi-model router and tool dispatcher",
		Long: `Relay classifies requests, routes them to the best local model
(Ollama, OpenAI-compatible servers, or in-process runtimes), and runs
manifest-validated tools behind an approval gate.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildAskCmd(),
		buildModelsCmd(),
		buildToolsCmd(),
		buildHealthCmd(),
		buildStatsCmd(),
	)
	return rootCmd
}
