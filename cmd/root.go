// Package cmd contains the CLI entry points: the HTTP API server, the
// ingestion worker, one-shot document ingestion and schema migration.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "ragline",
	Short: "Retrieval-augmented generation backend",
	Long: `ragline is the retrieval backend for a conversational AI app.

It assembles chat context from a vector index and a knowledge graph,
generates answers through an OpenAI-compatible endpoint and ingests
documents asynchronously through a Redis-backed job queue.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads and validates configuration for a subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the environment.
// RAGLINE_LOG_LEVEL selects the level; RAGLINE_LOG_JSON enables JSON output.
func newLogger() log.Logger {
	level := slog.LevelInfo
	switch os.Getenv("RAGLINE_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return log.New(log.Config{
		Level: level,
		JSON:  os.Getenv("RAGLINE_LOG_JSON") == "true",
	})
}
