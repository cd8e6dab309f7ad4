package cmd

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestRootCommandWiring(t *testing.T) {
	if rootCmd.Use != "ragline" {
		t.Errorf("expected Use=%q, got %q", "ragline", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("expected non-empty Short description")
	}
	if rootCmd.Long == "" {
		t.Error("expected non-empty Long description")
	}
	if !rootCmd.SilenceUsage {
		t.Error("expected SilenceUsage so runtime errors do not print usage")
	}

	for _, expected := range []string{"retrieval", "vector", "graph"} {
		if !strings.Contains(strings.ToLower(rootCmd.Short), expected) &&
			!strings.Contains(strings.ToLower(rootCmd.Long), expected) {
			t.Errorf("expected description to mention %q", expected)
		}
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	expected := []string{"serve", "worker", "ingest", "dlq", "migrate", "version"}
	for _, name := range expected {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestNewLoggerLevelFromEnvironment(t *testing.T) {
	tests := []struct {
		level       string
		debugOn     bool
		warnEnabled bool
	}{
		{"debug", true, true},
		{"", false, true},
		{"error", false, false},
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			t.Setenv("RAGLINE_LOG_LEVEL", tt.level)
			logger := newLogger()

			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.debugOn {
				t.Errorf("debug enabled = %v, want %v", got, tt.debugOn)
			}
			if got := logger.Enabled(context.Background(), slog.LevelWarn); got != tt.warnEnabled {
				t.Errorf("warn enabled = %v, want %v", got, tt.warnEnabled)
			}
		})
	}
}
