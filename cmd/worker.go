package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/app"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the ingestion worker pool",
	Long: `worker pulls ingestion jobs from the Redis queue and runs the
pipeline: chunking, embedding, vector and graph indexing. Multiple
worker processes may run against the same queue; the visibility-timeout
lease guarantees each job is processed by one worker at a time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close(context.Background())

	w, err := a.NewWorker()
	if err != nil {
		return fmt.Errorf("creating worker: %w", err)
	}
	return w.Run(ctx)
}
