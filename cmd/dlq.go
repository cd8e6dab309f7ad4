package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/app"
)

var dlqLimit int

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List dead-lettered ingestion jobs",
	Long: `dlq prints ingestion jobs that exhausted their retry budget,
newest first, together with the current queue depth. Re-submit a
document with "ragline ingest" or the re-ingest API after fixing the
underlying failure.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDLQ()
	},
}

func init() {
	dlqCmd.Flags().IntVar(&dlqLimit, "limit", 50, "maximum entries to list")
	rootCmd.AddCommand(dlqCmd)
}

func runDLQ() error {
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

	stats, err := a.Broker.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading queue stats: %w", err)
	}
	fmt.Printf("queue: %d pending, %d delayed, %d in flight\n\n", stats.Pending, stats.Delayed, stats.InFlight)

	letters, err := a.Store.ListDeadLetters(ctx, dlqLimit)
	if err != nil {
		return fmt.Errorf("listing dead letters: %w", err)
	}
	if len(letters) == 0 {
		fmt.Println("no dead letters")
		return nil
	}
	for _, dl := range letters {
		fmt.Printf("%s  document=%s attempts=%d  %s\n",
			dl.CreatedAt.Format("2006-01-02 15:04:05"), dl.DocumentID, dl.Attempts, dl.LastError)
	}
	return nil
}
