package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/app"
	"github.com/ragline/ragline/internal/queue"
)

var ingestWait bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Submit documents for ingestion",
	Long: `ingest reads each file, stores it as a pending document and
enqueues an ingestion job. With --wait the documents are processed
synchronously in this process instead of by a separate worker.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestWait, "wait", false, "process documents in this process instead of enqueueing")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(paths []string) error {
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

	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		doc, err := a.Store.CreateDocument(ctx, "file://"+abs, string(content))
		if err != nil {
			return fmt.Errorf("storing %s: %w", path, err)
		}

		if ingestWait {
			if err := a.Pipeline.Process(ctx, doc.ID); err != nil {
				return fmt.Errorf("ingesting %s: %w", path, err)
			}
			fmt.Printf("%s indexed (%s)\n", path, doc.ID)
			continue
		}

		if err := a.Broker.Enqueue(ctx, queue.NewJob(doc.ID)); err != nil {
			return fmt.Errorf("enqueueing %s: %w", path, err)
		}
		fmt.Printf("%s submitted (%s)\n", path, doc.ID)
	}
	return nil
}
