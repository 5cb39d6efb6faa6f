package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"subtrack/internal/cli"
	"subtrack/internal/services"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Export pending subscriptions to the spreadsheet once",
		Long:  "Re-queue rows that previously failed and export one batch of pending rows, then exit.",
		RunE:  runSync,
	}
	cmd.Flags().Int("batch", 0, "rows to export (default SYNC_BATCH_SIZE)")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	batch, _ := cmd.Flags().GetInt("batch")
	if batch <= 0 {
		batch = cfg.SyncBatchSize
	}

	store, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Cleanup()

	exporter, err := cli.NewSheetExporter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reset, err := store.Store.ResetSyncErrors(ctx)
	if err != nil {
		return fmt.Errorf("reset sync errors: %w", err)
	}

	processor := services.NewSyncProcessor(store.Store, exporter, services.SyncProcessorConfig{
		BatchSize: batch,
	}, logger)
	exported := processor.ProcessBatch(ctx)

	fmt.Fprintf(cmd.OutOrStdout(), "re-queued: %d\nexported: %d\n", reset, exported)
	return nil
}
