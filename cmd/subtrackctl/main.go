package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"subtrack/internal/cli"
	"subtrack/internal/config"
	applog "subtrack/internal/log"
)

var (
	cfg     *config.Config
	logger  *applog.Logger
	rootCmd = &cobra.Command{
		Use:   "subtrackctl",
		Short: "Administer a subtrack installation",
		Long: `subtrackctl runs maintenance tasks against the configured store:
schema migrations, exchange rate lookups, per-user summaries and
one-off spreadsheet syncs. It reads the same environment as the server.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(ratesCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(syncCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()
	cfg = config.Load()

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger = cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	return nil
}
