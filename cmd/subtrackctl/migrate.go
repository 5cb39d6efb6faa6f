package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"subtrack/internal/backend"
	"subtrack/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Bring the SQLite schema up to date. With --status only the applied version is printed.",
		RunE:  runMigrate,
	}
	cmd.Flags().Bool("status", false, "show the applied schema version without migrating")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if cfg.DataBackend != string(backend.SQLiteBackend) {
		return fmt.Errorf("migrate needs the sqlite backend, DATA_BACKEND is %q", cfg.DataBackend)
	}
	status, _ := cmd.Flags().GetBool("status")

	if !status {
		logger.Info("Running database migrations", "database", cfg.SQLiteDBPath)
		if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
			return err
		}
	}

	version, dirty, err := storage.MigrationVersion(cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database: %s\nschema version: %d\n", cfg.SQLiteDBPath, version)
	if dirty {
		fmt.Fprintln(cmd.OutOrStdout(), "warning: schema is dirty, a previous migration failed midway")
	}
	return nil
}
