package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/lab-report-parser/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", a.db.Dialect)
		return nil
	},
}

var dbhealthCmd = &cobra.Command{
	Use:   "dbhealth",
	Short: "Check database connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		var db *repository.DB
		if inMemory {
			db, err = repository.OpenInMemory(ctx, logger)
		} else {
			db, err = repository.Open(ctx, cfg.Database, logger)
		}
		if err != nil {
			return fmt.Errorf("opening DB: %w", err)
		}
		defer db.Close()

		if err := db.HealthCheck(ctx, time.Second); err != nil {
			return fmt.Errorf("DB health: FAIL (%w)", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "DB health: OK (%s)\n", db.Dialect)
		return nil
	},
}
