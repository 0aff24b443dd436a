package main

import (
	"context"

	"github.com/fimlm/myidmji/internal/database"
	"github.com/spf13/cobra"
)

var (
	downSteps int

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations, including the job queue tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			if err := database.MigrateUp(cfg.Database.DSN()); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, err := database.NewPool(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.MigrateRiver(ctx, pool); err != nil {
				return err
			}
			logger.Info().Msg("migrations applied")
			return nil
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			if err := database.MigrateDown(cfg.Database.DSN(), downSteps); err != nil {
				return err
			}
			logger.Info().Int("steps", downSteps).Msg("migrations rolled back")
			return nil
		},
	}
)

func init() {
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}
