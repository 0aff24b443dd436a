package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fimlm/myidmji/internal/config"
	"github.com/fimlm/myidmji/internal/database"
	"github.com/fimlm/myidmji/internal/repository"
	"github.com/fimlm/myidmji/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "myidmji",
		Short: "Registration and check-in service for multi-church gatherings",
		Long: `myidmji admits attendees against event quotas, checks them in at the door,
and keeps the per-church quota ledger consistent.

Without a subcommand it runs the HTTP server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd.RunE(cmd, args)
		},
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: LOG_LEVEL or info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: LOG_FORMAT or json)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(duplicatesCmd)
	rootCmd.AddCommand(reconcileCmd)
}

// bootstrap loads configuration, applies the global flags and builds the logger.
func bootstrap() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, config.NewLogger(cfg.Logging), nil
}

// openService connects to the database and builds the service for one-shot
// maintenance commands. The caller closes the pool.
func openService(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*service.Service, *pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return service.New(repository.NewStore(pool)), pool, nil
}
