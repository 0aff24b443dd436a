package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fimlm/myidmji/internal/auth"
	"github.com/fimlm/myidmji/internal/database"
	"github.com/fimlm/myidmji/internal/handler"
	"github.com/fimlm/myidmji/internal/jobs"
	"github.com/fimlm/myidmji/internal/metrics"
	"github.com/fimlm/myidmji/internal/repository"
	"github.com/fimlm/myidmji/internal/service"
	"github.com/spf13/cobra"
)

var (
	migrateOnStart bool
	noJobs         bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", true, "apply pending migrations before serving")
	serveCmd.Flags().BoolVar(&noJobs, "no-jobs", false, "do not run background workers")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	if err := cfg.RequireAuth(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── 1. Database ───────────────────────────────────────────────────────
	if migrateOnStart {
		if err := database.MigrateUp(cfg.Database.DSN()); err != nil {
			return err
		}
		logger.Info().Msg("schema migrations applied")
	}
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info().Int("max_conns", cfg.Database.MaxConns).Dur("lock_timeout", cfg.Database.LockTimeout).Msg("connected to PostgreSQL")

	if migrateOnStart {
		if err := database.MigrateRiver(ctx, pool); err != nil {
			return err
		}
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	svc := service.New(repository.NewStore(pool))
	go metrics.NewDBCollector(pool).Start(ctx, 15*time.Second)

	var queue handler.CleanupQueue
	if !noJobs {
		riverLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		client, err := jobs.NewClient(pool, jobs.NewWorkers(svc, logger), riverLogger, jobs.NewPeriodicJobs(cfg.Jobs.ReconcileInterval))
		if err != nil {
			return fmt.Errorf("create job client: %w", err)
		}
		if err := client.Start(ctx); err != nil {
			return fmt.Errorf("start job client: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Stop(stopCtx); err != nil {
				logger.Error().Err(err).Msg("job client stop failed")
			}
		}()
		queue = jobs.Queue{Client: client}
		logger.Info().Dur("reconcile_interval", cfg.Jobs.ReconcileInterval).Msg("background workers started")
	}

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, 24*time.Hour, cfg.Auth.JWTIssuer)
	router := handler.NewRouter(handler.New(svc, queue), tokens, logger, pool)

	// ── 3. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
