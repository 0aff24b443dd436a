package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fimlm/myidmji/internal/jobs"
	"github.com/fimlm/myidmji/internal/model"
	"github.com/fimlm/myidmji/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	eventFlag    string
	enqueueFlag  bool
	dryRunReport bool

	duplicatesCmd = &cobra.Command{
		Use:   "duplicates",
		Short: "Find and remove attendees registered twice with the same document",
	}

	duplicatesReportCmd = &cobra.Command{
		Use:   "report",
		Short: "Print duplicate groups as JSON, for one event or all of them",
		RunE:  runDuplicatesReport,
	}

	duplicatesCleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Keep the newest attendee of each duplicate group and reconcile the ledger",
		RunE:  runDuplicatesCleanup,
	}

	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Recount attendees and repair drifted ledger rows",
		RunE:  runReconcile,
	}
)

func init() {
	duplicatesReportCmd.Flags().StringVar(&eventFlag, "event", "", "event id (default: every event)")
	duplicatesCleanupCmd.Flags().StringVar(&eventFlag, "event", "", "event id (required)")
	duplicatesCleanupCmd.Flags().BoolVar(&enqueueFlag, "enqueue", false, "queue the cleanup for the background worker instead of running it")
	duplicatesCleanupCmd.Flags().BoolVar(&dryRunReport, "dry-run", false, "only report what would be deleted")
	_ = duplicatesCleanupCmd.MarkFlagRequired("event")
	reconcileCmd.Flags().StringVar(&eventFlag, "event", "", "event id (default: every event)")

	duplicatesCmd.AddCommand(duplicatesReportCmd, duplicatesCleanupCmd)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func parseEventFlag() (*uuid.UUID, error) {
	if eventFlag == "" {
		return nil, nil
	}
	id, err := uuid.Parse(eventFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid --event: %w", err)
	}
	return &id, nil
}

type eventDuplicates struct {
	EventID uuid.UUID              `json:"event_id"`
	Groups  []model.DuplicateGroup `json:"groups"`
}

func writeReport(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runDuplicatesReport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	eventID, err := parseEventFlag()
	if err != nil {
		return err
	}
	ctx := logger.WithContext(commandContext(cmd))

	svc, pool, err := openService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	var eventIDs []uuid.UUID
	if eventID != nil {
		eventIDs = []uuid.UUID{*eventID}
	} else if eventIDs, err = svc.EventIDs(ctx, service.System); err != nil {
		return err
	}

	report := make([]eventDuplicates, 0, len(eventIDs))
	for _, id := range eventIDs {
		groups, err := svc.FindDuplicates(ctx, id, service.System)
		if err != nil {
			return fmt.Errorf("event %s: %w", id, err)
		}
		if len(groups) > 0 {
			report = append(report, eventDuplicates{EventID: id, Groups: groups})
		}
	}
	return writeReport(cmd.OutOrStdout(), report)
}

func runDuplicatesCleanup(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	eventID, err := parseEventFlag()
	if err != nil {
		return err
	}
	ctx := logger.WithContext(commandContext(cmd))

	svc, pool, err := openService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if dryRunReport {
		groups, err := svc.FindDuplicates(ctx, *eventID, service.System)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), eventDuplicates{EventID: *eventID, Groups: groups})
	}

	if enqueueFlag {
		client, err := jobs.NewClient(pool, nil, nil, nil)
		if err != nil {
			return err
		}
		jobID, err := jobs.Queue{Client: client}.EnqueueDuplicateCleanup(ctx, *eventID)
		if err != nil {
			return err
		}
		logger.Info().Int64("job_id", jobID).Str("event_id", eventID.String()).Msg("duplicate cleanup queued")
		return nil
	}

	res, err := svc.CleanupDuplicates(ctx, *eventID, service.System)
	if res != nil {
		if werr := writeReport(cmd.OutOrStdout(), res); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("duplicate cleanup incomplete: %w", err)
	}
	return nil
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	eventID, err := parseEventFlag()
	if err != nil {
		return err
	}
	ctx := logger.WithContext(commandContext(cmd))

	svc, pool, err := openService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	res, err := svc.Reconcile(ctx, eventID, service.System)
	if res != nil {
		if werr := writeReport(cmd.OutOrStdout(), res); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("some ledger rows could not be reconciled: %w", err)
	}
	return nil
}
