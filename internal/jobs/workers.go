package jobs

import (
	"context"
	"fmt"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/fimlm/myidmji/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
)

// Maintainer is the slice of the service the workers drive.
type Maintainer interface {
	CleanupDuplicates(ctx context.Context, eventID uuid.UUID, caller *model.Principal) (*model.CleanupResult, error)
	Reconcile(ctx context.Context, eventID *uuid.UUID, caller *model.Principal) (*model.ReconcileResult, error)
}

// DuplicateCleanupArgs asks for the duplicates of one event to be removed.
type DuplicateCleanupArgs struct {
	EventID uuid.UUID `json:"event_id"`
}

func (DuplicateCleanupArgs) Kind() string { return JobKindDuplicateCleanup }

// ReconcileLedgerArgs asks for every ledger row to be recounted.
type ReconcileLedgerArgs struct{}

func (ReconcileLedgerArgs) Kind() string { return JobKindReconcileLedger }

type DuplicateCleanupWorker struct {
	river.WorkerDefaults[DuplicateCleanupArgs]
	Service Maintainer
	Logger  zerolog.Logger
}

func (w DuplicateCleanupWorker) Work(ctx context.Context, job *river.Job[DuplicateCleanupArgs]) error {
	if w.Service == nil {
		return fmt.Errorf("service not configured")
	}
	logger := w.Logger.With().
		Str("job_kind", job.Kind).
		Int64("job_id", job.ID).
		Int("attempt", job.Attempt).
		Str("event_id", job.Args.EventID.String()).
		Logger()
	ctx = logger.WithContext(ctx)

	res, err := w.Service.CleanupDuplicates(ctx, job.Args.EventID, service.System)
	if res != nil {
		logger.Info().
			Int("deleted", res.DeletedCount).
			Int("reconciled", res.ReconciledChurchCount).
			Int("failed", res.FailedChurchCount).
			Msg("duplicate cleanup job done")
	}
	if err != nil {
		logger.Error().Err(err).Msg("duplicate cleanup failed")
		return retryable(err)
	}
	return nil
}

type ReconcileLedgerWorker struct {
	river.WorkerDefaults[ReconcileLedgerArgs]
	Service Maintainer
	Logger  zerolog.Logger
}

func (w ReconcileLedgerWorker) Work(ctx context.Context, job *river.Job[ReconcileLedgerArgs]) error {
	if w.Service == nil {
		return fmt.Errorf("service not configured")
	}
	logger := w.Logger.With().
		Str("job_kind", job.Kind).
		Int64("job_id", job.ID).
		Int("attempt", job.Attempt).
		Logger()
	ctx = logger.WithContext(ctx)

	res, err := w.Service.Reconcile(ctx, nil, service.System)
	if res != nil {
		logger.Info().
			Int("checked", res.Checked).
			Int("corrected", res.Corrected).
			Int("failed", res.Failed).
			Msg("ledger reconciliation job done")
	}
	if err != nil {
		logger.Error().Err(err).Msg("ledger reconciliation failed")
		return retryable(err)
	}
	return nil
}

// retryable lets river retry transient and unclassified failures and cancels
// the job on business rejections, which would fail the same way again.
func retryable(err error) error {
	switch service.KindOf(err) {
	case service.KindTransient, service.KindInternal:
		return err
	default:
		return river.JobCancel(err)
	}
}

// NewWorkers registers every worker against svc.
func NewWorkers(svc Maintainer, logger zerolog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[DuplicateCleanupArgs](workers, DuplicateCleanupWorker{Service: svc, Logger: logger})
	river.AddWorker[ReconcileLedgerArgs](workers, ReconcileLedgerWorker{Service: svc, Logger: logger})
	return workers
}

// Queue inserts maintenance jobs through a river client.
type Queue struct {
	Client *river.Client[pgx.Tx]
}

// EnqueueDuplicateCleanup schedules a background duplicate cleanup for eventID
// and returns the job id.
func (q Queue) EnqueueDuplicateCleanup(ctx context.Context, eventID uuid.UUID) (int64, error) {
	res, err := q.Client.Insert(ctx, DuplicateCleanupArgs{EventID: eventID}, InsertOptsForKind(JobKindDuplicateCleanup))
	if err != nil {
		return 0, fmt.Errorf("enqueue duplicate cleanup: %w", err)
	}
	return res.Job.ID, nil
}
