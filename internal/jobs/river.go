// Package jobs runs ledger maintenance on the river job queue: duplicate
// cleanup for a single event and periodic reconciliation of every ledger row.
package jobs

import (
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindDuplicateCleanup = "duplicate_cleanup"
	JobKindReconcileLedger  = "reconcile_ledger"
)

const (
	DuplicateCleanupMaxAttempts = 3
	ReconcileMaxAttempts        = 5
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements river's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: ReconcileMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindDuplicateCleanup: {
				MaxAttempts: DuplicateCleanupMaxAttempts,
				BaseDelay:   10 * time.Second,
				MaxDelay:    5 * time.Minute,
			},
			JobKindReconcileLedger: {
				MaxAttempts: ReconcileMaxAttempts,
				BaseDelay:   1 * time.Minute,
				MaxDelay:    1 * time.Hour,
			},
		},
	}
}

// NextRetry schedules the next attempt of a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	cfg := p.configFor(job.Kind)
	if cfg.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}
	return time.Now().Add(delay)
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if cfg, ok := p.ByKind[kind]; ok {
		return cfg
	}
	return p.Default
}

// InsertOptsForKind returns the insert options a job of kind should carry.
// Jobs are unique by args so a second request for the same event while one is
// pending is a no-op.
func InsertOptsForKind(kind string) *river.InsertOpts {
	return &river.InsertOpts{
		MaxAttempts: NewRetryPolicy().configFor(kind).MaxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// NewPeriodicJobs schedules reconciliation of every ledger row at interval.
// A non-positive interval disables it.
func NewPeriodicJobs(interval time.Duration) []*river.PeriodicJob {
	if interval <= 0 {
		return nil
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ReconcileLedgerArgs{}, InsertOptsForKind(JobKindReconcileLedger)
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
	}
}

// NewClientConfig builds a river client configuration with the retry policy.
func NewClientConfig(workers *river.Workers, logger *slog.Logger, periodicJobs []*river.PeriodicJob) *river.Config {
	policy := NewRetryPolicy()
	cfg := &river.Config{
		Workers:      workers,
		RetryPolicy:  policy,
		MaxAttempts:  policy.Default.MaxAttempts,
		PeriodicJobs: periodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
	}
	if logger != nil {
		cfg.Logger = logger
	}
	return cfg
}

// NewClient creates a river client on the pgx v5 pool. A nil workers bundle
// yields an insert-only client.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, periodicJobs []*river.PeriodicJob) (*river.Client[pgx.Tx], error) {
	cfg := NewClientConfig(workers, logger, periodicJobs)
	if workers == nil {
		cfg.Queues = nil
		cfg.PeriodicJobs = nil
	}
	return river.NewClient(riverpgxv5.New(pool), cfg)
}
