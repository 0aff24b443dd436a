package jobs

import (
	"testing"
	"time"

	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyNextRetry(t *testing.T) {
	policy := NewRetryPolicy()
	attempted := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		kind    string
		attempt int
		want    time.Duration
	}{
		{"cleanup first attempt", JobKindDuplicateCleanup, 1, 10 * time.Second},
		{"cleanup backoff", JobKindDuplicateCleanup, 3, 40 * time.Second},
		{"cleanup capped", JobKindDuplicateCleanup, 20, 5 * time.Minute},
		{"reconcile first attempt", JobKindReconcileLedger, 1, time.Minute},
		{"reconcile second attempt", JobKindReconcileLedger, 2, 2 * time.Minute},
		{"unknown kind uses default", "other", 1, 30 * time.Second},
		{"zero attempt treated as first", JobKindReconcileLedger, 0, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := policy.NextRetry(&rivertype.JobRow{Kind: tt.kind, Attempt: tt.attempt, AttemptedAt: &attempted})
			assert.Equal(t, tt.want, next.Sub(attempted))
		})
	}
}

func TestInsertOptsForKind(t *testing.T) {
	opts := InsertOptsForKind(JobKindDuplicateCleanup)
	assert.Equal(t, DuplicateCleanupMaxAttempts, opts.MaxAttempts)
	assert.True(t, opts.UniqueOpts.ByArgs)

	assert.Equal(t, ReconcileMaxAttempts, InsertOptsForKind("other").MaxAttempts)
}

func TestNewPeriodicJobs(t *testing.T) {
	assert.Empty(t, NewPeriodicJobs(0))
	assert.Empty(t, NewPeriodicJobs(-time.Hour))

	jobs := NewPeriodicJobs(time.Hour)
	require.Len(t, jobs, 1)
	require.NotNil(t, jobs[0])
}

func TestNewClientConfig(t *testing.T) {
	cfg := NewClientConfig(nil, nil, NewPeriodicJobs(time.Hour))
	assert.Equal(t, ReconcileMaxAttempts, cfg.MaxAttempts)
	assert.Len(t, cfg.PeriodicJobs, 1)
	assert.Contains(t, cfg.Queues, "default")
	assert.IsType(t, &RetryPolicy{}, cfg.RetryPolicy)
}
