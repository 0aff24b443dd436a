package service

import (
	"context"
	"testing"
	"time"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/fimlm/myidmji/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// insertRaw writes an attendee and bumps the ledger the way a registration
// would, but with a chosen creation time.
func insertRaw(t *testing.T, store *repository.Store, event model.Event, church model.Church, doc string, at time.Time) model.Attendee {
	t.Helper()
	ctx := context.Background()
	a := model.Attendee{
		ID:             uuid.New(),
		FullName:       "Guest " + doc,
		EventID:        event.ID,
		ChurchID:       church.ID,
		RegisteredByID: uuid.New(),
		CreatedAt:      at,
	}
	if doc != "" {
		a.DocumentID = &doc
	}
	require.NoError(t, store.InsertAttendee(ctx, &a))
	require.NoError(t, store.IncrementLink(ctx, event.ID, church.ID))
	return a
}

// holdLink locks one ledger row in a separate transaction until release is
// called. Reconciling that row then fails once the pool's lock_timeout expires.
func holdLink(t *testing.T, pool *pgxpool.Pool, event model.Event, church model.Church) (release func()) {
	t.Helper()
	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx,
		`SELECT 1 FROM event_church_links WHERE event_id = $1 AND church_id = $2 FOR UPDATE`,
		event.ID, church.ID)
	require.NoError(t, err)

	released := false
	release = func() {
		if !released {
			released = true
			_ = tx.Rollback(ctx)
		}
	}
	t.Cleanup(release)
	return release
}

func TestCleanupDuplicatesKeepsNewest(t *testing.T) {
	svc, store, pool := setup(t)
	ctx := context.Background()
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)
	seedLink(t, store, event, church, 10)

	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	older := insertRaw(t, store, event, church, "X", t1)
	newer := insertRaw(t, store, event, church, "X", t1.Add(time.Minute))
	insertRaw(t, store, event, church, "Y", t1)
	require.Equal(t, 3, registeredCount(t, store, event, church))

	groups, err := svc.FindDuplicates(ctx, event.ID, admin)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "X", groups[0].DocumentID)
	require.Equal(t, 2, groups[0].Count)
	require.Equal(t, older.ID, groups[0].Attendees[0].ID)
	require.Equal(t, newer.ID, groups[0].Attendees[1].ID)

	res, err := svc.CleanupDuplicates(ctx, event.ID, admin)
	require.NoError(t, err)
	require.Equal(t, 1, res.DeletedCount)
	require.Equal(t, 1, res.ReconciledChurchCount)

	_, err = store.GetAttendee(ctx, older.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.GetAttendee(ctx, newer.ID)
	require.NoError(t, err)

	require.Equal(t, 2, attendeeRows(t, pool, event.ID))
	require.Equal(t, 2, registeredCount(t, store, event, church))
}

func TestCleanupDuplicatesIsIdempotent(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)
	seedLink(t, store, event, church, 10)

	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		insertRaw(t, store, event, church, "X", t1.Add(time.Duration(i)*time.Second))
	}

	first, err := svc.CleanupDuplicates(ctx, event.ID, admin)
	require.NoError(t, err)
	require.Equal(t, 2, first.DeletedCount)

	second, err := svc.CleanupDuplicates(ctx, event.ID, admin)
	require.NoError(t, err)
	require.Zero(t, second.DeletedCount)
	require.Zero(t, second.ReconciledChurchCount)
	require.Equal(t, 1, registeredCount(t, store, event, church))
}

func TestDuplicatesIgnoreMissingDocuments(t *testing.T) {
	svc, store, _ := setup(t)
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)
	seedLink(t, store, event, church, 10)

	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	insertRaw(t, store, event, church, "", at)
	insertRaw(t, store, event, church, "", at)

	groups, err := svc.FindDuplicates(context.Background(), event.ID, admin)
	require.NoError(t, err)
	require.Empty(t, groups)
}

func TestDuplicatesRequireAdmin(t *testing.T) {
	svc, store, _ := setup(t)
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)
	supervisor := &model.Principal{ID: uuid.New(), Role: model.RoleSupervisor}

	_, err := svc.FindDuplicates(context.Background(), event.ID, supervisor)
	require.ErrorIs(t, err, ErrPermissionDenied)
	_, err = svc.CleanupDuplicates(context.Background(), event.ID, digiter(church))
	require.ErrorIs(t, err, ErrPermissionDenied)
	_, err = svc.FindDuplicates(context.Background(), uuid.New(), admin)
	require.ErrorIs(t, err, ErrEventNotFound)

	require.NoError(t, svc.AuthorizeMaintenance(context.Background(), event.ID, admin))
	require.ErrorIs(t, svc.AuthorizeMaintenance(context.Background(), event.ID, supervisor), ErrPermissionDenied)
	require.ErrorIs(t, svc.AuthorizeMaintenance(context.Background(), uuid.New(), System), ErrEventNotFound)
}

func TestReconcileRepairsDrift(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	a := seedChurch(t, store, "North")
	b := seedChurch(t, store, "South")
	event := seedEvent(t, store, 10)
	seedLink(t, store, event, a, 10)
	seedLink(t, store, event, b, 10)

	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	insertRaw(t, store, event, a, "1", at)
	insertRaw(t, store, event, a, "2", at)
	insertRaw(t, store, event, b, "3", at)
	require.NoError(t, store.SetRegisteredCount(ctx, event.ID, a.ID, 7))

	res, err := svc.Reconcile(ctx, &event.ID, admin)
	require.NoError(t, err)
	require.Equal(t, model.ReconcileResult{Checked: 2, Corrected: 1}, *res)
	require.Equal(t, 2, registeredCount(t, store, event, a))
	require.Equal(t, 1, registeredCount(t, store, event, b))

	again, err := svc.Reconcile(ctx, &event.ID, admin)
	require.NoError(t, err)
	require.Zero(t, again.Corrected)
}

func TestReconcileAllEvents(t *testing.T) {
	svc, store, _ := setup(t, WithReconcileWorkers(2))
	ctx := context.Background()
	church := seedChurch(t, store, "Central")
	first := seedEvent(t, store, 10)
	second := seedEvent(t, store, 10)
	seedLink(t, store, first, church, 10)
	seedLink(t, store, second, church, 10)
	require.NoError(t, store.SetRegisteredCount(ctx, first.ID, church.ID, 3))
	require.NoError(t, store.SetRegisteredCount(ctx, second.ID, church.ID, 4))

	res, err := svc.Reconcile(ctx, nil, System)
	require.NoError(t, err)
	require.Equal(t, 2, res.Checked)
	require.Equal(t, 2, res.Corrected)
	require.Zero(t, registeredCount(t, store, first, church))
	require.Zero(t, registeredCount(t, store, second, church))
}

func TestReconcileContinuesPastFailedRow(t *testing.T) {
	svc, store, pool := setup(t, WithReconcileWorkers(2))
	ctx := context.Background()
	locked := seedChurch(t, store, "Locked")
	free := seedChurch(t, store, "Free")
	event := seedEvent(t, store, 10)
	seedLink(t, store, event, locked, 10)
	seedLink(t, store, event, free, 10)
	require.NoError(t, store.SetRegisteredCount(ctx, event.ID, locked.ID, 4))
	require.NoError(t, store.SetRegisteredCount(ctx, event.ID, free.ID, 6))

	release := holdLink(t, pool, event, locked)
	res, err := svc.Reconcile(ctx, &event.ID, admin)
	release()

	require.Error(t, err)
	require.Equal(t, KindTransient, KindOf(err))
	require.NotNil(t, res)
	require.Equal(t, model.ReconcileResult{Checked: 2, Corrected: 1, Failed: 1}, *res)
	require.Zero(t, registeredCount(t, store, event, free))
	require.Equal(t, 4, registeredCount(t, store, event, locked))

	again, err := svc.Reconcile(ctx, &event.ID, admin)
	require.NoError(t, err)
	require.Equal(t, model.ReconcileResult{Checked: 2, Corrected: 1}, *again)
	require.Zero(t, registeredCount(t, store, event, locked))
}

func TestCleanupReportsDeletionsWhenReconcileFails(t *testing.T) {
	svc, store, pool := setup(t)
	ctx := context.Background()
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)
	seedLink(t, store, event, church, 10)

	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	insertRaw(t, store, event, church, "X", t1)
	insertRaw(t, store, event, church, "X", t1.Add(time.Minute))

	release := holdLink(t, pool, event, church)
	res, err := svc.CleanupDuplicates(ctx, event.ID, admin)
	release()

	require.Error(t, err)
	require.NotNil(t, res)
	require.Equal(t, model.CleanupResult{DeletedCount: 1, FailedChurchCount: 1}, *res)
	require.Equal(t, 1, attendeeRows(t, pool, event.ID))
	require.Equal(t, 2, registeredCount(t, store, event, church))

	_, err = svc.Reconcile(ctx, &event.ID, admin)
	require.NoError(t, err)
	require.Equal(t, 1, registeredCount(t, store, event, church))
}

func TestCleanupSkipsRowsDeletedConcurrently(t *testing.T) {
	svc, store, pool := setup(t)
	ctx := context.Background()
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)
	seedLink(t, store, event, church, 10)

	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	oldest := insertRaw(t, store, event, church, "X", t1)
	insertRaw(t, store, event, church, "X", t1.Add(time.Minute))
	newest := insertRaw(t, store, event, church, "X", t1.Add(2*time.Minute))

	// Another session deletes the oldest row but has not committed yet, so
	// cleanup still lists it and then blocks on its row lock.
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `DELETE FROM attendees WHERE id = $1`, oldest.ID)
	require.NoError(t, err)

	type outcome struct {
		res *model.CleanupResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := svc.CleanupDuplicates(ctx, event.ID, admin)
		done <- outcome{res, err}
	}()
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, tx.Commit(ctx))

	out := <-done
	require.NoError(t, out.err)
	require.Equal(t, 1, out.res.DeletedCount)
	require.Equal(t, 1, attendeeRows(t, pool, event.ID))
	_, err = store.GetAttendee(ctx, newest.ID)
	require.NoError(t, err)
	require.Equal(t, 1, registeredCount(t, store, event, church))
}
