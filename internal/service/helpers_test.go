package service

import (
	"context"
	"testing"
	"time"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/fimlm/myidmji/internal/repository"
	"github.com/fimlm/myidmji/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

var admin = &model.Principal{ID: uuid.New(), Role: model.RoleAdmin}

func setup(t *testing.T, opts ...Option) (*Service, *repository.Store, *pgxpool.Pool) {
	t.Helper()
	pool, _ := testutil.Postgres(t, "myidmji-service-db")
	store := repository.NewStore(pool)
	return New(store, opts...), store, pool
}

func seedChurch(t *testing.T, store *repository.Store, name string) model.Church {
	t.Helper()
	c := model.Church{ID: uuid.New(), Name: name + "-" + uuid.NewString()[:8]}
	require.NoError(t, store.CreateChurch(context.Background(), &c))
	return c
}

type eventOpt func(*model.Event)

func inactive() eventOpt { return func(e *model.Event) { e.IsActive = false } }

func deadline(at time.Time) eventOpt { return func(e *model.Event) { e.MaxRegistrationDate = &at } }

func seedEvent(t *testing.T, store *repository.Store, totalQuota int, opts ...eventOpt) model.Event {
	t.Helper()
	e := model.Event{ID: uuid.New(), Name: "Gathering", TotalQuota: totalQuota, IsActive: true}
	for _, opt := range opts {
		opt(&e)
	}
	require.NoError(t, store.CreateEvent(context.Background(), &e))
	return e
}

func seedLink(t *testing.T, store *repository.Store, event model.Event, church model.Church, quota int) {
	t.Helper()
	_, err := store.UpsertLink(context.Background(), event.ID, church.ID, quota)
	require.NoError(t, err)
}

func digiter(church model.Church) *model.Principal {
	id := church.ID
	return &model.Principal{ID: uuid.New(), Role: model.RoleDigiter, ChurchID: &id}
}

func registeredCount(t *testing.T, store *repository.Store, event model.Event, church model.Church) int {
	t.Helper()
	links, err := store.ListLinks(context.Background(), &event.ID)
	require.NoError(t, err)
	for _, l := range links {
		if l.ChurchID == church.ID {
			return l.RegisteredCount
		}
	}
	t.Fatalf("no ledger row for church %s", church.ID)
	return 0
}

func attendeeRows(t *testing.T, pool *pgxpool.Pool, eventID uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM attendees WHERE event_id = $1`, eventID).Scan(&n))
	return n
}

func ledgerSum(t *testing.T, pool *pgxpool.Pool, eventID uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COALESCE(SUM(registered_count), 0) FROM event_church_links WHERE event_id = $1`, eventID).Scan(&n))
	return n
}

func strPtr(s string) *string { return &s }
