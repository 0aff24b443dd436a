package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func insert(t *testing.T, s *Store, e model.Event, c model.Church, name, doc string, at time.Time) model.Attendee {
	t.Helper()
	a := model.Attendee{
		ID:             uuid.New(),
		FullName:       name,
		EventID:        e.ID,
		ChurchID:       c.ID,
		RegisteredByID: uuid.New(),
		CreatedAt:      at,
	}
	if doc != "" {
		a.DocumentID = &doc
	}
	require.NoError(t, s.InsertAttendee(context.Background(), &a))
	return a
}

func TestMarkCheckedInOnlyOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	e, c := createFixtures(t, s)
	a := insert(t, s, e, c, "Ana", "", time.Time{})
	require.False(t, a.CreatedAt.IsZero())

	by := uuid.New()
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	changed, err := s.MarkCheckedIn(ctx, a.ID, at, by)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = s.MarkCheckedIn(ctx, a.ID, at.Add(time.Hour), uuid.New())
	require.NoError(t, err)
	require.False(t, changed)

	got, err := s.GetAttendee(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.CheckedIn())
	require.True(t, got.CheckedInAt.Equal(at))
	require.Equal(t, by, *got.CheckedInByID)

	n, err := s.CountCheckedIn(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDeleteAttendee(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	e, c := createFixtures(t, s)
	a := insert(t, s, e, c, "Ana", "", time.Time{})

	require.NoError(t, s.DeleteAttendee(ctx, a.ID))
	require.ErrorIs(t, s.DeleteAttendee(ctx, a.ID), ErrNotFound)
	_, err := s.GetAttendee(ctx, a.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateDocumentGroups(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	e, c := createFixtures(t, s)
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	newest := insert(t, s, e, c, "Ana 2", "X", t1.Add(time.Minute))
	oldest := insert(t, s, e, c, "Ana 1", "X", t1)
	insert(t, s, e, c, "Luis", "Y", t1)
	insert(t, s, e, c, "No doc 1", "", t1)
	insert(t, s, e, c, "No doc 2", "", t1)

	docs, err := s.DuplicateDocumentIDs(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"X"}, docs)

	group, err := s.AttendeesByDocument(ctx, e.ID, "X")
	require.NoError(t, err)
	require.Len(t, group, 2)
	require.Equal(t, oldest.ID, group[0].ID)
	require.Equal(t, newest.ID, group[1].ID)
}

func TestListAttendeesFilters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	e, north := createFixtures(t, s)
	_, south := createFixtures(t, s)
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	insert(t, s, e, north, "Ana Silva", "111", t1)
	insert(t, s, e, north, "Luis Perez", "222", t1.Add(time.Second))
	insert(t, s, e, south, "Ana Gomez", "333", t1.Add(2*time.Second))

	all, err := s.ListAttendees(ctx, AttendeeFilter{EventID: e.ID}, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "Ana Silva", all[0].FullName)
	require.Equal(t, north.Name, all[0].ChurchName)
	require.Equal(t, e.Name, all[0].EventName)

	own, err := s.ListAttendees(ctx, AttendeeFilter{EventID: e.ID, ChurchID: &north.ID}, 0, 10)
	require.NoError(t, err)
	require.Len(t, own, 2)

	byDoc, err := s.ListAttendees(ctx, AttendeeFilter{EventID: e.ID, Query: "33"}, 0, 10)
	require.NoError(t, err)
	require.Len(t, byDoc, 1)
	require.Equal(t, "Ana Gomez", byDoc[0].FullName)

	byName, err := s.ListAttendees(ctx, AttendeeFilter{EventID: e.ID, NameQuery: "ANA"}, 0, 10)
	require.NoError(t, err)
	require.Len(t, byName, 2)

	exact, err := s.ListAttendees(ctx, AttendeeFilter{EventID: e.ID, DocumentID: "222"}, 0, 10)
	require.NoError(t, err)
	require.Len(t, exact, 1)

	paged, err := s.ListAttendees(ctx, AttendeeFilter{EventID: e.ID}, 2, 10)
	require.NoError(t, err)
	require.Len(t, paged, 1)

	n, err := s.CountAttendees(ctx, e.ID, north.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestCountByRegistrant(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	e, c := createFixtures(t, s)
	me := uuid.New()
	for i := 0; i < 2; i++ {
		a := model.Attendee{ID: uuid.New(), FullName: "Guest", EventID: e.ID, ChurchID: c.ID, RegisteredByID: me}
		require.NoError(t, s.InsertAttendee(ctx, &a))
	}
	insert(t, s, e, c, "Other", "", time.Time{})

	n, err := s.CountByRegistrant(ctx, e.ID, me)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestChurchStats(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	e, c := createFixtures(t, s)
	a := insert(t, s, e, c, "Ana", "", time.Time{})
	insert(t, s, e, c, "Luis", "", time.Time{})
	require.NoError(t, s.SetRegisteredCount(ctx, e.ID, c.ID, 2))
	_, err := s.MarkCheckedIn(ctx, a.ID, time.Now(), uuid.New())
	require.NoError(t, err)

	stats, err := s.ChurchStats(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, c.Name, stats[0].ChurchName)
	require.Equal(t, 5, stats[0].QuotaLimit)
	require.Equal(t, 2, stats[0].RegisteredCount)
	require.Equal(t, 1, stats[0].CheckedInCount)
}
