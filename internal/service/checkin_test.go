package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCheckInTransitionsOnce(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)
	svc, store, _ := setup(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)
	seedLink(t, store, event, church, 10)
	caller := digiter(church)

	a, err := svc.Register(ctx, event.ID, caller, model.RegisterRequest{FullName: "Ana"})
	require.NoError(t, err)

	checked, err := svc.CheckIn(ctx, event.ID, a.ID, caller)
	require.NoError(t, err)
	require.NotNil(t, checked.CheckedInAt)
	require.True(t, checked.CheckedInAt.Equal(now))
	require.Equal(t, caller.ID, *checked.CheckedInByID)

	now = now.Add(time.Hour)
	_, err = svc.CheckIn(ctx, event.ID, a.ID, digiter(church))
	require.ErrorIs(t, err, ErrAlreadyCheckedIn)
	require.Equal(t, KindStateConflict, KindOf(err))

	stored, err := store.GetAttendee(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, stored.CheckedInAt.Equal(checked.CheckedInAt.UTC()))
	require.Equal(t, caller.ID, *stored.CheckedInByID)
	require.Equal(t, 1, registeredCount(t, store, event, church))
}

func TestCheckInRejectsForeignEvent(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)
	other := seedEvent(t, store, 10)
	seedLink(t, store, event, church, 10)
	caller := digiter(church)

	a, err := svc.Register(ctx, event.ID, caller, model.RegisterRequest{FullName: "Ana"})
	require.NoError(t, err)

	_, err = svc.CheckIn(ctx, other.ID, a.ID, caller)
	require.ErrorIs(t, err, ErrAttendeeEventMismatch)
	require.Equal(t, KindIntegrityMismatch, KindOf(err))

	stored, err := store.GetAttendee(ctx, a.ID)
	require.NoError(t, err)
	require.Nil(t, stored.CheckedInAt)
	require.Nil(t, stored.CheckedInByID)
}

func TestCheckInUnknownAttendee(t *testing.T) {
	svc, store, _ := setup(t)
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)

	_, err := svc.CheckIn(context.Background(), event.ID, uuid.New(), digiter(church))
	require.ErrorIs(t, err, ErrAttendeeNotFound)
	require.Equal(t, KindNotFound, KindOf(err))
}

func TestCheckInRequiresStaff(t *testing.T) {
	svc, store, _ := setup(t)
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)
	seedLink(t, store, event, church, 10)

	a, err := svc.Register(context.Background(), event.ID, digiter(church), model.RegisterRequest{FullName: "Ana"})
	require.NoError(t, err)

	viewer := &model.Principal{ID: uuid.New(), Role: model.RoleUser}
	_, err = svc.CheckIn(context.Background(), event.ID, a.ID, viewer)
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCheckInConcurrentSucceedsOnce(t *testing.T) {
	svc, store, _ := setup(t)
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)
	seedLink(t, store, event, church, 10)

	a, err := svc.Register(context.Background(), event.ID, digiter(church), model.RegisterRequest{FullName: "Ana"})
	require.NoError(t, err)

	var succeeded, rejected atomic.Int32
	start := make(chan struct{})
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		caller := digiter(church)
		g.Go(func() error {
			<-start
			_, err := svc.CheckIn(context.Background(), event.ID, a.ID, caller)
			switch {
			case err == nil:
				succeeded.Add(1)
			case CodeOf(err) == ErrAlreadyCheckedIn.Code:
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, succeeded.Load())
	require.EqualValues(t, 9, rejected.Load())
}
