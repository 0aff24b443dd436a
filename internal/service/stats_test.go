package service

import (
	"context"
	"testing"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEventStats(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	north := seedChurch(t, store, "North")
	south := seedChurch(t, store, "South")
	event := seedEvent(t, store, 50)
	seedLink(t, store, event, north, 20)
	seedLink(t, store, event, south, 30)

	var first *model.Attendee
	for i := 0; i < 3; i++ {
		a, err := svc.Register(ctx, event.ID, digiter(north), model.RegisterRequest{FullName: "Guest"})
		require.NoError(t, err)
		if first == nil {
			first = a
		}
	}
	_, err := svc.Register(ctx, event.ID, digiter(south), model.RegisterRequest{FullName: "Guest"})
	require.NoError(t, err)
	_, err = svc.CheckIn(ctx, event.ID, first.ID, digiter(north))
	require.NoError(t, err)

	supervisor := &model.Principal{ID: uuid.New(), Role: model.RoleSupervisor}
	stats, err := svc.EventStats(ctx, event.ID, supervisor)
	require.NoError(t, err)
	require.Equal(t, 50, stats.TotalQuota)
	require.Equal(t, 4, stats.TotalRegistered)
	require.Equal(t, 1, stats.CheckedInCount)
	require.Len(t, stats.PerChurch, 2)

	byChurch := map[uuid.UUID]model.ChurchStats{}
	for _, cs := range stats.PerChurch {
		byChurch[cs.ChurchID] = cs
	}
	require.Equal(t, 3, byChurch[north.ID].RegisteredCount)
	require.Equal(t, 1, byChurch[north.ID].CheckedInCount)
	require.Equal(t, 20, byChurch[north.ID].QuotaLimit)
	require.Equal(t, north.Name, byChurch[north.ID].ChurchName)
	require.Equal(t, 1, byChurch[south.ID].RegisteredCount)
	require.Zero(t, byChurch[south.ID].CheckedInCount)
}

func TestEventStatsAccess(t *testing.T) {
	svc, store, _ := setup(t)
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 5)

	_, err := svc.EventStats(context.Background(), event.ID, digiter(church))
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.EventStats(context.Background(), uuid.New(), admin)
	require.ErrorIs(t, err, ErrEventNotFound)

	stats, err := svc.EventStats(context.Background(), event.ID, admin)
	require.NoError(t, err)
	require.Empty(t, stats.PerChurch)
	require.NotNil(t, stats.PerChurch)
}
