package service

import (
	"context"
	"testing"
	"time"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCreateChurchRejectsDuplicateName(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	c, err := svc.CreateChurch(ctx, model.CreateChurchRequest{Name: "  Bethel "}, admin)
	require.NoError(t, err)
	require.Equal(t, "Bethel", c.Name)

	_, err = svc.CreateChurch(ctx, model.CreateChurchRequest{Name: "Bethel"}, admin)
	require.ErrorIs(t, err, ErrChurchNameTaken)

	_, err = svc.CreateChurch(ctx, model.CreateChurchRequest{Name: ""}, admin)
	require.Equal(t, KindInvalid, KindOf(err))

	supervisor := &model.Principal{ID: uuid.New(), Role: model.RoleSupervisor}
	_, err = svc.CreateChurch(ctx, model.CreateChurchRequest{Name: "Shiloh"}, supervisor)
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCreateEvent(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	supervisor := &model.Principal{ID: uuid.New(), Role: model.RoleSupervisor}
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	e, err := svc.CreateEvent(ctx, model.CreateEventRequest{
		Name: "Youth Congress", TotalQuota: 300, StartDate: &start, EndDate: &end,
	}, supervisor)
	require.NoError(t, err)
	require.True(t, e.IsActive)
	require.Equal(t, 300, e.TotalQuota)

	closed := false
	e, err = svc.CreateEvent(ctx, model.CreateEventRequest{Name: "Retreat", IsActive: &closed}, supervisor)
	require.NoError(t, err)
	require.False(t, e.IsActive)

	_, err = svc.CreateEvent(ctx, model.CreateEventRequest{Name: "Backwards", StartDate: &end, EndDate: &start}, supervisor)
	require.Equal(t, KindInvalid, KindOf(err))

	_, err = svc.CreateEvent(ctx, model.CreateEventRequest{Name: "Negative", TotalQuota: -1}, supervisor)
	require.Equal(t, KindInvalid, KindOf(err))
}

func TestSetEventActive(t *testing.T) {
	svc, store, _ := setup(t)
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)
	seedLink(t, store, event, church, 10)

	e, err := svc.SetEventActive(context.Background(), event.ID, false, admin)
	require.NoError(t, err)
	require.False(t, e.IsActive)

	_, err = svc.Register(context.Background(), event.ID, digiter(church), model.RegisterRequest{FullName: "Ana"})
	require.ErrorIs(t, err, ErrEventNotActive)

	_, err = svc.SetEventActive(context.Background(), uuid.New(), true, admin)
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestInvitePreservesRegisteredCount(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)

	link, err := svc.InviteChurch(ctx, event.ID, model.InviteRequest{ChurchID: church.ID, Quota: 3}, admin)
	require.NoError(t, err)
	require.Equal(t, 3, link.QuotaLimit)
	require.Zero(t, link.RegisteredCount)

	_, err = svc.Register(ctx, event.ID, digiter(church), model.RegisterRequest{FullName: "Ana"})
	require.NoError(t, err)

	link, err = svc.InviteChurch(ctx, event.ID, model.InviteRequest{ChurchID: church.ID, Quota: 8}, admin)
	require.NoError(t, err)
	require.Equal(t, 8, link.QuotaLimit)
	require.Equal(t, 1, link.RegisteredCount)
}

func TestInviteChurchesIsAtomic(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	church := seedChurch(t, store, "Central")
	event := seedEvent(t, store, 10)

	_, err := svc.InviteChurches(ctx, event.ID, model.BulkInviteRequest{Invites: []model.InviteRequest{
		{ChurchID: church.ID, Quota: 2},
		{ChurchID: uuid.New(), Quota: 2},
	}}, admin)
	require.ErrorIs(t, err, ErrChurchNotFound)

	links, err := store.ListLinks(ctx, &event.ID)
	require.NoError(t, err)
	require.Empty(t, links)

	_, err = svc.InviteChurch(ctx, uuid.New(), model.InviteRequest{ChurchID: church.ID}, admin)
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestInviteChurchesByNameCreatesMissing(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	existing := seedChurch(t, store, "Existing")
	event := seedEvent(t, store, 10)

	links, err := svc.InviteChurchesByName(ctx, event.ID, model.BulkInviteByNameRequest{Invites: []model.InviteByNameRequest{
		{Name: existing.Name, Quota: 4},
		{Name: " Brand New ", Quota: 6},
	}}, admin)
	require.NoError(t, err)
	require.Len(t, links, 2)
	require.Equal(t, existing.ID, links[0].ChurchID)

	created, err := store.GetChurchByName(ctx, "Brand New")
	require.NoError(t, err)
	require.Equal(t, created.ID, links[1].ChurchID)
	require.Equal(t, 6, links[1].QuotaLimit)
}
