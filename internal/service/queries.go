package service

import (
	"context"
	"strings"

	"github.com/fimlm/myidmji/internal/auth"
	"github.com/fimlm/myidmji/internal/model"
	"github.com/fimlm/myidmji/internal/repository"
	"github.com/google/uuid"
)

const (
	defaultLimit = 100
	maxLimit     = 500
	minNameQuery = 3
)

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return skip, limit
}

// GetEvent returns a single event. Any authenticated caller may read it.
func (s *Service) GetEvent(ctx context.Context, eventID uuid.UUID) (*model.Event, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if isNotFound(err) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, storeErr("get event", err)
	}
	return e, nil
}

// ListEvents returns the events visible to the caller: everything for
// supervisors and above, active events for callers without a church (so they
// can pick one during onboarding), and otherwise active events the caller's
// church is invited to.
func (s *Service) ListEvents(ctx context.Context, caller *model.Principal, skip, limit int) ([]model.Event, error) {
	if caller == nil {
		return nil, ErrPermissionDenied
	}
	skip, limit = clampPage(skip, limit)

	var f repository.EventFilter
	switch {
	case auth.SeesAllChurches(caller):
	case caller.ChurchID == nil:
		f.ActiveOnly = true
	default:
		f.ActiveOnly = true
		f.InvitedChurchID = caller.ChurchID
	}

	events, err := s.store.ListEvents(ctx, f, skip, limit)
	if err != nil {
		return nil, storeErr("list events", err)
	}
	return nonNil(events), nil
}

// MyEvents returns the active events the caller's church is invited to.
func (s *Service) MyEvents(ctx context.Context, caller *model.Principal) ([]model.Event, error) {
	if caller == nil {
		return nil, ErrPermissionDenied
	}
	if caller.ChurchID == nil {
		return []model.Event{}, nil
	}
	events, err := s.store.ListEvents(ctx, repository.EventFilter{ActiveOnly: true, InvitedChurchID: caller.ChurchID}, 0, maxLimit)
	if err != nil {
		return nil, storeErr("list events", err)
	}
	return nonNil(events), nil
}

// ListAttendees pages through an event's attendees, optionally filtered by a
// name or document substring. Digiters only see their own church; a digiter
// without a church sees nothing.
func (s *Service) ListAttendees(ctx context.Context, eventID uuid.UUID, q string, skip, limit int, caller *model.Principal) ([]model.Attendee, error) {
	if err := authorize(caller, auth.CapRegister); err != nil {
		return nil, err
	}
	f := repository.AttendeeFilter{EventID: eventID, Query: strings.TrimSpace(q)}
	if !auth.SeesAllChurches(caller) {
		if caller.ChurchID == nil {
			return []model.Attendee{}, nil
		}
		f.ChurchID = caller.ChurchID
	}
	skip, limit = clampPage(skip, limit)

	attendees, err := s.store.ListAttendees(ctx, f, skip, limit)
	if err != nil {
		return nil, storeErr("list attendees", err)
	}
	return nonNil(attendees), nil
}

// SearchByDocument finds the attendee of an event holding documentID, within
// the caller's church unless the caller sees all churches. When duplicates
// exist the most recent registration wins.
func (s *Service) SearchByDocument(ctx context.Context, eventID uuid.UUID, documentID string, caller *model.Principal) (*model.Attendee, error) {
	if err := authorize(caller, auth.CapRegister); err != nil {
		return nil, err
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, ErrAttendeeNotFound
	}
	f := repository.AttendeeFilter{EventID: eventID, DocumentID: documentID}
	if err := scopeToChurch(&f, caller); err != nil {
		return nil, err
	}

	attendees, err := s.store.ListAttendees(ctx, f, 0, maxLimit)
	if err != nil {
		return nil, storeErr("search attendee", err)
	}
	if len(attendees) == 0 {
		return nil, ErrAttendeeNotFound
	}
	return &attendees[len(attendees)-1], nil
}

// SearchByName returns up to limit attendees whose name contains q.
func (s *Service) SearchByName(ctx context.Context, eventID uuid.UUID, q string, limit int, caller *model.Principal) ([]model.Attendee, error) {
	if err := authorize(caller, auth.CapRegister); err != nil {
		return nil, err
	}
	q = strings.TrimSpace(q)
	if len([]rune(q)) < minNameQuery {
		return nil, ErrQueryTooShort
	}
	if limit <= 0 {
		limit = 10
	}
	f := repository.AttendeeFilter{EventID: eventID, NameQuery: q}
	if err := scopeToChurch(&f, caller); err != nil {
		return nil, err
	}
	_, limit = clampPage(0, limit)

	attendees, err := s.store.ListAttendees(ctx, f, 0, limit)
	if err != nil {
		return nil, storeErr("search attendees", err)
	}
	return nonNil(attendees), nil
}

// MyRegistrationCount counts the attendees the caller registered for an event.
func (s *Service) MyRegistrationCount(ctx context.Context, eventID uuid.UUID, caller *model.Principal) (int, error) {
	if err := authorize(caller, auth.CapRegister); err != nil {
		return 0, err
	}
	n, err := s.store.CountByRegistrant(ctx, eventID, caller.ID)
	if err != nil {
		return 0, storeErr("count registrations", err)
	}
	return n, nil
}

func scopeToChurch(f *repository.AttendeeFilter, caller *model.Principal) error {
	if auth.SeesAllChurches(caller) {
		return nil
	}
	if caller.ChurchID == nil {
		return ErrUserNoChurch
	}
	f.ChurchID = caller.ChurchID
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ListChurches pages through every church. Any authenticated caller may read
// them, since onboarding picks a church from this list.
func (s *Service) ListChurches(ctx context.Context, skip, limit int, caller *model.Principal) (*model.ChurchList, error) {
	if caller == nil {
		return nil, ErrPermissionDenied
	}
	skip, limit = clampPage(skip, limit)

	var list model.ChurchList
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		churches, err := tx.ListChurches(ctx, skip, limit)
		if err != nil {
			return storeErr("list churches", err)
		}
		if list.Count, err = tx.CountChurches(ctx); err != nil {
			return storeErr("count churches", err)
		}
		list.Data = nonNil(churches)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// EventChurches lists the churches invited to an event.
func (s *Service) EventChurches(ctx context.Context, eventID uuid.UUID, caller *model.Principal) (*model.ChurchList, error) {
	if caller == nil {
		return nil, ErrPermissionDenied
	}
	churches, err := s.store.InvitedChurches(ctx, eventID)
	if err != nil {
		return nil, storeErr("list invited churches", err)
	}
	churches = nonNil(churches)
	return &model.ChurchList{Data: churches, Count: len(churches)}, nil
}

// EventIDs lists every event id, for maintenance sweeps.
func (s *Service) EventIDs(ctx context.Context, caller *model.Principal) ([]uuid.UUID, error) {
	if err := authorize(caller, auth.CapAdminister); err != nil {
		return nil, err
	}
	ids, err := s.store.ListEventIDs(ctx)
	if err != nil {
		return nil, storeErr("list event ids", err)
	}
	return ids, nil
}
