package service

import (
	"context"
	"errors"
	"strings"

	"github.com/fimlm/myidmji/internal/auth"
	"github.com/fimlm/myidmji/internal/model"
	"github.com/fimlm/myidmji/internal/repository"
	"github.com/google/uuid"
)

// CreateChurch registers a new church under a unique name.
func (s *Service) CreateChurch(ctx context.Context, req model.CreateChurchRequest, caller *model.Principal) (*model.Church, error) {
	if err := authorize(caller, auth.CapAdminister); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	c := &model.Church{ID: uuid.New(), Name: req.Name}
	if err := s.store.CreateChurch(ctx, c); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrChurchNameTaken
		}
		return nil, storeErr("create church", err)
	}
	return c, nil
}

// CreateEvent validates and stores a new event. Events are active unless the
// request says otherwise.
func (s *Service) CreateEvent(ctx context.Context, req model.CreateEventRequest, caller *model.Principal) (*model.Event, error) {
	if err := authorize(caller, auth.CapSupervise); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, invalid(errors.New("end_date must be on or after start_date"))
	}

	e := &model.Event{
		ID:                  uuid.New(),
		Name:                req.Name,
		Description:         req.Description,
		TotalQuota:          req.TotalQuota,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		MaxRegistrationDate: req.MaxRegistrationDate,
		IsActive:            req.IsActive == nil || *req.IsActive,
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return nil, storeErr("create event", err)
	}
	return e, nil
}

// SetEventActive opens or closes an event for registration.
func (s *Service) SetEventActive(ctx context.Context, eventID uuid.UUID, active bool, caller *model.Principal) (*model.Event, error) {
	if err := authorize(caller, auth.CapSupervise); err != nil {
		return nil, err
	}
	e, err := s.store.SetEventActive(ctx, eventID, active)
	if isNotFound(err) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, storeErr("update event", err)
	}
	return e, nil
}

// InviteChurch creates or updates the ledger row for (event, church). Only the
// advisory quota is written; the running count is preserved.
func (s *Service) InviteChurch(ctx context.Context, eventID uuid.UUID, req model.InviteRequest, caller *model.Principal) (*model.EventChurchLink, error) {
	links, err := s.InviteChurches(ctx, eventID, model.BulkInviteRequest{Invites: []model.InviteRequest{req}}, caller)
	if err != nil {
		return nil, err
	}
	return &links[0], nil
}

// InviteChurches applies several invitations atomically.
func (s *Service) InviteChurches(ctx context.Context, eventID uuid.UUID, req model.BulkInviteRequest, caller *model.Principal) ([]model.EventChurchLink, error) {
	if err := authorize(caller, auth.CapSupervise); err != nil {
		return nil, err
	}
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	links := make([]model.EventChurchLink, 0, len(req.Invites))
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		if err := requireEvent(ctx, tx, eventID); err != nil {
			return err
		}
		for _, inv := range req.Invites {
			if _, err := tx.GetChurch(ctx, inv.ChurchID); err != nil {
				if isNotFound(err) {
					return ErrChurchNotFound
				}
				return storeErr("get church", err)
			}
			link, err := tx.UpsertLink(ctx, eventID, inv.ChurchID, inv.Quota)
			if err != nil {
				return storeErr("upsert ledger", err)
			}
			links = append(links, *link)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

// InviteChurchesByName invites churches by name, creating any that do not
// exist yet, all in one transaction.
func (s *Service) InviteChurchesByName(ctx context.Context, eventID uuid.UUID, req model.BulkInviteByNameRequest, caller *model.Principal) ([]model.EventChurchLink, error) {
	if err := authorize(caller, auth.CapSupervise); err != nil {
		return nil, err
	}
	for i := range req.Invites {
		req.Invites[i].Name = strings.TrimSpace(req.Invites[i].Name)
	}
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	links := make([]model.EventChurchLink, 0, len(req.Invites))
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		if err := requireEvent(ctx, tx, eventID); err != nil {
			return err
		}
		for _, inv := range req.Invites {
			church, err := tx.GetChurchByName(ctx, inv.Name)
			if isNotFound(err) {
				church = &model.Church{ID: uuid.New(), Name: inv.Name}
				err = tx.CreateChurch(ctx, church)
			}
			if err != nil {
				return storeErr("find or create church", err)
			}
			link, err := tx.UpsertLink(ctx, eventID, church.ID, inv.Quota)
			if err != nil {
				return storeErr("upsert ledger", err)
			}
			links = append(links, *link)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

func requireEvent(ctx context.Context, tx *repository.Store, eventID uuid.UUID) error {
	if _, err := tx.GetEvent(ctx, eventID); err != nil {
		if isNotFound(err) {
			return ErrEventNotFound
		}
		return storeErr("get event", err)
	}
	return nil
}
