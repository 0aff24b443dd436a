package service

import (
	"context"
	"strings"
	"time"

	"github.com/fimlm/myidmji/internal/auth"
	"github.com/fimlm/myidmji/internal/metrics"
	"github.com/fimlm/myidmji/internal/model"
	"github.com/fimlm/myidmji/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Register admits a new attendee for the caller's church.
//
// The event row is locked first, then the caller's ledger row, both until
// commit. Holding the event lock serializes every registration for the event,
// so the global total read by SumRegistered cannot change between the quota
// check and the increment. Registrations for other events take other locks
// and proceed in parallel.
//
// The church's quota_limit is not consulted: only the event total gates
// admission.
//
// The operation is not idempotent; calling it twice registers two attendees.
func (s *Service) Register(ctx context.Context, eventID uuid.UUID, caller *model.Principal, req model.RegisterRequest) (*model.Attendee, error) {
	start := time.Now()
	attendee, err := s.register(ctx, eventID, caller, req)
	metrics.RegistrationDuration.Observe(time.Since(start).Seconds())

	logger := zerolog.Ctx(ctx)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(CodeOf(err)).Inc()
		ev := logger.Debug()
		if KindOf(err) == KindTransient || KindOf(err) == KindInternal {
			ev = logger.Warn()
		}
		ev.Err(err).Str("event_id", eventID.String()).Msg("registration rejected")
		return nil, err
	}

	metrics.RegistrationsTotal.WithLabelValues("admitted").Inc()
	logger.Info().
		Str("event_id", eventID.String()).
		Str("church_id", attendee.ChurchID.String()).
		Str("attendee_id", attendee.ID.String()).
		Msg("attendee registered")
	return attendee, nil
}

func (s *Service) register(ctx context.Context, eventID uuid.UUID, caller *model.Principal, req model.RegisterRequest) (*model.Attendee, error) {
	if err := authorize(caller, auth.CapRegister); err != nil {
		return nil, err
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.DocumentID = trimOptional(req.DocumentID)
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	var attendee *model.Attendee
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		event, err := tx.LockEvent(ctx, eventID)
		if isNotFound(err) {
			return ErrEventNotFound
		}
		if err != nil {
			return storeErr("lock event", err)
		}

		if !event.IsActive {
			return ErrEventNotActive
		}
		if event.RegistrationClosed(s.now()) {
			return ErrRegistrationClosed
		}
		if caller.ChurchID == nil {
			return ErrUserNoChurch
		}

		if _, err := tx.LockLink(ctx, eventID, *caller.ChurchID); err != nil {
			if isNotFound(err) {
				return ErrChurchNotInvited
			}
			return storeErr("lock ledger", err)
		}
		church, err := tx.GetChurch(ctx, *caller.ChurchID)
		if err != nil {
			return storeErr("get church", err)
		}

		total, err := tx.SumRegistered(ctx, eventID)
		if err != nil {
			return storeErr("sum registered", err)
		}
		if total >= event.TotalQuota {
			return ErrEventQuotaExceeded
		}

		a := &model.Attendee{
			ID:             uuid.New(),
			FullName:       req.FullName,
			DocumentID:     req.DocumentID,
			EventID:        eventID,
			ChurchID:       *caller.ChurchID,
			RegisteredByID: caller.ID,
			EventName:      event.Name,
			ChurchName:     church.Name,
		}
		if err := tx.InsertAttendee(ctx, a); err != nil {
			return storeErr("insert attendee", err)
		}
		if err := tx.IncrementLink(ctx, eventID, *caller.ChurchID); err != nil {
			return storeErr("increment ledger", err)
		}
		attendee = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attendee, nil
}

// DeleteAttendee removes an attendee and gives its seat back to the ledger in
// the same transaction.
func (s *Service) DeleteAttendee(ctx context.Context, eventID, attendeeID uuid.UUID, caller *model.Principal) error {
	if err := authorize(caller, auth.CapRegister); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		a, err := tx.LockAttendee(ctx, attendeeID)
		if isNotFound(err) {
			return ErrAttendeeNotFound
		}
		if err != nil {
			return storeErr("lock attendee", err)
		}
		if a.EventID != eventID {
			return ErrAttendeeEventMismatch
		}

		if _, err := tx.LockLink(ctx, eventID, a.ChurchID); err == nil {
			if err := tx.DecrementLink(ctx, eventID, a.ChurchID); err != nil {
				return storeErr("decrement ledger", err)
			}
		} else if !isNotFound(err) {
			return storeErr("lock ledger", err)
		}

		if err := tx.DeleteAttendee(ctx, attendeeID); err != nil {
			return storeErr("delete attendee", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("event_id", eventID.String()).
		Str("attendee_id", attendeeID.String()).
		Msg("attendee deleted")
	return nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
