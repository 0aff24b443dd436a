package service

import (
	"context"

	"github.com/fimlm/myidmji/internal/auth"
	"github.com/fimlm/myidmji/internal/metrics"
	"github.com/fimlm/myidmji/internal/model"
	"github.com/fimlm/myidmji/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CheckIn moves an attendee from registered to checked in. The transition
// fires at most once: the attendee row is locked for the duration, so of two
// concurrent calls one succeeds and the other observes ALREADY_CHECKED_IN.
// The ledger is never touched.
func (s *Service) CheckIn(ctx context.Context, eventID, attendeeID uuid.UUID, caller *model.Principal) (*model.Attendee, error) {
	attendee, err := s.checkIn(ctx, eventID, attendeeID, caller)
	if err != nil {
		metrics.CheckInsTotal.WithLabelValues(CodeOf(err)).Inc()
		zerolog.Ctx(ctx).Debug().Err(err).
			Str("event_id", eventID.String()).
			Str("attendee_id", attendeeID.String()).
			Msg("check-in rejected")
		return nil, err
	}
	metrics.CheckInsTotal.WithLabelValues("checked_in").Inc()
	zerolog.Ctx(ctx).Info().
		Str("event_id", eventID.String()).
		Str("attendee_id", attendeeID.String()).
		Msg("attendee checked in")
	return attendee, nil
}

func (s *Service) checkIn(ctx context.Context, eventID, attendeeID uuid.UUID, caller *model.Principal) (*model.Attendee, error) {
	if err := authorize(caller, auth.CapRegister); err != nil {
		return nil, err
	}

	var attendee *model.Attendee
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		a, err := tx.LockAttendee(ctx, attendeeID)
		if isNotFound(err) {
			return ErrAttendeeNotFound
		}
		if err != nil {
			return storeErr("lock attendee", err)
		}
		// An id from another event must never be admitted here, even by a
		// caller allowed to check in at both.
		if a.EventID != eventID {
			return ErrAttendeeEventMismatch
		}
		if a.CheckedIn() {
			return ErrAlreadyCheckedIn
		}

		at := s.now().UTC()
		changed, err := tx.MarkCheckedIn(ctx, attendeeID, at, caller.ID)
		if err != nil {
			return storeErr("mark checked in", err)
		}
		if !changed {
			return ErrAlreadyCheckedIn
		}
		by := caller.ID
		a.CheckedInAt = &at
		a.CheckedInByID = &by
		attendee = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attendee, nil
}
