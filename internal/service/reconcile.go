package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fimlm/myidmji/internal/auth"
	"github.com/fimlm/myidmji/internal/metrics"
	"github.com/fimlm/myidmji/internal/model"
	"github.com/fimlm/myidmji/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// AuthorizeMaintenance checks that caller may run duplicate cleanup and
// reconciliation on the event, without doing any of the work.
func (s *Service) AuthorizeMaintenance(ctx context.Context, eventID uuid.UUID, caller *model.Principal) error {
	if err := authorize(caller, auth.CapAdminister); err != nil {
		return err
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		if isNotFound(err) {
			return ErrEventNotFound
		}
		return storeErr("get event", err)
	}
	return nil
}

// FindDuplicates groups the attendees of an event that share a non-empty
// document id. Each group is ordered oldest first.
func (s *Service) FindDuplicates(ctx context.Context, eventID uuid.UUID, caller *model.Principal) ([]model.DuplicateGroup, error) {
	if err := s.AuthorizeMaintenance(ctx, eventID, caller); err != nil {
		return nil, err
	}
	return s.duplicateGroups(ctx, s.store, eventID)
}

func (s *Service) duplicateGroups(ctx context.Context, store *repository.Store, eventID uuid.UUID) ([]model.DuplicateGroup, error) {
	docs, err := store.DuplicateDocumentIDs(ctx, eventID)
	if err != nil {
		return nil, storeErr("find duplicate documents", err)
	}

	groups := make([]model.DuplicateGroup, 0, len(docs))
	for _, doc := range docs {
		attendees, err := store.AttendeesByDocument(ctx, eventID, doc)
		if err != nil {
			return nil, storeErr("list duplicates", err)
		}
		if len(attendees) < 2 {
			continue
		}
		groups = append(groups, model.DuplicateGroup{DocumentID: doc, Count: len(attendees), Attendees: attendees})
	}
	return groups, nil
}

// CleanupDuplicates deletes every attendee of a duplicate group except the
// most recently created one, which is taken to be the correction, then
// reconciles the event's ledger.
//
// Deletion commits before reconciliation starts. In between, a ledger row may
// overcount, which only makes admission stricter. When some ledger rows fail
// to reconcile, the result is still returned alongside the joined error.
func (s *Service) CleanupDuplicates(ctx context.Context, eventID uuid.UUID, caller *model.Principal) (*model.CleanupResult, error) {
	if err := authorize(caller, auth.CapAdminister); err != nil {
		return nil, err
	}

	deleted := 0
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		if _, err := tx.GetEvent(ctx, eventID); err != nil {
			if isNotFound(err) {
				return ErrEventNotFound
			}
			return storeErr("get event", err)
		}
		groups, err := s.duplicateGroups(ctx, tx, eventID)
		if err != nil {
			return err
		}
		for _, g := range groups {
			for _, a := range g.Attendees[:len(g.Attendees)-1] {
				err := tx.DeleteAttendee(ctx, a.ID)
				if isNotFound(err) {
					// removed concurrently
					continue
				}
				if err != nil {
					return storeErr("delete duplicate", err)
				}
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.DuplicatesDeletedTotal.Add(float64(deleted))

	res := &model.CleanupResult{DeletedCount: deleted}
	rec, err := s.reconcile(ctx, &eventID)
	if rec != nil {
		res.ReconciledChurchCount = rec.Corrected
		res.FailedChurchCount = rec.Failed
	}
	if err != nil && rec == nil {
		return res, err
	}

	zerolog.Ctx(ctx).Info().
		Str("event_id", eventID.String()).
		Int("deleted", deleted).
		Int("corrected", res.ReconciledChurchCount).
		Int("failed", res.FailedChurchCount).
		Msg("duplicate cleanup finished")
	return res, err
}

// Reconcile overwrites each ledger row of the event with the true attendee
// count. Pass a nil eventID to reconcile every event. Each row is corrected
// in its own transaction, so one failure does not block the rest; the
// returned error joins every per-row failure.
//
// Running it twice changes nothing the second time.
func (s *Service) Reconcile(ctx context.Context, eventID *uuid.UUID, caller *model.Principal) (*model.ReconcileResult, error) {
	if err := authorize(caller, auth.CapAdminister); err != nil {
		return nil, err
	}
	if eventID != nil {
		if _, err := s.store.GetEvent(ctx, *eventID); err != nil {
			if isNotFound(err) {
				return nil, ErrEventNotFound
			}
			return nil, storeErr("get event", err)
		}
	}
	return s.reconcile(ctx, eventID)
}

func (s *Service) reconcile(ctx context.Context, eventID *uuid.UUID) (*model.ReconcileResult, error) {
	links, err := s.store.ListLinks(ctx, eventID)
	if err != nil {
		return nil, storeErr("list ledger rows", err)
	}

	var (
		mu     sync.Mutex
		result = &model.ReconcileResult{Checked: len(links)}
		errs   []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.reconcileWorkers)
	for _, link := range links {
		g.Go(func() error {
			corrected, err := s.reconcileLink(gctx, link.EventID, link.ChurchID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				errs = append(errs, fmt.Errorf("event %s church %s: %w", link.EventID, link.ChurchID, err))
				metrics.LedgerReconcileErrors.Inc()
				return nil
			}
			if corrected {
				result.Corrected++
			}
			return nil
		})
	}
	_ = g.Wait()

	return result, errors.Join(errs...)
}

// reconcileLink locks one ledger row, recounts its attendees and rewrites
// registered_count when it drifted. The row lock waits out any registration
// in flight for the same church, so the count includes it.
func (s *Service) reconcileLink(ctx context.Context, eventID, churchID uuid.UUID) (bool, error) {
	corrected := false
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		link, err := tx.LockLink(ctx, eventID, churchID)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return storeErr("lock ledger", err)
		}
		actual, err := tx.CountAttendees(ctx, eventID, churchID)
		if err != nil {
			return storeErr("count attendees", err)
		}
		if actual == link.RegisteredCount {
			return nil
		}
		if err := tx.SetRegisteredCount(ctx, eventID, churchID, actual); err != nil {
			return storeErr("set registered count", err)
		}
		zerolog.Ctx(ctx).Info().
			Str("event_id", eventID.String()).
			Str("church_id", churchID.String()).
			Int("from", link.RegisteredCount).
			Int("to", actual).
			Msg("ledger row corrected")
		corrected = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if corrected {
		metrics.LedgerCorrectionsTotal.Inc()
	}
	return corrected, nil
}
