package service

import (
	"context"

	"github.com/fimlm/myidmji/internal/auth"
	"github.com/fimlm/myidmji/internal/model"
	"github.com/fimlm/myidmji/internal/repository"
	"github.com/google/uuid"
)

// EventStats reads quota, ledger and check-in counts for an event. All reads
// share one read-only snapshot, so the per-church rows and the totals agree
// even while registrations and check-ins commit concurrently.
func (s *Service) EventStats(ctx context.Context, eventID uuid.UUID, caller *model.Principal) (*model.EventStats, error) {
	if err := authorize(caller, auth.CapSupervise); err != nil {
		return nil, err
	}

	var stats *model.EventStats
	err := s.store.WithSnapshot(ctx, func(tx *repository.Store) error {
		event, err := tx.GetEvent(ctx, eventID)
		if isNotFound(err) {
			return ErrEventNotFound
		}
		if err != nil {
			return storeErr("get event", err)
		}

		perChurch, err := tx.ChurchStats(ctx, eventID)
		if err != nil {
			return storeErr("church stats", err)
		}
		checkedIn, err := tx.CountCheckedIn(ctx, eventID)
		if err != nil {
			return storeErr("count checked in", err)
		}

		stats = &model.EventStats{
			EventID:        event.ID,
			EventName:      event.Name,
			TotalQuota:     event.TotalQuota,
			CheckedInCount: checkedIn,
			PerChurch:      perChurch,
		}
		if stats.PerChurch == nil {
			stats.PerChurch = []model.ChurchStats{}
		}
		for _, cs := range perChurch {
			stats.TotalRegistered += cs.RegisteredCount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
