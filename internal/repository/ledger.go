package repository

import (
	"context"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LockLink reads the ledger row for (eventID, churchID) under an exclusive
// row lock, or returns ErrNotFound when the church is not invited.
func (s *Store) LockLink(ctx context.Context, eventID, churchID uuid.UUID) (*model.EventChurchLink, error) {
	var l model.EventChurchLink
	err := s.db.QueryRow(ctx,
		`SELECT event_id, church_id, quota_limit, registered_count
		 FROM event_church_links
		 WHERE event_id = $1 AND church_id = $2
		 FOR UPDATE`,
		eventID, churchID,
	).Scan(&l.EventID, &l.ChurchID, &l.QuotaLimit, &l.RegisteredCount)
	if err != nil {
		return nil, classify("lock ledger row", err)
	}
	return &l, nil
}

// UpsertLink invites a church or updates its advisory quota. The running
// registered_count of an existing row is left untouched.
func (s *Store) UpsertLink(ctx context.Context, eventID, churchID uuid.UUID, quota int) (*model.EventChurchLink, error) {
	var l model.EventChurchLink
	err := s.db.QueryRow(ctx,
		`INSERT INTO event_church_links (event_id, church_id, quota_limit)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (event_id, church_id) DO UPDATE SET quota_limit = EXCLUDED.quota_limit
		 RETURNING event_id, church_id, quota_limit, registered_count`,
		eventID, churchID, quota,
	).Scan(&l.EventID, &l.ChurchID, &l.QuotaLimit, &l.RegisteredCount)
	if err != nil {
		return nil, classify("upsert ledger row", err)
	}
	return &l, nil
}

// SumRegistered returns the admitted total across every ledger row of the event.
func (s *Store) SumRegistered(ctx context.Context, eventID uuid.UUID) (int, error) {
	var total int
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(registered_count), 0) FROM event_church_links WHERE event_id = $1`,
		eventID,
	).Scan(&total)
	return total, classify("sum registered", err)
}

// IncrementLink adds one to the church's registered_count.
func (s *Store) IncrementLink(ctx context.Context, eventID, churchID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE event_church_links SET registered_count = registered_count + 1
		 WHERE event_id = $1 AND church_id = $2`,
		eventID, churchID,
	)
	if err != nil {
		return classify("increment ledger row", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DecrementLink subtracts one from registered_count without going below zero.
func (s *Store) DecrementLink(ctx context.Context, eventID, churchID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE event_church_links SET registered_count = registered_count - 1
		 WHERE event_id = $1 AND church_id = $2 AND registered_count > 0`,
		eventID, churchID,
	)
	return classify("decrement ledger row", err)
}

// SetRegisteredCount overwrites the stored count.
func (s *Store) SetRegisteredCount(ctx context.Context, eventID, churchID uuid.UUID, n int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE event_church_links SET registered_count = $3
		 WHERE event_id = $1 AND church_id = $2`,
		eventID, churchID, n,
	)
	return classify("set registered count", err)
}

// ListLinks returns the ledger rows of one event, or of every event when
// eventID is nil.
func (s *Store) ListLinks(ctx context.Context, eventID *uuid.UUID) ([]model.EventChurchLink, error) {
	rows, err := s.db.Query(ctx,
		`SELECT event_id, church_id, quota_limit, registered_count
		 FROM event_church_links
		 WHERE $1::uuid IS NULL OR event_id = $1
		 ORDER BY event_id, church_id`,
		eventID,
	)
	if err != nil {
		return nil, classify("list ledger rows", err)
	}
	links, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.EventChurchLink, error) {
		var l model.EventChurchLink
		err := row.Scan(&l.EventID, &l.ChurchID, &l.QuotaLimit, &l.RegisteredCount)
		return l, err
	})
	return links, classify("list ledger rows", err)
}

// ChurchStats returns one entry per invited church with live checked-in counts.
func (s *Store) ChurchStats(ctx context.Context, eventID uuid.UUID) ([]model.ChurchStats, error) {
	rows, err := s.db.Query(ctx,
		`SELECT l.church_id, c.name, l.quota_limit, l.registered_count,
		        (SELECT COUNT(*) FROM attendees a
		          WHERE a.event_id = l.event_id AND a.church_id = l.church_id
		            AND a.checked_in_at IS NOT NULL)
		 FROM event_church_links l
		 JOIN churches c ON c.id = l.church_id
		 WHERE l.event_id = $1
		 ORDER BY c.name`,
		eventID,
	)
	if err != nil {
		return nil, classify("church stats", err)
	}
	stats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ChurchStats, error) {
		var cs model.ChurchStats
		err := row.Scan(&cs.ChurchID, &cs.ChurchName, &cs.QuotaLimit, &cs.RegisteredCount, &cs.CheckedInCount)
		return cs, err
	})
	return stats, classify("church stats", err)
}
