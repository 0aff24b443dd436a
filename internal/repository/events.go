package repository

import (
	"context"
	"fmt"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const eventColumns = `id, name, description, total_quota, start_date, end_date,
	max_registration_date, is_active, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.TotalQuota, &e.StartDate, &e.EndDate,
		&e.MaxRegistrationDate, &e.IsActive, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEvent inserts e. CreatedAt is filled in from the database.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO events (id, name, description, total_quota, start_date, end_date,
		                     max_registration_date, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		e.ID, e.Name, e.Description, e.TotalQuota, e.StartDate, e.EndDate,
		e.MaxRegistrationDate, e.IsActive,
	).Scan(&e.CreatedAt)
	return classify("insert event", err)
}

// GetEvent returns a single event or ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, classify("get event", err)
	}
	return e, nil
}

// LockEvent reads the event and takes an exclusive row lock held until the
// surrounding transaction ends. Every registration for the event queues here,
// which keeps the global quota sum stable between check and increment.
func (s *Store) LockEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, classify("lock event row", err)
	}
	return e, nil
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	ActiveOnly bool
	// InvitedChurchID restricts the list to events the church holds a ledger row for.
	InvitedChurchID *uuid.UUID
}

// ListEvents returns events ordered by creation time descending.
func (s *Store) ListEvents(ctx context.Context, f EventFilter, skip, limit int) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e WHERE TRUE`
	var args []any
	if f.ActiveOnly {
		query += ` AND e.is_active`
	}
	if f.InvitedChurchID != nil {
		args = append(args, *f.InvitedChurchID)
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM event_church_links l
			WHERE l.event_id = e.id AND l.church_id = $%d)`, len(args))
	}
	args = append(args, limit, skip)
	query += fmt.Sprintf(` ORDER BY e.created_at DESC, e.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list events", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, classify("list events", rows.Err())
}

// ListEventIDs returns the id of every event.
func (s *Store) ListEventIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM events ORDER BY created_at, id`)
	if err != nil {
		return nil, classify("list event ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	return ids, classify("list event ids", err)
}

// SetEventActive flips is_active and returns the updated event.
func (s *Store) SetEventActive(ctx context.Context, id uuid.UUID, active bool) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRow(ctx,
		`UPDATE events SET is_active = $2 WHERE id = $1 RETURNING `+eventColumns, id, active))
	if err != nil {
		return nil, classify("update event", err)
	}
	return e, nil
}

// CreateChurch inserts c; a duplicate name yields ErrConflict.
func (s *Store) CreateChurch(ctx context.Context, c *model.Church) error {
	_, err := s.db.Exec(ctx, `INSERT INTO churches (id, name) VALUES ($1, $2)`, c.ID, c.Name)
	return classify("insert church", err)
}

// GetChurch returns a single church or ErrNotFound.
func (s *Store) GetChurch(ctx context.Context, id uuid.UUID) (*model.Church, error) {
	var c model.Church
	err := s.db.QueryRow(ctx, `SELECT id, name FROM churches WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, classify("get church", err)
	}
	return &c, nil
}

// GetChurchByName returns the church with the exact name or ErrNotFound.
func (s *Store) GetChurchByName(ctx context.Context, name string) (*model.Church, error) {
	var c model.Church
	err := s.db.QueryRow(ctx, `SELECT id, name FROM churches WHERE name = $1`, name).Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, classify("get church by name", err)
	}
	return &c, nil
}

// ListChurches pages through churches ordered by name.
func (s *Store) ListChurches(ctx context.Context, skip, limit int) ([]model.Church, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name FROM churches ORDER BY name, id LIMIT $1 OFFSET $2`, limit, skip)
	if err != nil {
		return nil, classify("list churches", err)
	}
	churches, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Church])
	return churches, classify("list churches", err)
}

// CountChurches returns the number of churches.
func (s *Store) CountChurches(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM churches`).Scan(&n)
	return n, classify("count churches", err)
}

// InvitedChurches returns the churches holding a ledger row for the event.
func (s *Store) InvitedChurches(ctx context.Context, eventID uuid.UUID) ([]model.Church, error) {
	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.name
		 FROM churches c
		 JOIN event_church_links l ON l.church_id = c.id
		 WHERE l.event_id = $1
		 ORDER BY c.name, c.id`,
		eventID,
	)
	if err != nil {
		return nil, classify("list invited churches", err)
	}
	churches, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Church])
	return churches, classify("list invited churches", err)
}
