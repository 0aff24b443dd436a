package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const attendeeColumns = `a.id, a.full_name, a.document_id, a.event_id, a.church_id, a.registered_by_id,
	a.created_at, a.checked_in_at, a.checked_in_by_id`

func scanAttendee(row pgx.Row, extra ...any) (*model.Attendee, error) {
	var a model.Attendee
	dest := []any{&a.ID, &a.FullName, &a.DocumentID, &a.EventID, &a.ChurchID, &a.RegisteredByID,
		&a.CreatedAt, &a.CheckedInAt, &a.CheckedInByID}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertAttendee creates a. CreatedAt is filled in from the database unless already set.
func (s *Store) InsertAttendee(ctx context.Context, a *model.Attendee) error {
	var createdAt *time.Time
	if !a.CreatedAt.IsZero() {
		createdAt = &a.CreatedAt
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO attendees (id, full_name, document_id, event_id, church_id, registered_by_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
		 RETURNING created_at`,
		a.ID, a.FullName, a.DocumentID, a.EventID, a.ChurchID, a.RegisteredByID, createdAt,
	).Scan(&a.CreatedAt)
	return classify("insert attendee", err)
}

// GetAttendee returns a single attendee or ErrNotFound.
func (s *Store) GetAttendee(ctx context.Context, id uuid.UUID) (*model.Attendee, error) {
	a, err := scanAttendee(s.db.QueryRow(ctx,
		`SELECT `+attendeeColumns+` FROM attendees a WHERE a.id = $1`, id))
	if err != nil {
		return nil, classify("get attendee", err)
	}
	return a, nil
}

// LockAttendee reads the attendee under an exclusive row lock so concurrent
// check-ins of the same person are serialized.
func (s *Store) LockAttendee(ctx context.Context, id uuid.UUID) (*model.Attendee, error) {
	a, err := scanAttendee(s.db.QueryRow(ctx,
		`SELECT `+attendeeColumns+` FROM attendees a WHERE a.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, classify("lock attendee row", err)
	}
	return a, nil
}

// MarkCheckedIn records the check-in. It only touches rows not yet checked in
// and reports whether a row changed.
func (s *Store) MarkCheckedIn(ctx context.Context, id uuid.UUID, at time.Time, by uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE attendees SET checked_in_at = $2, checked_in_by_id = $3
		 WHERE id = $1 AND checked_in_at IS NULL`,
		id, at, by,
	)
	if err != nil {
		return false, classify("mark checked in", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteAttendee removes the attendee row.
func (s *Store) DeleteAttendee(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM attendees WHERE id = $1`, id)
	if err != nil {
		return classify("delete attendee", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AttendeeFilter narrows ListAttendees. Zero values do not filter.
type AttendeeFilter struct {
	EventID    uuid.UUID
	ChurchID   *uuid.UUID
	DocumentID string
	// Query matches full name or document id case-insensitively.
	Query string
	// NameQuery matches full name only.
	NameQuery string
}

// ListAttendees returns matching attendees with church and event names.
func (s *Store) ListAttendees(ctx context.Context, f AttendeeFilter, skip, limit int) ([]model.Attendee, error) {
	args := []any{f.EventID}
	query := `SELECT ` + attendeeColumns + `, c.name, e.name
		FROM attendees a
		JOIN churches c ON c.id = a.church_id
		JOIN events e ON e.id = a.event_id
		WHERE a.event_id = $1`
	if f.ChurchID != nil {
		args = append(args, *f.ChurchID)
		query += fmt.Sprintf(` AND a.church_id = $%d`, len(args))
	}
	if f.DocumentID != "" {
		args = append(args, f.DocumentID)
		query += fmt.Sprintf(` AND a.document_id = $%d`, len(args))
	}
	if f.Query != "" {
		args = append(args, likePattern(f.Query))
		query += fmt.Sprintf(` AND (a.full_name ILIKE $%d ESCAPE '\' OR a.document_id ILIKE $%d ESCAPE '\')`, len(args), len(args))
	}
	if f.NameQuery != "" {
		args = append(args, likePattern(f.NameQuery))
		query += fmt.Sprintf(` AND a.full_name ILIKE $%d ESCAPE '\'`, len(args))
	}
	args = append(args, limit, skip)
	query += fmt.Sprintf(` ORDER BY a.created_at, a.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("list attendees", err)
	}
	defer rows.Close()

	var out []model.Attendee
	for rows.Next() {
		var churchName, eventName string
		a, err := scanAttendee(rows, &churchName, &eventName)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		a.ChurchName, a.EventName = churchName, eventName
		out = append(out, *a)
	}
	return out, classify("list attendees", rows.Err())
}

// likePattern wraps q in wildcards, escaping LIKE metacharacters so user input
// is matched literally.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

// CountAttendees counts the attendee rows of one (event, church) pair.
func (s *Store) CountAttendees(ctx context.Context, eventID, churchID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM attendees WHERE event_id = $1 AND church_id = $2`,
		eventID, churchID,
	).Scan(&n)
	return n, classify("count attendees", err)
}

// CountCheckedIn counts checked-in attendees of the event.
func (s *Store) CountCheckedIn(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM attendees WHERE event_id = $1 AND checked_in_at IS NOT NULL`,
		eventID,
	).Scan(&n)
	return n, classify("count checked in", err)
}

// CountByRegistrant counts attendees the given principal registered for the event.
func (s *Store) CountByRegistrant(ctx context.Context, eventID, registrantID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM attendees WHERE event_id = $1 AND registered_by_id = $2`,
		eventID, registrantID,
	).Scan(&n)
	return n, classify("count by registrant", err)
}

// DuplicateDocumentIDs returns every non-empty document id held by more than
// one attendee of the event.
func (s *Store) DuplicateDocumentIDs(ctx context.Context, eventID uuid.UUID) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT document_id
		 FROM attendees
		 WHERE event_id = $1 AND document_id IS NOT NULL AND document_id <> ''
		 GROUP BY document_id
		 HAVING COUNT(*) > 1
		 ORDER BY document_id`,
		eventID,
	)
	if err != nil {
		return nil, classify("find duplicate documents", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return docs, classify("find duplicate documents", err)
}

// AttendeesByDocument returns the attendees of the event holding documentID,
// oldest first. Ties on created_at are broken by id so the order is stable.
func (s *Store) AttendeesByDocument(ctx context.Context, eventID uuid.UUID, documentID string) ([]model.Attendee, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+attendeeColumns+`
		 FROM attendees a
		 WHERE a.event_id = $1 AND a.document_id = $2
		 ORDER BY a.created_at, a.id`,
		eventID, documentID,
	)
	if err != nil {
		return nil, classify("list attendees by document", err)
	}
	defer rows.Close()

	var out []model.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		out = append(out, *a)
	}
	return out, classify("list attendees by document", rows.Err())
}
