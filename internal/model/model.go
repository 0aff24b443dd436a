// Package model defines the core domain types for the gathering registration system.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Church is an invited organization that registers attendees under its own allocation.
type Church struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Event is a gathering with a global attendee cap.
type Event struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	Description         *string    `json:"description,omitempty"`
	TotalQuota          int        `json:"total_quota"`
	StartDate           *time.Time `json:"start_date,omitempty"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	MaxRegistrationDate *time.Time `json:"max_registration_date,omitempty"`
	IsActive            bool       `json:"is_active"`
	CreatedAt           time.Time  `json:"created_at"`
}

// RegistrationClosed reports whether the registration deadline has passed at now.
func (e *Event) RegistrationClosed(now time.Time) bool {
	return e.MaxRegistrationDate != nil && now.After(*e.MaxRegistrationDate)
}

// EventChurchLink is the quota ledger row for one (event, church) pair.
// QuotaLimit is advisory; only the event's TotalQuota gates admission.
type EventChurchLink struct {
	EventID         uuid.UUID `json:"event_id"`
	ChurchID        uuid.UUID `json:"church_id"`
	QuotaLimit      int       `json:"quota_limit"`
	RegisteredCount int       `json:"registered_count"`
}

// Attendee is a person registered for an event by a church's staff.
type Attendee struct {
	ID             uuid.UUID  `json:"id"`
	FullName       string     `json:"full_name"`
	DocumentID     *string    `json:"document_id,omitempty"`
	EventID        uuid.UUID  `json:"event_id"`
	ChurchID       uuid.UUID  `json:"church_id"`
	RegisteredByID uuid.UUID  `json:"registered_by_id"`
	CreatedAt      time.Time  `json:"created_at"`
	CheckedInAt    *time.Time `json:"checked_in_at,omitempty"`
	CheckedInByID  *uuid.UUID `json:"checked_in_by_id,omitempty"`

	ChurchName string `json:"church_name,omitempty"`
	EventName  string `json:"event_name,omitempty"`
}

// CheckedIn reports whether the attendee has already been admitted at the door.
func (a *Attendee) CheckedIn() bool {
	return a.CheckedInAt != nil
}

// Role is the staff role carried by an authenticated principal.
type Role string

const (
	RoleUser       Role = "user"
	RoleDigiter    Role = "digiter"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// Principal is the authenticated caller of a core operation.
type Principal struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email,omitempty"`
	Role        Role       `json:"role"`
	IsSuperuser bool       `json:"is_superuser"`
	ChurchID    *uuid.UUID `json:"church_id,omitempty"`
}

// ─── Requests ────────────────────────────────────────────────────────────────

// CreateChurchRequest is the payload for creating a church.
type CreateChurchRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name                string     `json:"name" validate:"required,min=1,max=255"`
	Description         *string    `json:"description" validate:"omitempty,max=1000"`
	TotalQuota          int        `json:"total_quota" validate:"gte=0"`
	StartDate           *time.Time `json:"start_date"`
	EndDate             *time.Time `json:"end_date"`
	MaxRegistrationDate *time.Time `json:"max_registration_date"`
	IsActive            *bool      `json:"is_active"`
}

// RegisterRequest is the payload for registering an attendee.
type RegisterRequest struct {
	FullName   string  `json:"full_name" validate:"required,min=1,max=255"`
	DocumentID *string `json:"document_id" validate:"omitempty,max=50"`
}

// InviteRequest assigns an advisory quota to a church for an event.
type InviteRequest struct {
	ChurchID uuid.UUID `json:"church_id" validate:"required"`
	Quota    int       `json:"quota" validate:"gte=0"`
}

// InviteByNameRequest invites a church by name, creating it when missing.
type InviteByNameRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=255"`
	Quota int    `json:"quota" validate:"gte=0"`
}

// BulkInviteRequest wraps several invitations.
type BulkInviteRequest struct {
	Invites []InviteRequest `json:"invites" validate:"dive"`
}

// BulkInviteByNameRequest wraps several by-name invitations.
type BulkInviteByNameRequest struct {
	Invites []InviteByNameRequest `json:"invites" validate:"dive"`
}

// ─── Results ─────────────────────────────────────────────────────────────────

// ChurchStats is the per-church slice of an event's statistics.
type ChurchStats struct {
	ChurchID        uuid.UUID `json:"church_id"`
	ChurchName      string    `json:"church_name"`
	QuotaLimit      int       `json:"quota_limit"`
	RegisteredCount int       `json:"registered_count"`
	CheckedInCount  int       `json:"checked_in_count"`
}

// EventStats aggregates ledger and check-in counts for an event.
type EventStats struct {
	EventID         uuid.UUID     `json:"event_id"`
	EventName       string        `json:"event_name"`
	TotalQuota      int           `json:"total_quota"`
	TotalRegistered int           `json:"total_registered"`
	CheckedInCount  int           `json:"checked_in_count"`
	PerChurch       []ChurchStats `json:"per_church"`
}

// DuplicateGroup is a set of attendees sharing a document id within one event,
// ordered by creation time ascending.
type DuplicateGroup struct {
	DocumentID string     `json:"document_id"`
	Count      int        `json:"count"`
	Attendees  []Attendee `json:"attendees"`
}

// CleanupResult summarises a duplicate cleanup run.
type CleanupResult struct {
	DeletedCount          int `json:"deleted_count"`
	ReconciledChurchCount int `json:"reconciled_church_count"`
	FailedChurchCount     int `json:"failed_church_count"`
}

// ReconcileResult summarises a ledger reconciliation run.
type ReconcileResult struct {
	Checked   int `json:"checked"`
	Corrected int `json:"corrected"`
	Failed    int `json:"failed"`
}

// ChurchList is a page of churches with the overall total.
type ChurchList struct {
	Data  []Church `json:"data"`
	Count int      `json:"count"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RegistrationResult summarises the outcome of a single registration attempt.
// Collected when many registrations race for the same seats.
type RegistrationResult struct {
	Attendee *Attendee
	Err      error
}
