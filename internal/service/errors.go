package service

import (
	"errors"
	"fmt"

	"github.com/fimlm/myidmji/internal/repository"
)

// Kind classifies a failure independently of its message so transports can
// map it without string matching.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindStateConflict
	KindPermissionDenied
	KindCapacityExceeded
	KindIntegrityMismatch
	KindInvalid
	// KindTransient failures left no trace in the store; retrying the whole
	// operation is safe.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindPermissionDenied:
		return "permission_denied"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindIntegrityMismatch:
		return "integrity_mismatch"
	case KindInvalid:
		return "invalid"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Error is a classified business or store failure with a stable symbolic code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so wrapped copies of a sentinel still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrEventNotFound         = &Error{Kind: KindNotFound, Code: "EVENT_NOT_FOUND", Message: "event not found"}
	ErrAttendeeNotFound      = &Error{Kind: KindNotFound, Code: "ATTENDEE_NOT_FOUND", Message: "attendee not found"}
	ErrChurchNotFound        = &Error{Kind: KindNotFound, Code: "CHURCH_NOT_FOUND", Message: "church not found"}
	ErrEventNotActive        = &Error{Kind: KindStateConflict, Code: "EVENT_NOT_ACTIVE", Message: "event is not active"}
	ErrRegistrationClosed    = &Error{Kind: KindStateConflict, Code: "EVENT_REGISTRATION_CLOSED", Message: "registration deadline has passed"}
	ErrAlreadyCheckedIn      = &Error{Kind: KindStateConflict, Code: "ALREADY_CHECKED_IN", Message: "attendee already checked in"}
	ErrUserNoChurch          = &Error{Kind: KindPermissionDenied, Code: "USER_NO_CHURCH", Message: "user is not linked to a church"}
	ErrChurchNotInvited      = &Error{Kind: KindPermissionDenied, Code: "CHURCH_NOT_INVITED", Message: "church is not invited to this event"}
	ErrPermissionDenied      = &Error{Kind: KindPermissionDenied, Code: "PERMISSION_DENIED", Message: "not enough permissions"}
	ErrEventQuotaExceeded    = &Error{Kind: KindCapacityExceeded, Code: "EVENT_QUOTA_EXCEEDED", Message: "event quota reached"}
	ErrAttendeeEventMismatch = &Error{Kind: KindIntegrityMismatch, Code: "ATTENDEE_EVENT_MISMATCH", Message: "attendee does not belong to this event"}
	ErrChurchNameTaken       = &Error{Kind: KindStateConflict, Code: "CHURCH_NAME_TAKEN", Message: "a church with this name already exists"}
	ErrQueryTooShort         = &Error{Kind: KindInvalid, Code: "QUERY_TOO_SHORT", Message: "query string too short (min 3 chars)"}
	ErrStoreUnavailable      = &Error{Kind: KindTransient, Code: "STORE_UNAVAILABLE", Message: "store temporarily unavailable, retry"}
)

func invalid(err error) *Error {
	return &Error{Kind: KindInvalid, Code: "INVALID_INPUT", Message: err.Error(), Err: err}
}

// storeErr classifies an unexpected repository failure. ErrNotFound must be
// translated by the caller before reaching here, since only it knows which
// entity was missing.
func storeErr(op string, err error) error {
	if repository.IsTransient(err) {
		return &Error{Kind: KindTransient, Code: "STORE_UNAVAILABLE", Message: ErrStoreUnavailable.Message, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the symbolic code of err, or "INTERNAL".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}
