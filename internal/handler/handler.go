// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/fimlm/myidmji/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service is the registration core as seen by the HTTP layer.
type Service interface {
	CreateChurch(ctx context.Context, req model.CreateChurchRequest, caller *model.Principal) (*model.Church, error)
	ListChurches(ctx context.Context, skip, limit int, caller *model.Principal) (*model.ChurchList, error)
	CreateEvent(ctx context.Context, req model.CreateEventRequest, caller *model.Principal) (*model.Event, error)
	SetEventActive(ctx context.Context, eventID uuid.UUID, active bool, caller *model.Principal) (*model.Event, error)
	GetEvent(ctx context.Context, eventID uuid.UUID) (*model.Event, error)
	ListEvents(ctx context.Context, caller *model.Principal, skip, limit int) ([]model.Event, error)
	MyEvents(ctx context.Context, caller *model.Principal) ([]model.Event, error)
	EventChurches(ctx context.Context, eventID uuid.UUID, caller *model.Principal) (*model.ChurchList, error)
	InviteChurch(ctx context.Context, eventID uuid.UUID, req model.InviteRequest, caller *model.Principal) (*model.EventChurchLink, error)
	InviteChurches(ctx context.Context, eventID uuid.UUID, req model.BulkInviteRequest, caller *model.Principal) ([]model.EventChurchLink, error)
	InviteChurchesByName(ctx context.Context, eventID uuid.UUID, req model.BulkInviteByNameRequest, caller *model.Principal) ([]model.EventChurchLink, error)
	EventStats(ctx context.Context, eventID uuid.UUID, caller *model.Principal) (*model.EventStats, error)

	Register(ctx context.Context, eventID uuid.UUID, caller *model.Principal, req model.RegisterRequest) (*model.Attendee, error)
	CheckIn(ctx context.Context, eventID, attendeeID uuid.UUID, caller *model.Principal) (*model.Attendee, error)
	DeleteAttendee(ctx context.Context, eventID, attendeeID uuid.UUID, caller *model.Principal) error
	ListAttendees(ctx context.Context, eventID uuid.UUID, q string, skip, limit int, caller *model.Principal) ([]model.Attendee, error)
	SearchByDocument(ctx context.Context, eventID uuid.UUID, documentID string, caller *model.Principal) (*model.Attendee, error)
	SearchByName(ctx context.Context, eventID uuid.UUID, q string, limit int, caller *model.Principal) ([]model.Attendee, error)
	MyRegistrationCount(ctx context.Context, eventID uuid.UUID, caller *model.Principal) (int, error)

	AuthorizeMaintenance(ctx context.Context, eventID uuid.UUID, caller *model.Principal) error
	FindDuplicates(ctx context.Context, eventID uuid.UUID, caller *model.Principal) ([]model.DuplicateGroup, error)
	CleanupDuplicates(ctx context.Context, eventID uuid.UUID, caller *model.Principal) (*model.CleanupResult, error)
	Reconcile(ctx context.Context, eventID *uuid.UUID, caller *model.Principal) (*model.ReconcileResult, error)
}

// CleanupQueue hands duplicate cleanup to the background worker.
type CleanupQueue interface {
	EnqueueDuplicateCleanup(ctx context.Context, eventID uuid.UUID) (int64, error)
}

// Handler holds all HTTP handlers for the registration API.
type Handler struct {
	svc   Service
	queue CleanupQueue
}

// New constructs a Handler. queue may be nil, in which case asynchronous
// cleanup requests are rejected.
func New(svc Service, queue CleanupQueue) *Handler {
	return &Handler{svc: svc, queue: queue}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: code, Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps a service failure onto an HTTP status.
func statusFor(err error) int {
	switch service.KindOf(err) {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindStateConflict:
		if errors.Is(err, service.ErrAlreadyCheckedIn) {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case service.KindPermissionDenied:
		return http.StatusForbidden
	case service.KindCapacityExceeded, service.KindIntegrityMismatch:
		return http.StatusBadRequest
	case service.KindInvalid:
		return http.StatusUnprocessableEntity
	case service.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, status, "INTERNAL", "internal server error")
		return
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	msg := err.Error()
	var se *service.Error
	if errors.As(err, &se) {
		msg = se.Message
	}
	writeError(w, status, service.CodeOf(err), msg)
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// intQuery reads a non-negative integer query parameter, falling back to def
// when absent.
func intQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func page(w http.ResponseWriter, r *http.Request) (skip, limit int, ok bool) {
	if skip, ok = intQuery(w, r, "skip", 0); !ok {
		return 0, 0, false
	}
	if limit, ok = intQuery(w, r, "limit", 100); !ok {
		return 0, 0, false
	}
	return skip, limit, true
}

// ─── Health check ─────────────────────────────────────────────────────────────

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck handles GET /health
func HealthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("health check: database unreachable")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
