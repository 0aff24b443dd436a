package handler

import (
	"net/http"

	"github.com/fimlm/myidmji/internal/model"
)

// Register handles POST /events/{eventID}/register
// Admits one attendee under the caller's church if the event quota allows.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body: "+err.Error())
		return
	}

	attendee, err := h.svc.Register(r.Context(), eventID, PrincipalFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attendee)
}

// CheckIn handles POST /events/{eventID}/attendees/{attendeeID}/checkin
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	attendeeID, ok := uuidParam(w, r, "attendeeID")
	if !ok {
		return
	}

	attendee, err := h.svc.CheckIn(r.Context(), eventID, attendeeID, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attendee)
}

// DeleteAttendee handles DELETE /events/{eventID}/attendees/{attendeeID}
func (h *Handler) DeleteAttendee(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	attendeeID, ok := uuidParam(w, r, "attendeeID")
	if !ok {
		return
	}

	if err := h.svc.DeleteAttendee(r.Context(), eventID, attendeeID, PrincipalFrom(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Attendee deleted"})
}

// ListAttendees handles GET /events/{eventID}/attendees?q=&skip=&limit=
func (h *Handler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	skip, limit, ok := page(w, r)
	if !ok {
		return
	}

	attendees, err := h.svc.ListAttendees(r.Context(), eventID, r.URL.Query().Get("q"), skip, limit, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attendees)
}

// SearchByDocument handles GET /events/{eventID}/attendees/search?document_id=
func (h *Handler) SearchByDocument(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	attendee, err := h.svc.SearchByDocument(r.Context(), eventID, r.URL.Query().Get("document_id"), PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attendee)
}

// SearchByName handles GET /events/{eventID}/attendees/search-by-name?q=&limit=
func (h *Handler) SearchByName(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit", 10)
	if !ok {
		return
	}
	attendees, err := h.svc.SearchByName(r.Context(), eventID, r.URL.Query().Get("q"), limit, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attendees)
}

// MyRegistrationCount handles GET /events/{eventID}/my-registration-count
func (h *Handler) MyRegistrationCount(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	n, err := h.svc.MyRegistrationCount(r.Context(), eventID, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
