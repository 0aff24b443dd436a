package handler

import (
	"net/http"

	"github.com/fimlm/myidmji/internal/model"
	"github.com/rs/zerolog"
)

// CreateChurch handles POST /churches
func (h *Handler) CreateChurch(w http.ResponseWriter, r *http.Request) {
	var req model.CreateChurchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body: "+err.Error())
		return
	}
	church, err := h.svc.CreateChurch(r.Context(), req, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, church)
}

// ListChurches handles GET /churches
func (h *Handler) ListChurches(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := page(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListChurches(r.Context(), skip, limit, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateEvent handles POST /events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body: "+err.Error())
		return
	}
	event, err := h.svc.CreateEvent(r.Context(), req, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := page(w, r)
	if !ok {
		return
	}
	events, err := h.svc.ListEvents(r.Context(), PrincipalFrom(r.Context()), skip, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// MyEvents handles GET /events/my-events
func (h *Handler) MyEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.MyEvents(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{eventID}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	event, err := h.svc.GetEvent(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

type updateEventRequest struct {
	IsActive *bool `json:"is_active"`
}

// UpdateEvent handles PATCH /events/{eventID}. Only the active flag can change.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	var req updateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body: "+err.Error())
		return
	}
	if req.IsActive == nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_INPUT", "is_active is required")
		return
	}
	event, err := h.svc.SetEventActive(r.Context(), eventID, *req.IsActive, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// EventChurches handles GET /events/{eventID}/churches
func (h *Handler) EventChurches(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	list, err := h.svc.EventChurches(r.Context(), eventID, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// InviteChurch handles PUT /events/{eventID}/invite
func (h *Handler) InviteChurch(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	var req model.InviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body: "+err.Error())
		return
	}
	link, err := h.svc.InviteChurch(r.Context(), eventID, req, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// InviteChurches handles PUT /events/{eventID}/invite-bulk. The body is a
// JSON array of invitations.
func (h *Handler) InviteChurches(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	var invites []model.InviteRequest
	if err := decodeJSON(w, r, &invites); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body: "+err.Error())
		return
	}
	links, err := h.svc.InviteChurches(r.Context(), eventID, model.BulkInviteRequest{Invites: invites}, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// InviteChurchesByName handles PUT /events/{eventID}/invite-create-bulk
func (h *Handler) InviteChurchesByName(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	var invites []model.InviteByNameRequest
	if err := decodeJSON(w, r, &invites); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body: "+err.Error())
		return
	}
	links, err := h.svc.InviteChurchesByName(r.Context(), eventID, model.BulkInviteByNameRequest{Invites: invites}, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// EventStats handles GET /events/{eventID}/stats
func (h *Handler) EventStats(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	stats, err := h.svc.EventStats(r.Context(), eventID, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// FindDuplicates handles GET /events/{eventID}/duplicates
func (h *Handler) FindDuplicates(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	groups, err := h.svc.FindDuplicates(r.Context(), eventID, PrincipalFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// CleanupDuplicates handles POST /events/{eventID}/duplicates/cleanup. With
// ?async=true the cleanup is queued and 202 returned with the job id.
func (h *Handler) CleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}

	if r.URL.Query().Get("async") == "true" {
		if err := h.svc.AuthorizeMaintenance(r.Context(), eventID, PrincipalFrom(r.Context())); err != nil {
			writeServiceError(w, r, err)
			return
		}
		if h.queue == nil {
			writeError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "background jobs are not enabled")
			return
		}
		jobID, err := h.queue.EnqueueDuplicateCleanup(r.Context(), eventID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]int64{"job_id": jobID})
		return
	}

	res, err := h.svc.CleanupDuplicates(r.Context(), eventID, PrincipalFrom(r.Context()))
	if err != nil && res == nil {
		writeServiceError(w, r, err)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).
			Int("deleted", res.DeletedCount).
			Int("failed", res.FailedChurchCount).
			Msg("duplicate cleanup left ledger rows unreconciled")
	}
	writeJSON(w, http.StatusOK, res)
}

// Reconcile handles POST /events/{eventID}/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	eventID, ok := uuidParam(w, r, "eventID")
	if !ok {
		return
	}
	res, err := h.svc.Reconcile(r.Context(), &eventID, PrincipalFrom(r.Context()))
	if err != nil && res == nil {
		writeServiceError(w, r, err)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Int("failed", res.Failed).Msg("reconciliation partially failed")
	}
	writeJSON(w, http.StatusOK, res)
}
