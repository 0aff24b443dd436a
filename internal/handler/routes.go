package handler

import (
	"net/http"

	"github.com/fimlm/myidmji/internal/auth"
	"github.com/fimlm/myidmji/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// NewRouter builds the HTTP API. Everything except /health and /metrics
// requires a bearer token.
func NewRouter(h *Handler, tokens *auth.JWTManager, logger zerolog.Logger, db Pinger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(CorrelationID(logger))
	r.Use(RequestLogging)
	r.Use(metrics.Middleware)

	r.Get("/health", HealthCheck(db))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(tokens))

		r.Route("/churches", func(r chi.Router) {
			r.Post("/", h.CreateChurch)
			r.Get("/", h.ListChurches)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.CreateEvent)
			r.Get("/", h.ListEvents)
			r.Get("/my-events", h.MyEvents)

			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", h.GetEvent)
				r.Patch("/", h.UpdateEvent)
				r.Get("/churches", h.EventChurches)
				r.Put("/invite", h.InviteChurch)
				r.Put("/invite-bulk", h.InviteChurches)
				r.Put("/invite-create-bulk", h.InviteChurchesByName)
				r.Get("/stats", h.EventStats)
				r.Get("/duplicates", h.FindDuplicates)
				r.Post("/duplicates/cleanup", h.CleanupDuplicates)
				r.Post("/reconcile", h.Reconcile)

				r.Post("/register", h.Register)
				r.Get("/my-registration-count", h.MyRegistrationCount)
				r.Get("/attendees", h.ListAttendees)
				r.Get("/attendees/search", h.SearchByDocument)
				r.Get("/attendees/search-by-name", h.SearchByName)
				r.Delete("/attendees/{attendeeID}", h.DeleteAttendee)
				r.Post("/attendees/{attendeeID}/checkin", h.CheckIn)
			})
		})
	})

	return r
}
