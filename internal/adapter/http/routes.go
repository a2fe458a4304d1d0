package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.CreateRun)
		r.Get("/", h.ListRuns)
		r.Get("/{id}", h.GetRun)
		r.Put("/{id}", h.UpdateRun)
		r.Post("/{id}/start", h.StartRun)
		r.Post("/{id}/cancel", h.CancelRun)
		r.Post("/{id}/complete", h.CompleteRun)
	})
}
