package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Negotiations
		r.Post("/negotiations", h.CreateNegotiation)
		r.Get("/negotiations/{contractID}", h.GetNegotiation)
		r.Post("/negotiations/{contractID}/process", h.ProcessRound)

		// Rounds and selections
		r.Get("/negotiations/{contractID}/rounds/{round}", h.GetRound)
		r.Get("/negotiations/{contractID}/rounds/{round}/selections", h.GetSelectionState)
		r.Post("/negotiations/{contractID}/selections", h.SubmitSelections)

		// Revision history and the final document
		r.Get("/negotiations/{contractID}/history", h.GetFixHistory)
		r.Get("/negotiations/{contractID}/final", h.GetFinalContract)
	})
}
