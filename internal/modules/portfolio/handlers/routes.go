package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers portfolio store routes. POST /portfolio/ is
// owned by the advisor handlers, so these routes are added flat rather
// than under a /portfolio sub-router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/create_portfolio/", h.HandleCreatePortfolio)
	r.Get("/portfolio/{email}", h.HandleGetPortfolio)
}
