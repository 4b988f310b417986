package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers prediction and optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/portfolio/", h.HandlePredict)
	r.Post("/optimize/", h.HandleOptimize)
}
