// Package handlers provides HTTP handlers for stored portfolios.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/cryptosage/backend/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Store reads and writes holdings snapshots.
type Store interface {
	GetHoldings(ctx context.Context, email string) (domain.Holdings, error)
	SaveHoldings(ctx context.Context, email string, holdings domain.Holdings) (string, error)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	store   Store
	aliases map[string]string
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler. aliases maps exchange
// tickers (e.g. XXBT) onto the symbols used for market data.
func NewHandler(store Store, aliases map[string]string, log zerolog.Logger) *Handler {
	return &Handler{
		store:   store,
		aliases: aliases,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

type createPortfolioRequest struct {
	Email     string          `json:"email"`
	Portfolio domain.Holdings `json:"portfolio"`
}

type portfolioResponse struct {
	Message   string          `json:"message,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Email     string          `json:"email"`
	Portfolio domain.Holdings `json:"portfolio"`
}

// HandleCreatePortfolio stores the submitted holdings for a user,
// replacing any previous snapshot.
func (h *Handler) HandleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	holdings := req.Portfolio.Normalize(h.aliases)
	if err := holdings.Validate(); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := h.store.SaveHoldings(r.Context(), req.Email, holdings)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, portfolioResponse{
		Message:   "Portfolio saved",
		UserID:    userID,
		Email:     req.Email,
		Portfolio: holdings,
	})
}

// HandleGetPortfolio returns the stored holdings of a user.
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	holdings, err := h.store.GetHoldings(r.Context(), email)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, portfolioResponse{Email: email, Portfolio: holdings})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, domain.ErrInvalidHoldings):
		h.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		h.writeError(w, r, http.StatusNotFound, err.Error())
	default:
		h.log.Error().Err(err).Msg("Portfolio store failed")
		h.writeError(w, r, http.StatusInternalServerError, "failed to access portfolio store")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := utils.WriteResponse(w, r, status, data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, r, status, map[string]string{"error": message})
}
