package server

import (
	"net/http"

	"github.com/cryptosage/backend/internal/utils"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": s.version,
		"service": "cryptosage",
	}

	if err := utils.WriteResponse(w, r, http.StatusOK, response); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode health response")
	}
}
