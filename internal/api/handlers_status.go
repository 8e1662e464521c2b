package api

import (
	"context"
	"net/http"
	"time"

	"github.com/creator-rewards/internal/circuitbreaker"
	"github.com/creator-rewards/internal/metrics"
)

// StatusResponse is the payload for GET /status.
type StatusResponse struct {
	Listener     metrics.StatusSnapshot `json:"listener"`
	AssetBreaker *circuitbreaker.Stats  `json:"assetBreaker,omitempty"`
}

// handleHealth handles GET /healthz. It reports unhealthy when the database
// stops answering, so an orchestrator restarts the process rather than letting
// it poll into the void.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "database unreachable")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "creator-rewards-listener",
	})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Listener: s.metrics.Snapshot(),
	}
	if s.breaker != nil {
		resp.AssetBreaker = s.breaker.GetStats()
	}

	respondJSON(w, http.StatusOK, resp)
}
