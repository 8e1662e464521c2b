package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/creator-rewards/internal/assets"
	"github.com/creator-rewards/internal/models"
	"github.com/gorilla/mux"
)

// ClaimListResponse is the payload for GET /api/v1/wallets/{wallet}/claims.
type ClaimListResponse struct {
	Wallet string                     `json:"wallet"`
	Claims []*models.CollectibleToken `json:"claims"`
}

// handleListClaims handles GET /api/v1/wallets/{wallet}/claims.
func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	if wallet == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Wallet parameter required")
		return
	}

	tokens, err := s.claimService.ListPending(r.Context(), wallet)
	if err != nil {
		s.logger.WithError(err).Error("list pending claims failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred")
		return
	}
	if tokens == nil {
		tokens = []*models.CollectibleToken{}
	}

	respondJSON(w, http.StatusOK, ClaimListResponse{Wallet: wallet, Claims: tokens})
}

// handleClaim handles POST /api/v1/wallets/{wallet}/claims/{tokenId}.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	wallet := vars["wallet"]
	tokenID, err := strconv.ParseInt(vars["tokenId"], 10, 64)
	if err != nil || wallet == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Wallet and numeric token id required")
		return
	}

	token, err := s.claimService.Claim(r.Context(), wallet, tokenID)
	if err != nil {
		switch {
		case errors.Is(err, assets.ErrNoPendingClaim):
			respondError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		case errors.Is(err, assets.ErrNotOptedIn):
			respondError(w, http.StatusConflict, ErrCodeNotOptedIn, err.Error())
		default:
			s.logger.WithError(err).Error("claim failed")
			respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred")
		}
		return
	}

	respondJSON(w, http.StatusOK, token)
}
