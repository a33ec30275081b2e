package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// CreateSessionRequest is the session issuance request.
type CreateSessionRequest struct {
	Address string `json:"address"`
	ChainID int64  `json:"chain_id,omitempty"`
	Origin  string `json:"origin"`
}

// CreateSessionResponse returns the opaque session token and its lifetime.
type CreateSessionResponse struct {
	SessionID   string `json:"session_id"`
	ExpiresInMs int64  `json:"expires_in_ms"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Malformed("invalid request body: "+err.Error()))
		return
	}
	if req.Address == "" || req.Origin == "" {
		writeError(w, apperrors.Malformed("address and origin are required"))
		return
	}

	sess, err := s.service.CreateSession(r.Context(), req.Address, req.ChainID, req.Origin)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID:   sess.ID,
		ExpiresInMs: types.SessionTTL.Milliseconds(),
	})
}
