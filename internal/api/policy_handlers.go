package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ward-wallet/ward-wallet/internal/middleware"
	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// handleGetPolicy returns the policy snapshot for the session's wallet. A
// wallet with no configured policy gets an empty (disabled) snapshot rather
// than a 404, so clients need no special case.
func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeError(w, apperrors.ErrUnauthorized)
		return
	}

	snapshot, err := s.service.GetPolicy(r.Context(), sess.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	if snapshot == nil {
		snapshot = &types.PolicySnapshot{WalletAddress: sess.Address}
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handleUpdatePolicy replaces the policy snapshot for the wallet named in
// the guardian's token. A guardian can only update the wallet it controls.
func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	guardianAddress := middleware.GetGuardianAddress(r.Context())
	if guardianAddress == "" {
		writeError(w, apperrors.ErrUnauthorized)
		return
	}

	var snapshot types.PolicySnapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		writeError(w, apperrors.Malformed("invalid request body: "+err.Error()))
		return
	}

	if snapshot.WalletAddress == "" {
		snapshot.WalletAddress = guardianAddress
	} else if !strings.EqualFold(snapshot.WalletAddress, guardianAddress) {
		writeError(w, apperrors.Unauthorized("token does not authorize this wallet"))
		return
	}

	if err := s.service.UpdatePolicy(r.Context(), &snapshot); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &snapshot)
}
