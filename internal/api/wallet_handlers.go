package api

import (
	"encoding/json"
	"net/http"

	"github.com/ward-wallet/ward-wallet/internal/app"
	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// CreateWalletRequest is the wallet onboarding request. The seed phrase is
// sealed server-side and never returned.
type CreateWalletRequest struct {
	SeedPhrase   string `json:"seed_phrase"`
	Chain        string `json:"chain"`
	AccountIndex uint32 `json:"account_index,omitempty"`
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req CreateWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Malformed("invalid request body: "+err.Error()))
		return
	}
	if req.SeedPhrase == "" {
		writeError(w, apperrors.ErrInvalidSeed)
		return
	}

	chain, ok := types.ParseChain(req.Chain)
	if !ok {
		writeError(w, apperrors.ChainNotSupported(req.Chain))
		return
	}

	resp, err := s.service.CreateWallet(r.Context(), &app.CreateWalletRequest{
		SeedPhrase:   req.SeedPhrase,
		Chain:        chain,
		AccountIndex: req.AccountIndex,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}
