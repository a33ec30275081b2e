package api

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ward-wallet/ward-wallet/internal/middleware"
	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// RPCRequest is the provider bridge request envelope.
type RPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RPCResponse is the provider bridge response envelope.
type RPCResponse struct {
	Result any `json:"result"`
}

// signParams carries the wd_sign message.
type signParams struct {
	Message string `json:"message"`
}

// sendTransactionParams carries the wd_sendTransaction fields. Value is a
// decimal string in native units.
type sendTransactionParams struct {
	To       string `json:"to"`
	Value    string `json:"value"`
	TokenTag string `json:"token_tag,omitempty"`
	DApp     string `json:"dapp,omitempty"`
}

// handleProviderRPC dispatches provider bridge methods. The session was
// already resolved by SessionAuth; account exposure, signing, and sending
// all operate on the session's wallet.
func (s *Server) handleProviderRPC(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeError(w, apperrors.ErrUnauthorized)
		return
	}

	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Malformed("invalid request body: "+err.Error()))
		return
	}

	switch req.Method {
	case "wd_accounts", "wd_requestAccounts":
		writeJSON(w, http.StatusOK, RPCResponse{Result: []string{sess.Address}})

	case "wd_chainId":
		writeJSON(w, http.StatusOK, RPCResponse{Result: fmt.Sprintf("0x%x", sess.ChainID)})

	case "wd_getBalance":
		balance, err := s.service.GetBalance(r.Context(), sess)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RPCResponse{Result: balance.Text('f', -1)})

	case "wd_sign":
		s.handleSign(w, r, sess, req.Params)

	case "wd_sendTransaction":
		s.handleSendTransaction(w, r, sess, req.Params)

	default:
		writeError(w, apperrors.MethodNotFound(req.Method))
	}
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request, sess *types.Session, params json.RawMessage) {
	var p signParams
	if err := json.Unmarshal(params, &p); err != nil {
		writeError(w, apperrors.Malformed("invalid wd_sign params: "+err.Error()))
		return
	}
	if p.Message == "" {
		writeError(w, apperrors.Malformed("message is required"))
		return
	}

	signature, err := s.service.Sign(r.Context(), sess, []byte(p.Message))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RPCResponse{Result: signature})
}

func (s *Server) handleSendTransaction(w http.ResponseWriter, r *http.Request, sess *types.Session, params json.RawMessage) {
	var p sendTransactionParams
	if err := json.Unmarshal(params, &p); err != nil {
		writeError(w, apperrors.Malformed("invalid wd_sendTransaction params: "+err.Error()))
		return
	}
	if p.To == "" {
		writeError(w, apperrors.Malformed("recipient is required"))
		return
	}

	value, ok := new(big.Float).SetString(p.Value)
	if !ok {
		writeError(w, apperrors.Malformed("invalid transaction value: "+p.Value))
		return
	}

	hash, err := s.service.SendTransaction(r.Context(), sess, &types.ProposedTransaction{
		To:       p.To,
		Value:    value,
		TokenTag: p.TokenTag,
		DApp:     p.DApp,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RPCResponse{Result: hash})
}
