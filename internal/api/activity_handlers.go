package api

import (
	"net/http"

	"github.com/ward-wallet/ward-wallet/internal/middleware"
	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// ListActivitiesResponse mirrors the INITIAL_DATA payload shape, so REST
// and WebSocket consumers share one decoding path.
type ListActivitiesResponse struct {
	Activities []*types.ActivityRecord `json:"activities"`
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeError(w, apperrors.ErrUnauthorized)
		return
	}

	recs, err := s.service.Activities(r.Context(), sess.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []*types.ActivityRecord{}
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Activities: recs})
}
