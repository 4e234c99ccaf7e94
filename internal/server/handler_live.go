package server

import (
	"net/http"

	"github.com/me/uthreads/pkg/model"
)

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.live == nil {
		respondError(w, reqID, http.StatusNotFound, &model.APIError{
			Code:    model.ErrNotFound,
			Message: "no scheduler is attached to this server",
		})
		return
	}
	sn := s.live.Published()
	if sn == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code:    model.ErrInternal,
			Message: "scheduler has not published any state yet",
		})
		return
	}
	respondOK(w, reqID, sn)
}
