package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/me/uthreads/pkg/model"
)

// parseListOptions reads limit, offset, scenario and kind query parameters.
func parseListOptions(r *http.Request) (model.ListOptions, *model.APIError) {
	opts := model.DefaultListOptions()
	q := r.URL.Query()
	var details []model.FieldError
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &opts.Limit}, {"offset", &opts.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			details = append(details, model.FieldError{Field: p.name, Message: "must be an integer"})
			continue
		}
		*p.dst = n
	}
	if len(details) > 0 {
		return opts, model.NewValidationError("invalid query parameters", details...)
	}
	opts.Scenario = q.Get("scenario")
	opts.Kind = q.Get("kind")
	opts.Clamp()
	return opts, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		respondStoreError(w, reqID, err)
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	respondList(w, reqID, runs, model.NewPagination(opts, len(runs), total))
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.logger.Error("get run", "id", id, "error", err)
		respondStoreError(w, reqID, err)
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return
	}
	respondOK(w, reqID, run)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteRun(r.Context(), id); err != nil {
		respondStoreError(w, reqID, err)
		return
	}
	respondNoContent(w, reqID)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondStoreError(w, reqID, err)
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return
	}

	events, total, err := s.store.ListEvents(r.Context(), id, opts)
	if err != nil {
		s.logger.Error("list events", "id", id, "error", err)
		respondStoreError(w, reqID, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	respondList(w, reqID, events, model.NewPagination(opts, len(events), total))
}
