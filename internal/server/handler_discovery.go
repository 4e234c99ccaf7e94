package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	endpoints := []endpointInfo{
		{"/api/v1/runs", []string{"GET"}, "Recorded scheduler runs, newest first. ?scenario= filters by name"},
		{"/api/v1/runs/{id}", []string{"GET", "DELETE"}, "Single run"},
		{"/api/v1/runs/{id}/events", []string{"GET"}, "Event trace of a run in sequence order. ?kind= filters by event kind"},
		{"/api/v1/live", []string{"GET"}, "State last published by the in-process scheduler"},
		{"/api/v1/health", []string{"GET"}, "Server health and version"},
	}
	if s.gatherer != nil {
		endpoints = append(endpoints, endpointInfo{"/metrics", []string{"GET"}, "Prometheus metrics"})
	}
	respondOK(w, reqID, discoveryResponse{
		Name:        "uthreads inspector",
		Version:     "v1",
		Description: "Recorded traces and live state of the user-level thread scheduler",
		Endpoints:   endpoints,
	})
}
