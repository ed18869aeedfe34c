package server

import (
	"net/http"
)

// OffsetsRequest asks for cut-site offsets of every reference in a session.
type OffsetsRequest struct {
	ServerID   string `json:"serverId"`
	FastaREStr string `json:"fastaREStr"`
}

// handleModels lists the available consensus models
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.models.Models(r.Context())
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"models": models})
}

// handleEnzymeOffsets runs the cut-site finder over a reference session
func (s *Server) handleEnzymeOffsets(w http.ResponseWriter, r *http.Request) {
	var req OffsetsRequest
	if !s.decode(w, r, &req) {
		return
	}
	data, err := s.cutSites.Offsets(r.Context(), req.ServerID, req.FastaREStr)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"serverId": req.ServerID, "data": data})
}
