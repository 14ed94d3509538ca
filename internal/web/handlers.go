package web

import (
	"net/http"

	"github.com/JonMunkholm/leadflow/internal/core"
)

type healthResponse struct {
	Status   string             `json:"status"`
	Sessions int                `json:"sessions"`
	Commits  core.LimiterStatus `json:"commits"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Sessions: s.service.SessionCount(),
		Commits:  s.service.LimiterStatus(),
	})
}

// handleFields lists the canonical lead fields for the mapping screen.
func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Fields())
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.service.Campaigns(r.Context(), tenantID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

// handleHistory returns the tenant's recent commits, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := min(parseIntParam(r, "limit", core.DefaultHistoryLimit), 500)
	entries, err := s.service.History(r.Context(), tenantID(r), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
