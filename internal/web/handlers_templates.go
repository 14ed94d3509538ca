package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.service.ListTemplates(r.Context(), tenantID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "templateID"))
	if err != nil {
		s.respondError(w, r, errBadRequest)
		return
	}
	if err := s.service.DeleteTemplate(r.Context(), tenantID(r), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSaveTemplate saves the session's current mapping under a name.
func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req saveTemplateRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.respondError(w, r, err)
		return
	}
	tpl, err := s.service.SaveTemplate(r.Context(), sessionID(r), tenantID(r), req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

// handleMatchTemplates suggests saved mappings for the session's file.
func (s *Server) handleMatchTemplates(w http.ResponseWriter, r *http.Request) {
	matches, err := s.service.MatchTemplates(r.Context(), sessionID(r), tenantID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	var req applyTemplateRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.respondError(w, r, err)
		return
	}
	// Validated as a uuid above.
	id := uuid.MustParse(req.TemplateID)

	sess, err := s.service.ApplyTemplate(r.Context(), sessionID(r), tenantID(r), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}
