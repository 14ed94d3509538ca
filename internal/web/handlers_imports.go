package web

import (
	"bytes"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/leadflow/internal/web/views"
)

// handleCreateImport opens a session and uploads the file into it. A file
// that cannot be parsed leaves the session in the upload stage; its id is
// returned with the 422 so the client can retry the upload.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	file, header, err := formFile(w, r, s.cfg.Import.MaxFileSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	campaignID, err := parseCampaignID(r.FormValue("campaign_id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sess, err := s.service.StartImport(r.Context(), tenantID(r), header.Filename, file, campaignID)
	if err != nil {
		s.respondSessionError(w, r, err, sess.ID)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Summary())
}

// handleUploadFile uploads a file into an existing session, typically after
// a rejected upload or a step back.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	file, header, err := formFile(w, r, s.cfg.Import.MaxFileSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	sess, err := s.service.Upload(r.Context(), sessionID(r), tenantID(r), header.Filename, file)
	if err != nil {
		s.respondSessionError(w, r, err, sess.ID)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Get(r.Context(), sessionID(r), tenantID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), sessionID(r), tenantID(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateMapping applies manual overrides. An empty header unmaps the
// field.
func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.respondError(w, r, err)
		return
	}
	overrides, err := req.overrides()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sess, err := s.service.UpdateMapping(r.Context(), sessionID(r), tenantID(r), overrides)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

// handleConfirmMapping normalizes the rows and moves the session to preview.
func (s *Server) handleConfirmMapping(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.ConfirmMapping(r.Context(), sessionID(r), tenantID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

// handlePreview returns the preview as JSON, or as a table fragment for
// HTMX requests.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.service.Preview(r.Context(), sessionID(r), tenantID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if !isHTMX(r) {
		writeJSON(w, http.StatusOK, preview)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.Preview(preview).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err)
	}
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Back(r.Context(), sessionID(r), tenantID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Reset(r.Context(), sessionID(r), tenantID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

// handleCommit submits the valid rows. A gateway failure still returns 200:
// the session is complete and the result carries the error.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.respondError(w, r, err)
		return
	}
	campaignID, err := parseCampaignID(req.CampaignID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sess, err := s.service.Commit(r.Context(), sessionID(r), tenantID(r), campaignID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

// handleInvalidRows downloads the invalid rows with their errors as CSV.
func (s *Server) handleInvalidRows(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	sess, err := s.service.Get(r.Context(), id, tenantID(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.service.WriteInvalidRows(r.Context(), id, tenantID(r), &buf); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+invalidRowsFileName(sess.FileName)+`"`)
	_, _ = w.Write(buf.Bytes())
}

// invalidRowsFileName derives the download name from the uploaded file.
func invalidRowsFileName(uploaded string) string {
	base := strings.TrimSuffix(filepath.Base(uploaded), filepath.Ext(uploaded))
	base = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, base)
	if base == "" || base == "." {
		base = "import"
	}
	return base + "-invalid.csv"
}
