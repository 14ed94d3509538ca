package web

// errors.go turns service errors into HTTP responses.
//
// Every error is logged with its technical text and the request id, then
// mapped through core.MapError so clients only see the user message, the
// suggested action and the support code. HTMX requests get an HTML alert
// fragment; everything else gets JSON.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/JonMunkholm/leadflow/internal/logging"
	"github.com/JonMunkholm/leadflow/internal/web/views"
)

var (
	errBadRequest        = errors.New("invalid request")
	errInvalidCampaignID = errors.New("invalid campaign id")
	errNoFile            = errors.New("no file provided")
	errFileTooLarge      = errors.New("file too large")
	errRateLimited       = errors.New("rate limit exceeded")
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code"`
	SessionID string `json:"session_id,omitempty"`
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	var pe *core.ParseError
	switch {
	case errors.As(err, &pe):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, errInvalidCampaignID),
		errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTemplateName):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTemplateExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrTemplatesNotEnabled):
		return http.StatusNotImplemented
	case errors.Is(err, core.ErrMissingTenant):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCommitInProgress),
		errors.Is(err, core.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, core.ErrPhoneUnmapped),
		errors.Is(err, core.ErrUnknownHeader),
		errors.Is(err, core.ErrNoValidRecords),
		errors.Is(err, core.ErrCampaignNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrTooManyCommits),
		errors.Is(err, core.ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondSessionError(w, r, err, "")
}

// respondSessionError is respondError for failures that leave a session
// behind, such as a rejected upload. The session id is included in the body.
func (s *Server) respondSessionError(w http.ResponseWriter, r *http.Request, err error, sessionID string) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"tenant_id", core.TenantFromContext(r.Context()),
	)

	if isHTMX(r) {
		renderErrorPartial(w, r, userMsg, status)
		return
	}
	respondErrorJSON(w, userMsg, status, sessionID)
}

func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int, sessionID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     msg.Message,
		Message:   msg.Message,
		Action:    msg.Action,
		Code:      msg.Code,
		SessionID: sessionID,
	})
}

func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
		slog.Error("render error alert", "error", err)
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
