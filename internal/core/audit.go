package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/leadflow/internal/logging"
	"github.com/google/uuid"
)

// AuditAction is the kind of import event recorded in the audit log.
type AuditAction string

const (
	ActionImportCommit AuditAction = "import_commit"
	ActionImportFailed AuditAction = "import_failed"
)

// DefaultHistoryLimit is how many audit entries History returns when no
// limit is given.
const DefaultHistoryLimit = 50

// AuditEntry records one finished commit.
type AuditEntry struct {
	ID         uuid.UUID   `json:"id"`
	Action     AuditAction `json:"action"`
	TenantID   string      `json:"tenantId"`
	SessionID  string      `json:"sessionId"`
	FileName   string      `json:"fileName,omitempty"`
	CampaignID *uuid.UUID  `json:"campaignId,omitempty"`
	Submitted  int         `json:"submitted"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	IPAddress  string      `json:"ipAddress,omitempty"`
	UserAgent  string      `json:"userAgent,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	DurationMs int64       `json:"durationMs"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// AuditLog persists and lists import audit entries.
type AuditLog interface {
	RecordImport(ctx context.Context, entry AuditEntry) error
	ListImports(ctx context.Context, tenantID string, limit int) ([]AuditEntry, error)
}

func newAuditEntry(ctx context.Context, sess ImportSession, submitted int, result ImportResult, now time.Time) AuditEntry {
	action := ActionImportCommit
	if result.Error != "" {
		action = ActionImportFailed
	}
	return AuditEntry{
		ID:         uuid.New(),
		Action:     action,
		TenantID:   sess.TenantID,
		SessionID:  sess.ID,
		FileName:   sess.FileName,
		CampaignID: sess.CampaignID,
		Submitted:  submitted,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		IPAddress:  GetIPAddressFromContext(ctx),
		UserAgent:  GetUserAgentFromContext(ctx),
		Reason:     result.Error,
		DurationMs: result.Duration.Milliseconds(),
		CreatedAt:  now,
	}
}

// recordAudit writes an audit entry. Failures are logged and never change
// the commit outcome.
func (s *Service) recordAudit(ctx context.Context, entry AuditEntry) {
	if s.audit == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.audit.RecordImport(actx, entry); err != nil {
		logging.WithFields(ctx, "session_id", entry.SessionID, "tenant_id", entry.TenantID).
			Error("failed to record import audit entry", "error", err)
	}
}

// History returns the most recent audit entries of a tenant, newest first.
func (s *Service) History(ctx context.Context, tenantID string, limit int) ([]AuditEntry, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if s.audit == nil {
		return []AuditEntry{}, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.audit.ListImports(ctx, tenantID, limit)
}
