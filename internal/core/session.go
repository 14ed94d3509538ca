package core

// session.go defines the import session aggregate and its stage transitions.
//
// An ImportSession is a value. Every transition returns a new session and
// leaves the receiver untouched, so a caller holding an older snapshot never
// sees a half-applied change. Slices and maps shared between snapshots are
// never written after they are built.
//
// Stages advance upload → mapping → preview → importing → complete. The only
// backward moves are preview → mapping and mapping → upload; a completed
// session can be reset to upload.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transition errors. Callers match them with errors.Is.
var (
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrPhoneUnmapped     = errors.New("phone number column is not mapped")
	ErrNoValidRecords    = errors.New("no valid records to import")
	ErrSessionNotFound   = errors.New("import session not found")
	ErrCommitInProgress  = errors.New("commit already in progress")
	ErrUnknownHeader     = errors.New("header not found in file")
)

// ImportSession is the working state of one import wizard.
type ImportSession struct {
	ID       string
	TenantID string
	Stage    Stage

	FileName        string
	Headers         []string
	Rows            []RawRow
	Mapping         ColumnMapping
	PhoneCandidates []PhoneCandidate
	Records         []CandidateRecord

	CampaignID *uuid.UUID
	Result     *ImportResult

	// LastError is the user-facing diagnostic of the last failed upload.
	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession returns an empty session in the upload stage.
func NewSession(id, tenantID string, now time.Time) ImportSession {
	return ImportSession{
		ID:        id,
		TenantID:  tenantID,
		Stage:     StageUpload,
		Mapping:   ColumnMapping{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s ImportSession) requireStage(want Stage) error {
	if s.Stage == StageImporting && want != StageImporting {
		return ErrCommitInProgress
	}
	if s.Stage != want {
		return fmt.Errorf("%w: session is in %s, expected %s", ErrInvalidTransition, s.Stage, want)
	}
	return nil
}

// WithFile moves upload → mapping with a parsed file and its analysis.
func (s ImportSession) WithFile(name string, pf ParsedFile, a Analysis, now time.Time) (ImportSession, error) {
	if err := s.requireStage(StageUpload); err != nil {
		return s, err
	}

	next := s
	next.Stage = StageMapping
	next.FileName = name
	next.Headers = pf.Headers
	next.Rows = pf.Rows
	next.Mapping = a.Mapping.Clone()
	next.PhoneCandidates = a.PhoneCandidates
	next.Records = nil
	next.Result = nil
	next.LastError = ""
	next.UpdatedAt = now
	return next, nil
}

// WithUploadError records a failed upload. The session stays in upload with
// no file data.
func (s ImportSession) WithUploadError(name, diagnostic string, now time.Time) (ImportSession, error) {
	if err := s.requireStage(StageUpload); err != nil {
		return s, err
	}

	next := NewSession(s.ID, s.TenantID, s.CreatedAt)
	next.CampaignID = s.CampaignID
	next.FileName = name
	next.LastError = diagnostic
	next.UpdatedAt = now
	return next, nil
}

// WithMapping applies manual overrides in the mapping stage. An empty header
// unmaps the field; any other header must exist in the file.
func (s ImportSession) WithMapping(overrides map[Field]string, now time.Time) (ImportSession, error) {
	if err := s.requireStage(StageMapping); err != nil {
		return s, err
	}

	known := make(map[string]bool, len(s.Headers))
	for _, h := range s.Headers {
		known[h] = true
	}

	m := s.Mapping.Clone()
	for f, h := range overrides {
		if _, err := ParseField(string(f)); err != nil {
			return s, err
		}
		if h == "" {
			m.Unset(f)
			continue
		}
		if !known[h] {
			return s, fmt.Errorf("%w: %q", ErrUnknownHeader, h)
		}
		m.Set(f, h)
	}

	next := s
	next.Mapping = m
	next.UpdatedAt = now
	return next, nil
}

// ConfirmMapping moves mapping → preview, normalizing every row once.
func (s ImportSession) ConfirmMapping(ctx context.Context, now time.Time) (ImportSession, error) {
	if err := s.requireStage(StageMapping); err != nil {
		return s, err
	}
	if !s.Mapping.HasPhone() {
		return s, ErrPhoneUnmapped
	}

	records, err := NormalizeRows(ctx, s.Rows, s.Mapping)
	if err != nil {
		return s, fmt.Errorf("normalize rows: %w", err)
	}

	next := s
	next.Stage = StagePreview
	next.Records = records
	next.UpdatedAt = now
	return next, nil
}

// Back moves preview → mapping, discarding records, or mapping → upload,
// discarding the file.
func (s ImportSession) Back(now time.Time) (ImportSession, error) {
	switch s.Stage {
	case StagePreview:
		next := s
		next.Stage = StageMapping
		next.Records = nil
		next.UpdatedAt = now
		return next, nil
	case StageMapping:
		next := NewSession(s.ID, s.TenantID, s.CreatedAt)
		next.CampaignID = s.CampaignID
		next.UpdatedAt = now
		return next, nil
	case StageImporting:
		return s, ErrCommitInProgress
	default:
		return s, fmt.Errorf("%w: cannot go back from %s", ErrInvalidTransition, s.Stage)
	}
}

// ValidRecords returns the records eligible for commit, in file order.
func (s ImportSession) ValidRecords() []CandidateRecord {
	var out []CandidateRecord
	for _, r := range s.Records {
		if r.IsValid {
			out = append(out, r)
		}
	}
	return out
}

// BeginCommit moves preview → importing. campaignID, when non-nil,
// replaces the campaign chosen at upload.
func (s ImportSession) BeginCommit(campaignID *uuid.UUID, now time.Time) (ImportSession, error) {
	if err := s.requireStage(StagePreview); err != nil {
		return s, err
	}
	valid, _ := Counts(s.Records)
	if valid == 0 {
		return s, ErrNoValidRecords
	}

	next := s
	next.Stage = StageImporting
	if campaignID != nil {
		id := *campaignID
		next.CampaignID = &id
	}
	next.UpdatedAt = now
	return next, nil
}

// Complete moves importing → complete with the commit outcome.
func (s ImportSession) Complete(result ImportResult, now time.Time) (ImportSession, error) {
	if s.Stage != StageImporting {
		return s, fmt.Errorf("%w: session is in %s, expected %s", ErrInvalidTransition, s.Stage, StageImporting)
	}

	next := s
	next.Stage = StageComplete
	next.Result = &result
	next.UpdatedAt = now
	return next, nil
}

// Reset returns a completed session to a fresh upload stage with the same
// id and tenant.
func (s ImportSession) Reset(now time.Time) (ImportSession, error) {
	if err := s.requireStage(StageComplete); err != nil {
		return s, err
	}
	next := NewSession(s.ID, s.TenantID, now)
	return next, nil
}

// Summary is the read model of a session used by API responses.
type Summary struct {
	ID              string           `json:"id"`
	Stage           Stage            `json:"stage"`
	FileName        string           `json:"file_name,omitempty"`
	Headers         []string         `json:"headers"`
	Mapping         ColumnMapping    `json:"mapping"`
	PhoneCandidates []PhoneCandidate `json:"phone_candidates,omitempty"`
	TotalRows       int              `json:"total_rows"`
	ValidCount      int              `json:"valid_count"`
	InvalidCount    int              `json:"invalid_count"`
	CampaignID      *uuid.UUID       `json:"campaign_id,omitempty"`
	Result          *ImportResult    `json:"result,omitempty"`
	LastError       string           `json:"last_error,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Summary reports the session without its row data.
func (s ImportSession) Summary() Summary {
	valid, invalid := Counts(s.Records)
	headers := s.Headers
	if headers == nil {
		headers = []string{}
	}
	return Summary{
		ID:              s.ID,
		Stage:           s.Stage,
		FileName:        s.FileName,
		Headers:         headers,
		Mapping:         s.Mapping,
		PhoneCandidates: s.PhoneCandidates,
		TotalRows:       len(s.Rows),
		ValidCount:      valid,
		InvalidCount:    invalid,
		CampaignID:      s.CampaignID,
		Result:          s.Result,
		LastError:       s.LastError,
		UpdatedAt:       s.UpdatedAt,
	}
}
