package core

import (
	"time"

	"github.com/google/uuid"
)

// Field is a canonical lead field that file columns are mapped onto.
type Field string

const (
	FieldPhoneNumber Field = "phone_number"
	FieldFirstName   Field = "first_name"
	FieldLastName    Field = "last_name"
	FieldEmail       Field = "email"
	FieldCompany     Field = "company"
	FieldJobTitle    Field = "job_title"
)

// Stage is the position of an import session in the upload wizard.
type Stage string

const (
	StageUpload    Stage = "upload"
	StageMapping   Stage = "mapping"
	StagePreview   Stage = "preview"
	StageImporting Stage = "importing"
	StageComplete  Stage = "complete"
)

// RawRow maps a file header to the cell found under it. Rows are never
// modified after parsing.
type RawRow map[string]string

// ParsedFile is the header row and data rows read from an uploaded file.
type ParsedFile struct {
	Headers []string
	Rows    []RawRow
}

// CandidateRecord is one normalized row. Optional fields are nil when the
// column is unmapped or the cell is blank, and encode as JSON null.
type CandidateRecord struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Email       *string `json:"email"`
	PhoneNumber string  `json:"phone_number"` // E.164 when valid, raw input otherwise
	Company     *string `json:"company"`
	JobTitle    *string `json:"job_title"`

	IsValid         bool     `json:"is_valid"`
	Errors          []string `json:"errors"`
	SourceRowNumber int      `json:"source_row_number"`
}

// LeadInput is a record submitted to the commit gateway.
type LeadInput struct {
	TenantID    string     `json:"tenant_id" validate:"required,max=128"`
	PhoneNumber string     `json:"phone_number" validate:"required,e164"`
	FirstName   *string    `json:"first_name,omitempty" validate:"omitempty,max=255"`
	LastName    *string    `json:"last_name,omitempty" validate:"omitempty,max=255"`
	Email       *string    `json:"email,omitempty" validate:"omitempty,max=320"`
	Company     *string    `json:"company,omitempty" validate:"omitempty,max=255"`
	JobTitle    *string    `json:"job_title,omitempty" validate:"omitempty,max=255"`
	Status      string     `json:"status" validate:"required,max=32"`
	Source      string     `json:"source" validate:"required,max=64"`
	CampaignID  *uuid.UUID `json:"campaign_id,omitempty"`
	SourceRow   int        `json:"source_row" validate:"gte=2"`
}

// Lead is a persisted lead as returned by the gateway.
type Lead struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    string     `json:"tenant_id"`
	PhoneNumber string     `json:"phone_number"`
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	Email       *string    `json:"email"`
	Company     *string    `json:"company"`
	JobTitle    *string    `json:"job_title"`
	Status      string     `json:"status"`
	Source      string     `json:"source"`
	CampaignID  *uuid.UUID `json:"campaign_id"`
	SourceRow   int        `json:"source_row"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RowRejection is a record the store refused, keyed by its source row.
type RowRejection struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// CommitReport is the per-record outcome returned by a DetailedGateway.
type CommitReport struct {
	Accepted []Lead
	Rejected []RowRejection
}

// ImportResult is the outcome of a commit. Failed is always the number of
// submitted records minus Succeeded.
type ImportResult struct {
	Succeeded int            `json:"success"`
	Failed    int            `json:"failed"`
	Rejected  []RowRejection `json:"rejected,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
}
