package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrCampaignNotFound is returned when a commit names a campaign the tenant
// does not own.
var ErrCampaignNotFound = errors.New("campaign not found")

// Gateway persists leads in bulk. It returns the leads that were stored;
// anything missing from the result counts as failed.
type Gateway interface {
	CreateMany(ctx context.Context, leads []LeadInput) ([]Lead, error)
}

// DetailedGateway is a Gateway that can also say which rows it rejected
// and why. The service prefers it when the store implements it.
type DetailedGateway interface {
	Gateway
	CreateManyDetailed(ctx context.Context, leads []LeadInput) (CommitReport, error)
}

// CampaignChecker verifies a campaign belongs to a tenant.
type CampaignChecker interface {
	CampaignExists(ctx context.Context, tenantID string, id uuid.UUID) (bool, error)
}

// Campaign is a named group leads can be imported into.
type Campaign struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CampaignLister lists the campaigns a tenant can import into.
type CampaignLister interface {
	ListCampaigns(ctx context.Context, tenantID string) ([]Campaign, error)
}

// CommitDefaults are stamped on every submitted lead.
type CommitDefaults struct {
	Status string
	Source string
}

// Default commit values.
const (
	DefaultLeadStatus = "new"
	DefaultSourceTag  = "csv_import"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BuildLeadInputs converts valid candidate records into gateway inputs.
// Invalid records are skipped. A valid record the lead contract still
// refuses is left out of the inputs and returned as a rejection, so one bad
// row never blocks the rest of the batch.
func BuildLeadInputs(records []CandidateRecord, tenantID string, defaults CommitDefaults, campaignID *uuid.UUID) ([]LeadInput, []RowRejection) {
	if defaults.Status == "" {
		defaults.Status = DefaultLeadStatus
	}
	if defaults.Source == "" {
		defaults.Source = DefaultSourceTag
	}

	inputs := make([]LeadInput, 0, len(records))
	var rejected []RowRejection
	for _, r := range records {
		if !r.IsValid {
			continue
		}
		in := LeadInput{
			TenantID:    tenantID,
			PhoneNumber: r.PhoneNumber,
			FirstName:   r.FirstName,
			LastName:    r.LastName,
			Email:       r.Email,
			Company:     r.Company,
			JobTitle:    r.JobTitle,
			Status:      defaults.Status,
			Source:      defaults.Source,
			CampaignID:  campaignID,
			SourceRow:   r.SourceRowNumber,
		}
		if err := validate.Struct(in); err != nil {
			rejected = append(rejected, RowRejection{Row: r.SourceRowNumber, Reason: leadRejectReason(err)})
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs, rejected
}

func leadRejectReason(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("invalid lead: %s failed %s", fe.Field(), fe.Tag())
	}
	return "invalid lead: " + err.Error()
}

// commitLeads submits inputs and folds the outcome into an ImportResult.
// A gateway error means nothing is assumed stored.
func commitLeads(ctx context.Context, gw Gateway, inputs []LeadInput) (ImportResult, error) {
	submitted := len(inputs)

	if dg, ok := gw.(DetailedGateway); ok {
		report, err := dg.CreateManyDetailed(ctx, inputs)
		if err != nil {
			return ImportResult{Failed: submitted}, err
		}
		succeeded := min(len(report.Accepted), submitted)
		return ImportResult{
			Succeeded: succeeded,
			Failed:    submitted - succeeded,
			Rejected:  report.Rejected,
		}, nil
	}

	leads, err := gw.CreateMany(ctx, inputs)
	if err != nil {
		return ImportResult{Failed: submitted}, err
	}
	succeeded := min(len(leads), submitted)
	return ImportResult{Succeeded: succeeded, Failed: submitted - succeeded}, nil
}
