// Package sqlite stores leads, campaigns, import audit entries and mapping
// templates in a SQLite file using the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC text so they sort correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const contextCheckInterval = 100

const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
  id         TEXT PRIMARY KEY,
  tenant_id  TEXT NOT NULL,
  name       TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_campaigns_tenant ON campaigns(tenant_id);

CREATE TABLE IF NOT EXISTS leads (
  id           TEXT PRIMARY KEY,
  tenant_id    TEXT NOT NULL,
  phone_number TEXT NOT NULL CHECK (
    phone_number GLOB '+[1-9][0-9][0-9][0-9][0-9][0-9][0-9][0-9]*'
    AND substr(phone_number, 2) NOT GLOB '*[^0-9]*'
    AND length(phone_number) <= 16
  ),
  first_name   TEXT,
  last_name    TEXT,
  email        TEXT,
  company      TEXT,
  job_title    TEXT,
  status       TEXT NOT NULL,
  source       TEXT NOT NULL,
  campaign_id  TEXT REFERENCES campaigns(id),
  source_row   INTEGER NOT NULL,
  created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leads_tenant_phone ON leads(tenant_id, phone_number);

CREATE TABLE IF NOT EXISTS import_audit (
  id          TEXT PRIMARY KEY,
  action      TEXT NOT NULL,
  tenant_id   TEXT NOT NULL,
  session_id  TEXT NOT NULL,
  file_name   TEXT,
  campaign_id TEXT,
  submitted   INTEGER NOT NULL,
  succeeded   INTEGER NOT NULL,
  failed      INTEGER NOT NULL,
  ip_address  TEXT,
  user_agent  TEXT,
  reason      TEXT,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_import_audit_tenant_created ON import_audit(tenant_id, created_at);

CREATE TABLE IF NOT EXISTS mapping_templates (
  id         TEXT PRIMARY KEY,
  tenant_id  TEXT NOT NULL,
  name       TEXT NOT NULL,
  mapping    TEXT NOT NULL,
  headers    TEXT NOT NULL,
  created_at TEXT NOT NULL,
  UNIQUE (tenant_id, name)
);
`

// Store is a core.DetailedGateway backed by SQLite.
type Store struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens or creates the database at path and applies the schema.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}

	if memory {
		// Every connection would see its own empty database.
		conn.SetMaxOpenConns(1)
	} else if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s := &Store{conn: conn, now: time.Now}
	if err := s.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping checks the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *Store) init() error {
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}

// CreateMany inserts leads and returns the ones stored.
func (s *Store) CreateMany(ctx context.Context, leads []core.LeadInput) ([]core.Lead, error) {
	report, err := s.CreateManyDetailed(ctx, leads)
	if err != nil {
		return nil, err
	}
	return report.Accepted, nil
}

// CreateManyDetailed inserts leads in one transaction with a savepoint per
// row. Rows violating a constraint are rejected; the rest commit.
func (s *Store) CreateManyDetailed(ctx context.Context, leads []core.LeadInput) (core.CommitReport, error) {
	var report core.CommitReport
	if len(leads) == 0 {
		return report, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO leads (
  id, tenant_id, phone_number, first_name, last_name, email,
  company, job_title, status, source, campaign_id, source_row, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return report, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	createdAt := s.now().UTC()
	stamp := createdAt.Format(timeLayout)

	report.Accepted = make([]core.Lead, 0, len(leads))
	for i, in := range leads {
		if i%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return core.CommitReport{}, err
			}
		}

		savepointName := fmt.Sprintf("sp_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
			return core.CommitReport{}, fmt.Errorf("create savepoint: %w", err)
		}

		lead := core.Lead{
			ID:          uuid.New(),
			TenantID:    in.TenantID,
			PhoneNumber: in.PhoneNumber,
			FirstName:   in.FirstName,
			LastName:    in.LastName,
			Email:       in.Email,
			Company:     in.Company,
			JobTitle:    in.JobTitle,
			Status:      in.Status,
			Source:      in.Source,
			CampaignID:  in.CampaignID,
			SourceRow:   in.SourceRow,
			CreatedAt:   createdAt,
		}
		_, err := stmt.ExecContext(ctx,
			lead.ID, lead.TenantID, lead.PhoneNumber, lead.FirstName, lead.LastName, lead.Email,
			lead.Company, lead.JobTitle, lead.Status, lead.Source, lead.CampaignID, lead.SourceRow, stamp,
		)
		if err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
				return core.CommitReport{}, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			report.Rejected = append(report.Rejected, core.RowRejection{
				Row:    in.SourceRow,
				Reason: core.FormatUserError(err),
			})
			continue
		}

		if err := releaseSavepoint(ctx, tx, savepointName); err != nil {
			return core.CommitReport{}, err
		}
		report.Accepted = append(report.Accepted, lead)
	}

	if err := tx.Commit(); err != nil {
		return core.CommitReport{}, fmt.Errorf("commit: %w", err)
	}
	return report, nil
}

func releaseSavepoint(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// CountLeads returns how many leads a tenant has.
func (s *Store) CountLeads(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT count(*) FROM leads WHERE tenant_id = ?`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}

// CreateCampaign adds a campaign for a tenant.
func (s *Store) CreateCampaign(ctx context.Context, tenantID, name string) (core.Campaign, error) {
	c := core.Campaign{ID: uuid.New(), TenantID: tenantID, Name: name, CreatedAt: s.now().UTC()}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO campaigns (id, tenant_id, name, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.TenantID, c.Name, c.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return core.Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

// CampaignExists reports whether the campaign belongs to the tenant.
func (s *Store) CampaignExists(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	var one int
	err := s.conn.QueryRowContext(ctx,
		`SELECT 1 FROM campaigns WHERE id = ? AND tenant_id = ?`, id, tenantID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check campaign: %w", err)
	}
	return true, nil
}

// ListCampaigns returns a tenant's campaigns by name.
func (s *Store) ListCampaigns(ctx context.Context, tenantID string) ([]core.Campaign, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, tenant_id, name, created_at FROM campaigns WHERE tenant_id = ? ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []core.Campaign{}
	for rows.Next() {
		var (
			c       core.Campaign
			created string
		)
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &created); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		if c.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// RecordImport writes an import audit entry.
func (s *Store) RecordImport(ctx context.Context, e core.AuditEntry) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.conn.ExecContext(ctx, `
INSERT INTO import_audit (
  id, action, tenant_id, session_id, file_name, campaign_id,
  submitted, succeeded, failed, ip_address, user_agent, reason, duration_ms, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.TenantID, e.SessionID, nullText(e.FileName), e.CampaignID,
		e.Submitted, e.Succeeded, e.Failed, nullText(e.IPAddress), nullText(e.UserAgent), nullText(e.Reason),
		e.DurationMs, created.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListImports returns a tenant's most recent audit entries, newest first.
func (s *Store) ListImports(ctx context.Context, tenantID string, limit int) ([]core.AuditEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT id, action, tenant_id, session_id, coalesce(file_name, ''), campaign_id,
       submitted, succeeded, failed, coalesce(ip_address, ''), coalesce(user_agent, ''),
       coalesce(reason, ''), duration_ms, created_at
FROM import_audit
WHERE tenant_id = ?
ORDER BY created_at DESC
LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []core.AuditEntry{}
	for rows.Next() {
		var (
			e        core.AuditEntry
			action   string
			campaign sql.NullString
			created  string
		)
		if err := rows.Scan(&e.ID, &action, &e.TenantID, &e.SessionID, &e.FileName, &campaign,
			&e.Submitted, &e.Succeeded, &e.Failed, &e.IPAddress, &e.UserAgent,
			&e.Reason, &e.DurationMs, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = core.AuditAction(action)
		if campaign.Valid {
			id, err := uuid.Parse(campaign.String)
			if err != nil {
				return nil, fmt.Errorf("parse campaign id: %w", err)
			}
			e.CampaignID = &id
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
