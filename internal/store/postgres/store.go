// Package postgres stores leads, campaigns, import audit entries and
// mapping templates in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// contextCheckInterval is how many rows are inserted between cancellation
// checks.
const contextCheckInterval = 100

const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
  id         UUID PRIMARY KEY,
  tenant_id  TEXT NOT NULL,
  name       TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_campaigns_tenant ON campaigns(tenant_id);

CREATE TABLE IF NOT EXISTS leads (
  id           UUID PRIMARY KEY,
  tenant_id    TEXT NOT NULL,
  phone_number TEXT NOT NULL CHECK (phone_number ~ '^\+[1-9][0-9]{7,14}$'),
  first_name   TEXT,
  last_name    TEXT,
  email        TEXT,
  company      TEXT,
  job_title    TEXT,
  status       TEXT NOT NULL,
  source       TEXT NOT NULL,
  campaign_id  UUID REFERENCES campaigns(id),
  source_row   INTEGER NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_leads_tenant_phone ON leads(tenant_id, phone_number);

CREATE TABLE IF NOT EXISTS import_audit (
  id          UUID PRIMARY KEY,
  action      TEXT NOT NULL,
  tenant_id   TEXT NOT NULL,
  session_id  TEXT NOT NULL,
  file_name   TEXT,
  campaign_id UUID,
  submitted   INTEGER NOT NULL,
  succeeded   INTEGER NOT NULL,
  failed      INTEGER NOT NULL,
  ip_address  TEXT,
  user_agent  TEXT,
  reason      TEXT,
  duration_ms BIGINT NOT NULL DEFAULT 0,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_import_audit_tenant_created ON import_audit(tenant_id, created_at DESC);

CREATE TABLE IF NOT EXISTS mapping_templates (
  id         UUID PRIMARY KEY,
  tenant_id  TEXT NOT NULL,
  name       TEXT NOT NULL,
  mapping    JSONB NOT NULL,
  headers    JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT mapping_templates_tenant_name_unique UNIQUE (tenant_id, name)
);
`

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store is a core.DetailedGateway backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to url, verifies the connection and creates the schema.
func Open(ctx context.Context, url string, cfg PoolConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the pool. It never fails; the error matches the SQLite
// store's Close.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// CreateMany inserts leads and returns the ones stored.
func (s *Store) CreateMany(ctx context.Context, leads []core.LeadInput) ([]core.Lead, error) {
	report, err := s.CreateManyDetailed(ctx, leads)
	if err != nil {
		return nil, err
	}
	return report.Accepted, nil
}

// CreateManyDetailed inserts leads in one transaction. Each insert runs
// under its own savepoint, so a row the database refuses is reported as
// rejected while the rest commit.
func (s *Store) CreateManyDetailed(ctx context.Context, leads []core.LeadInput) (core.CommitReport, error) {
	var report core.CommitReport
	if len(leads) == 0 {
		return report, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return report, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	report.Accepted = make([]core.Lead, 0, len(leads))
	for i, in := range leads {
		if i%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return core.CommitReport{}, err
			}
		}

		savepointName := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
			return core.CommitReport{}, fmt.Errorf("create savepoint: %w", err)
		}

		lead, err := insertLead(ctx, tx, in)
		if err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
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

	if err := tx.Commit(ctx); err != nil {
		return core.CommitReport{}, fmt.Errorf("commit: %w", err)
	}
	return report, nil
}

func releaseSavepoint(ctx context.Context, tx pgx.Tx, name string) error {
	if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func insertLead(ctx context.Context, tx pgx.Tx, in core.LeadInput) (core.Lead, error) {
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
	}

	err := tx.QueryRow(ctx, `
INSERT INTO leads (
  id, tenant_id, phone_number, first_name, last_name, email,
  company, job_title, status, source, campaign_id, source_row
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING created_at`,
		lead.ID, lead.TenantID, lead.PhoneNumber, lead.FirstName, lead.LastName, lead.Email,
		lead.Company, lead.JobTitle, lead.Status, lead.Source, lead.CampaignID, lead.SourceRow,
	).Scan(&lead.CreatedAt)
	if err != nil {
		return core.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return lead, nil
}

// CountLeads returns how many leads a tenant has.
func (s *Store) CountLeads(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM leads WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}

// CreateCampaign adds a campaign for a tenant.
func (s *Store) CreateCampaign(ctx context.Context, tenantID, name string) (core.Campaign, error) {
	c := core.Campaign{ID: uuid.New(), TenantID: tenantID, Name: name}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO campaigns (id, tenant_id, name) VALUES ($1, $2, $3) RETURNING created_at`,
		c.ID, c.TenantID, c.Name,
	).Scan(&c.CreatedAt)
	if err != nil {
		return core.Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

// CampaignExists reports whether the campaign belongs to the tenant.
func (s *Store) CampaignExists(ctx context.Context, tenantID string, id uuid.UUID) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM campaigns WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check campaign: %w", err)
	}
	return true, nil
}

// ListCampaigns returns a tenant's campaigns by name.
func (s *Store) ListCampaigns(ctx context.Context, tenantID string) ([]core.Campaign, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, created_at FROM campaigns WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []core.Campaign{}
	for rows.Next() {
		var c core.Campaign
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// RecordImport writes an import audit entry.
func (s *Store) RecordImport(ctx context.Context, e core.AuditEntry) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO import_audit (
  id, action, tenant_id, session_id, file_name, campaign_id,
  submitted, succeeded, failed, ip_address, user_agent, reason, duration_ms, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, string(e.Action), e.TenantID, e.SessionID, nullText(e.FileName), e.CampaignID,
		e.Submitted, e.Succeeded, e.Failed, nullText(e.IPAddress), nullText(e.UserAgent), nullText(e.Reason),
		e.DurationMs, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListImports returns a tenant's most recent audit entries, newest first.
func (s *Store) ListImports(ctx context.Context, tenantID string, limit int) ([]core.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, action, tenant_id, session_id, coalesce(file_name, ''), campaign_id,
       submitted, succeeded, failed, coalesce(ip_address, ''), coalesce(user_agent, ''),
       coalesce(reason, ''), duration_ms, created_at
FROM import_audit
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []core.AuditEntry{}
	for rows.Next() {
		var (
			e      core.AuditEntry
			action string
		)
		if err := rows.Scan(&e.ID, &action, &e.TenantID, &e.SessionID, &e.FileName, &e.CampaignID,
			&e.Submitted, &e.Succeeded, &e.Failed, &e.IPAddress, &e.UserAgent,
			&e.Reason, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = core.AuditAction(action)
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
