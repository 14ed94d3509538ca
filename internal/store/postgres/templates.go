package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// CreateTemplate saves a mapping template.
func (s *Store) CreateTemplate(ctx context.Context, t core.MappingTemplate) (core.MappingTemplate, error) {
	mapping, err := json.Marshal(t.Mapping)
	if err != nil {
		return core.MappingTemplate{}, fmt.Errorf("marshal mapping: %w", err)
	}
	headers, err := json.Marshal(t.Headers)
	if err != nil {
		return core.MappingTemplate{}, fmt.Errorf("marshal headers: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO mapping_templates (id, tenant_id, name, mapping, headers)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		t.ID, t.TenantID, t.Name, mapping, headers,
	).Scan(&t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.MappingTemplate{}, fmt.Errorf("%w: %q", core.ErrTemplateExists, t.Name)
		}
		return core.MappingTemplate{}, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

// GetTemplate returns one of the tenant's templates.
func (s *Store) GetTemplate(ctx context.Context, tenantID string, id uuid.UUID) (core.MappingTemplate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, mapping, headers, created_at FROM mapping_templates WHERE id = $1 AND tenant_id = $2`,
		id, tenantID)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.MappingTemplate{}, core.ErrTemplateNotFound
	}
	return t, err
}

// ListTemplates returns the tenant's templates by name.
func (s *Store) ListTemplates(ctx context.Context, tenantID string) ([]core.MappingTemplate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, mapping, headers, created_at FROM mapping_templates WHERE tenant_id = $1 ORDER BY name`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := []core.MappingTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// DeleteTemplate removes one of the tenant's templates.
func (s *Store) DeleteTemplate(ctx context.Context, tenantID string, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mapping_templates WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrTemplateNotFound
	}
	return nil
}

func scanTemplate(row pgx.Row) (core.MappingTemplate, error) {
	var (
		t                core.MappingTemplate
		mapping, headers []byte
	)
	if err := row.Scan(&t.ID, &t.TenantID, &t.Name, &mapping, &headers, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("scan template: %w", err)
	}
	if err := json.Unmarshal(mapping, &t.Mapping); err != nil {
		return t, fmt.Errorf("unmarshal mapping: %w", err)
	}
	if err := json.Unmarshal(headers, &t.Headers); err != nil {
		return t, fmt.Errorf("unmarshal headers: %w", err)
	}
	return t, nil
}
