package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/google/uuid"
)

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
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.CreatedAt = t.CreatedAt.UTC()

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO mapping_templates (id, tenant_id, name, mapping, headers, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.TenantID, t.Name, string(mapping), string(headers), t.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return core.MappingTemplate{}, fmt.Errorf("%w: %q", core.ErrTemplateExists, t.Name)
		}
		return core.MappingTemplate{}, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

// GetTemplate returns one of the tenant's templates.
func (s *Store) GetTemplate(ctx context.Context, tenantID string, id uuid.UUID) (core.MappingTemplate, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, mapping, headers, created_at FROM mapping_templates WHERE id = ? AND tenant_id = ?`,
		id, tenantID)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MappingTemplate{}, core.ErrTemplateNotFound
	}
	return t, err
}

// ListTemplates returns the tenant's templates by name.
func (s *Store) ListTemplates(ctx context.Context, tenantID string) ([]core.MappingTemplate, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, tenant_id, name, mapping, headers, created_at FROM mapping_templates WHERE tenant_id = ? ORDER BY name`,
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
	res, err := s.conn.ExecContext(ctx, `DELETE FROM mapping_templates WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n == 0 {
		return core.ErrTemplateNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (core.MappingTemplate, error) {
	var (
		t                         core.MappingTemplate
		mapping, headers, created string
	)
	if err := row.Scan(&t.ID, &t.TenantID, &t.Name, &mapping, &headers, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("scan template: %w", err)
	}
	if err := json.Unmarshal([]byte(mapping), &t.Mapping); err != nil {
		return t, fmt.Errorf("unmarshal mapping: %w", err)
	}
	if err := json.Unmarshal([]byte(headers), &t.Headers); err != nil {
		return t, fmt.Errorf("unmarshal headers: %w", err)
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return t, err
	}
	return t, nil
}
