package core

// templates.go lets a tenant save the column mapping of one file and reuse
// it for later files with the same layout.
//
// A template stores the mapping and the header row it was saved from.
// Matching compares header rows; applying a template only sets fields
// whose saved header exists in the new file, so detection still covers the
// rest.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JonMunkholm/leadflow/internal/logging"
	"github.com/google/uuid"
)

// Template errors.
var (
	ErrTemplateNotFound    = errors.New("mapping template not found")
	ErrTemplateExists      = errors.New("mapping template already exists")
	ErrTemplateName        = errors.New("template name is required")
	ErrTemplatesNotEnabled = errors.New("mapping templates are not supported by this store")
)

// TemplateMatchThreshold is the share of a template's headers that must be
// present in a file for the template to be suggested.
const TemplateMatchThreshold = 0.7

const maxTemplateName = 100

// MappingTemplate is a saved column mapping.
type MappingTemplate struct {
	ID        uuid.UUID     `json:"id"`
	TenantID  string        `json:"tenant_id"`
	Name      string        `json:"name"`
	Mapping   ColumnMapping `json:"mapping"`
	Headers   []string      `json:"headers"`
	CreatedAt time.Time     `json:"created_at"`
}

// TemplateMatch is a template suggested for a file with its header overlap.
type TemplateMatch struct {
	Template MappingTemplate `json:"template"`
	Score    float64         `json:"score"`
}

// TemplateStore persists mapping templates per tenant. Names are unique
// within a tenant; CreateTemplate returns ErrTemplateExists on a clash.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t MappingTemplate) (MappingTemplate, error)
	GetTemplate(ctx context.Context, tenantID string, id uuid.UUID) (MappingTemplate, error)
	ListTemplates(ctx context.Context, tenantID string) ([]MappingTemplate, error)
	DeleteTemplate(ctx context.Context, tenantID string, id uuid.UUID) error
}

// SaveTemplate stores the current mapping of a session under name.
func (s *Service) SaveTemplate(ctx context.Context, sessionID, tenantID, name string) (MappingTemplate, error) {
	if s.templates == nil {
		return MappingTemplate{}, ErrTemplatesNotEnabled
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxTemplateName {
		return MappingTemplate{}, ErrTemplateName
	}

	sess, err := s.Get(ctx, sessionID, tenantID)
	if err != nil {
		return MappingTemplate{}, err
	}
	if len(sess.Headers) == 0 {
		return MappingTemplate{}, fmt.Errorf("%w: no file in %s stage", ErrInvalidTransition, sess.Stage)
	}
	if !sess.Mapping.HasPhone() {
		return MappingTemplate{}, ErrPhoneUnmapped
	}

	t, err := s.templates.CreateTemplate(ctx, MappingTemplate{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		Mapping:   sess.Mapping.Clone(),
		Headers:   append([]string(nil), sess.Headers...),
		CreatedAt: s.opts.Now(),
	})
	if err != nil {
		return MappingTemplate{}, err
	}

	logging.WithFields(ctx, "template_id", t.ID, "tenant_id", tenantID).Info("mapping template saved", "name", name)
	return t, nil
}

// ListTemplates returns the tenant's templates by name.
func (s *Service) ListTemplates(ctx context.Context, tenantID string) ([]MappingTemplate, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if s.templates == nil {
		return []MappingTemplate{}, nil
	}
	return s.templates.ListTemplates(ctx, tenantID)
}

// DeleteTemplate removes a template.
func (s *Service) DeleteTemplate(ctx context.Context, tenantID string, id uuid.UUID) error {
	if s.templates == nil {
		return ErrTemplatesNotEnabled
	}
	return s.templates.DeleteTemplate(ctx, tenantID, id)
}

// MatchTemplates suggests templates for the file of a session, best match
// first.
func (s *Service) MatchTemplates(ctx context.Context, sessionID, tenantID string) ([]TemplateMatch, error) {
	sess, err := s.Get(ctx, sessionID, tenantID)
	if err != nil {
		return nil, err
	}
	templates, err := s.ListTemplates(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	matches := []TemplateMatch{}
	for _, t := range templates {
		score := matchTemplateHeaders(sess.Headers, t.Headers)
		if score >= TemplateMatchThreshold {
			matches = append(matches, TemplateMatch{Template: t, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches, nil
}

// ApplyTemplate sets the mapping of a session in the mapping stage from a
// template. Fields whose saved header is missing from the file keep their
// current mapping.
func (s *Service) ApplyTemplate(ctx context.Context, sessionID, tenantID string, templateID uuid.UUID) (ImportSession, error) {
	if s.templates == nil {
		return ImportSession{}, ErrTemplatesNotEnabled
	}
	t, err := s.templates.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		return ImportSession{}, err
	}

	return s.transition(sessionID, tenantID, func(cur ImportSession) (ImportSession, error) {
		return cur.WithMapping(templateOverrides(t, cur.Headers), s.opts.Now())
	})
}

// templateOverrides keeps the template entries whose header is present,
// matched case-insensitively, rewritten to the file's spelling.
func templateOverrides(t MappingTemplate, headers []string) map[Field]string {
	byKey := make(map[string]string, len(headers))
	for _, h := range headers {
		byKey[headerKey(h)] = h
	}

	overrides := make(map[Field]string, len(t.Mapping))
	for f, h := range t.Mapping {
		if actual, ok := byKey[headerKey(h)]; ok {
			overrides[f] = actual
		}
	}
	return overrides
}

// matchTemplateHeaders returns the share of template headers found in the
// file's headers.
func matchTemplateHeaders(fileHeaders, templateHeaders []string) float64 {
	if len(templateHeaders) == 0 {
		return 0
	}

	present := make(map[string]bool, len(fileHeaders))
	for _, h := range fileHeaders {
		present[headerKey(h)] = true
	}

	matched := 0
	for _, h := range templateHeaders {
		if present[headerKey(h)] {
			matched++
		}
	}
	return float64(matched) / float64(len(templateHeaders))
}

func headerKey(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
