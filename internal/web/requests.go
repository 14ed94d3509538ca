package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// multipartOverhead is allowed on top of the file size limit for form
// boundaries and fields.
const multipartOverhead = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type mappingRequest struct {
	Mapping map[string]string `json:"mapping" validate:"required,max=6,dive,max=512"`
}

type commitRequest struct {
	CampaignID string `json:"campaign_id" validate:"omitempty,max=64"`
}

type saveTemplateRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type applyTemplateRequest struct {
	TemplateID string `json:"template_id" validate:"required,uuid"`
}

// decodeJSON reads a JSON body into v and validates it. An empty body is
// accepted when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// overrides converts a mapping request into field overrides.
func (m mappingRequest) overrides() (map[core.Field]string, error) {
	out := make(map[core.Field]string, len(m.Mapping))
	for name, header := range m.Mapping {
		f, err := core.ParseField(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		out[f] = header
	}
	return out, nil
}

// parseCampaignID parses an optional campaign id. Empty means none.
func parseCampaignID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errInvalidCampaignID, s)
	}
	return &id, nil
}

// formFile reads the "file" part of a multipart upload bounded by maxSize.
// The caller closes the returned file.
func formFile(w http.ResponseWriter, r *http.Request, maxSize int64) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, nil, fmt.Errorf("%w: request exceeds %d bytes", errFileTooLarge, mbe.Limit)
		}
		return nil, nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errNoFile
	}
	return file, header, nil
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func tenantID(r *http.Request) string {
	return core.TenantFromContext(r.Context())
}

// parseIntParam parses a positive integer query parameter.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
