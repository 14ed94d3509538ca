package core

import (
	"fmt"
	"strings"
)

// FieldSpec describes a canonical field for mapping screens and the CLI.
type FieldSpec struct {
	Field    Field  `json:"field"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// fieldSpecs lists canonical fields in display order.
var fieldSpecs = []FieldSpec{
	{Field: FieldPhoneNumber, Label: "Phone Number", Required: true},
	{Field: FieldFirstName, Label: "First Name"},
	{Field: FieldLastName, Label: "Last Name"},
	{Field: FieldEmail, Label: "Email"},
	{Field: FieldCompany, Label: "Company"},
	{Field: FieldJobTitle, Label: "Job Title"},
}

// Fields returns the canonical field specs in display order.
func Fields() []FieldSpec {
	out := make([]FieldSpec, len(fieldSpecs))
	copy(out, fieldSpecs)
	return out
}

// ParseField resolves a field name, accepting the canonical form in any case.
func ParseField(name string) (Field, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, spec := range fieldSpecs {
		if string(spec.Field) == name {
			return spec.Field, nil
		}
	}
	return "", fmt.Errorf("unknown field: %q", name)
}

// ColumnMapping maps canonical fields to file headers. Absent keys are
// unmapped fields.
type ColumnMapping map[Field]string

// Header returns the header mapped to f.
func (m ColumnMapping) Header(f Field) (string, bool) {
	h, ok := m[f]
	return h, ok && h != ""
}

// Set maps f to header.
func (m ColumnMapping) Set(f Field, header string) {
	m[f] = header
}

// Unset removes any mapping for f.
func (m ColumnMapping) Unset(f Field) {
	delete(m, f)
}

// Clone returns an independent copy.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// HasPhone reports whether the mandatory phone field is mapped.
func (m ColumnMapping) HasPhone() bool {
	_, ok := m.Header(FieldPhoneNumber)
	return ok
}
