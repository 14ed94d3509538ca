// Package views renders the HTML fragments swapped in by HTMX.
package views

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/a-h/templ"
)

// ErrorAlert renders a dismissable error banner with the support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="alert alert-error" role="alert">`)
		b.WriteString(`<p class="alert-message">` + templ.EscapeString(message) + `</p>`)
		if action != "" {
			b.WriteString(`<p class="alert-action">` + templ.EscapeString(action) + `</p>`)
		}
		if code != "" {
			b.WriteString(`<p class="alert-code">Code: ` + templ.EscapeString(code) + `</p>`)
		}
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// previewColumns are the record fields shown in the preview table.
var previewColumns = []struct {
	label string
	value func(core.CandidateRecord) string
}{
	{"Row", func(r core.CandidateRecord) string { return strconv.Itoa(r.SourceRowNumber) }},
	{"Phone Number", func(r core.CandidateRecord) string { return r.PhoneNumber }},
	{"First Name", func(r core.CandidateRecord) string { return deref(r.FirstName) }},
	{"Last Name", func(r core.CandidateRecord) string { return deref(r.LastName) }},
	{"Email", func(r core.CandidateRecord) string { return deref(r.Email) }},
	{"Company", func(r core.CandidateRecord) string { return deref(r.Company) }},
	{"Job Title", func(r core.CandidateRecord) string { return deref(r.JobTitle) }},
}

// Preview renders the preview summary and the first rows of the session.
// Invalid rows are marked and list their errors.
func Preview(p core.PreviewResponse) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		b.WriteString(`<div id="preview" data-session="` + templ.EscapeString(p.SessionID) + `">`)
		b.WriteString(`<ul class="preview-summary">`)
		writeStat(&b, "Total rows", p.Summary.TotalRows)
		writeStat(&b, "Valid", p.Summary.ValidCount)
		writeStat(&b, "Invalid", p.Summary.InvalidCount)
		if p.Summary.DuplicatePhones > 0 {
			writeStat(&b, "Duplicate phones", p.Summary.DuplicatePhones)
		}
		b.WriteString(`</ul>`)

		b.WriteString(`<table class="preview-table"><thead><tr>`)
		for _, col := range previewColumns {
			b.WriteString(`<th>` + templ.EscapeString(col.label) + `</th>`)
		}
		b.WriteString(`<th>Errors</th></tr></thead><tbody>`)
		for _, rec := range p.Rows {
			class := "row-valid"
			if !rec.IsValid {
				class = "row-invalid"
			}
			b.WriteString(`<tr class="` + class + `">`)
			for _, col := range previewColumns {
				b.WriteString(`<td>` + templ.EscapeString(col.value(rec)) + `</td>`)
			}
			b.WriteString(`<td>` + templ.EscapeString(strings.Join(rec.Errors, "; ")) + `</td></tr>`)
		}
		b.WriteString(`</tbody></table>`)

		if p.Truncated {
			b.WriteString(`<p class="preview-truncated">Showing the first ` + strconv.Itoa(len(p.Rows)) +
				` of ` + strconv.Itoa(p.Summary.TotalRows) + ` rows.</p>`)
		}
		b.WriteString(`</div>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeStat(b *strings.Builder, label string, n int) {
	b.WriteString(`<li><span class="stat-label">` + templ.EscapeString(label) + `</span> <span class="stat-value">` + strconv.Itoa(n) + `</span></li>`)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
