package core

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// DefaultPreviewRowLimit caps how many records a preview carries.
const DefaultPreviewRowLimit = 100

const maxDuplicateSamples = 10

// PreviewSummary contains the counts shown above the preview table.
type PreviewSummary struct {
	TotalRows    int `json:"totalRows"`
	ValidCount   int `json:"validCount"`
	InvalidCount int `json:"invalidCount"`
	// DuplicatePhones counts extra occurrences of a phone number among
	// valid rows. Duplicates are still submitted.
	DuplicatePhones int `json:"duplicatePhones"`
}

// DuplicatePreview lists the rows sharing one normalized phone number.
type DuplicatePreview struct {
	PhoneNumber string `json:"phoneNumber"`
	Rows        []int  `json:"rows"`
}

// PreviewResponse is the preview stage read model.
type PreviewResponse struct {
	SessionID        string             `json:"sessionId"`
	Summary          PreviewSummary     `json:"summary"`
	Rows             []CandidateRecord  `json:"rows"`
	Truncated        bool               `json:"truncated"`
	DuplicateSamples []DuplicatePreview `json:"duplicateSamples"`
}

// BuildPreview summarizes records and keeps the first limit of them. The cap
// applies to the response only; counts always cover every record.
func BuildPreview(sessionID string, records []CandidateRecord, limit int) PreviewResponse {
	if limit <= 0 {
		limit = DefaultPreviewRowLimit
	}

	valid, invalid := Counts(records)
	resp := PreviewResponse{
		SessionID: sessionID,
		Summary: PreviewSummary{
			TotalRows:    len(records),
			ValidCount:   valid,
			InvalidCount: invalid,
		},
		Rows:             records[:min(limit, len(records))],
		Truncated:        len(records) > limit,
		DuplicateSamples: []DuplicatePreview{},
	}
	if resp.Rows == nil {
		resp.Rows = []CandidateRecord{}
	}

	seen := make(map[string][]int)
	for _, r := range records {
		if r.IsValid {
			seen[r.PhoneNumber] = append(seen[r.PhoneNumber], r.SourceRowNumber)
		}
	}

	var dups []DuplicatePreview
	for phone, rows := range seen {
		if len(rows) > 1 {
			resp.Summary.DuplicatePhones += len(rows) - 1
			dups = append(dups, DuplicatePreview{PhoneNumber: phone, Rows: rows})
		}
	}
	slices.SortFunc(dups, func(a, b DuplicatePreview) int {
		return cmp.Compare(a.Rows[0], b.Rows[0])
	})
	if len(dups) > maxDuplicateSamples {
		dups = dups[:maxDuplicateSamples]
	}
	if dups != nil {
		resp.DuplicateSamples = dups
	}

	return resp
}

// WriteInvalidRowsCSV writes every invalid record as a CSV row: the source
// row number, the joined errors, then the original cell values in header
// order.
func WriteInvalidRowsCSV(w io.Writer, headers []string, rows []RawRow, records []CandidateRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(append([]string{"_row", "_error"}, headers...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	line := make([]string, 0, len(headers)+2)
	for _, r := range records {
		if r.IsValid {
			continue
		}
		idx := r.SourceRowNumber - FirstDataRow
		if idx < 0 || idx >= len(rows) {
			return fmt.Errorf("record row %d has no source row", r.SourceRowNumber)
		}

		line = line[:0]
		line = append(line, strconv.Itoa(r.SourceRowNumber), strings.Join(r.Errors, "; "))
		for _, h := range headers {
			line = append(line, rows[idx][h])
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write row %d: %w", r.SourceRowNumber, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
