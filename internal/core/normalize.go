package core

// normalize.go turns raw rows into candidate records.
//
// NormalizeRow is pure: the same row, mapping and row number always give an
// identical record. NormalizeRows fans rows out over a bounded set of
// goroutines and writes results by index, so output order always matches
// file order.

import (
	"context"
	"runtime"
	"sort"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// FirstDataRow is the source row number of the first data row; the header
// occupies row 1.
const FirstDataRow = 2

// Length limits of the lead store columns.
const (
	maxTextLength  = 255
	maxEmailLength = 320
)

// normalizeChunk is the number of rows handled per goroutine.
const normalizeChunk = 500

// NormalizeRow builds the candidate record for one raw row.
func NormalizeRow(row RawRow, mapping ColumnMapping, rowNumber int) CandidateRecord {
	rec := CandidateRecord{
		SourceRowNumber: rowNumber,
		Errors:          []string{},
	}

	rawPhone := lookup(row, mapping, FieldPhoneNumber)
	phone := ValidatePhone(CleanCell(rawPhone))
	if phone.IsValid {
		rec.PhoneNumber = *phone.E164
	} else {
		rec.PhoneNumber = rawPhone
		rec.Errors = append(rec.Errors, *phone.Error)
	}

	email := ValidateEmail(CleanCell(lookup(row, mapping, FieldEmail)))
	if email.IsValid {
		rec.Email = email.Value
	} else {
		rec.Errors = append(rec.Errors, *email.Error)
	}

	if rec.Email != nil && utf8.RuneCountInString(*rec.Email) > maxEmailLength {
		rec.Errors = append(rec.Errors, "Email too long")
	}

	rec.FirstName = optionalText(lookup(row, mapping, FieldFirstName))
	rec.LastName = optionalText(lookup(row, mapping, FieldLastName))
	rec.Company = optionalText(lookup(row, mapping, FieldCompany))
	rec.JobTitle = optionalText(lookup(row, mapping, FieldJobTitle))

	for _, t := range []struct {
		value *string
		msg   string
	}{
		{rec.FirstName, "First name too long"},
		{rec.LastName, "Last name too long"},
		{rec.Company, "Company too long"},
		{rec.JobTitle, "Job title too long"},
	} {
		if t.value != nil && utf8.RuneCountInString(*t.value) > maxTextLength {
			rec.Errors = append(rec.Errors, t.msg)
		}
	}

	rec.IsValid = len(rec.Errors) == 0
	return rec
}

// lookup returns the cell under the header mapped to f, or "" when the
// field is unmapped or the header is missing from the row.
func lookup(row RawRow, mapping ColumnMapping, f Field) string {
	h, ok := mapping.Header(f)
	if !ok {
		return ""
	}
	return row[h]
}

// NormalizeRows normalizes every row, numbering them from FirstDataRow.
func NormalizeRows(ctx context.Context, rows []RawRow, mapping ColumnMapping) ([]CandidateRecord, error) {
	records := make([]CandidateRecord, len(rows))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for start := 0; start < len(rows); start += normalizeChunk {
		end := min(start+normalizeChunk, len(rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				records[i] = NormalizeRow(rows[i], mapping, i+FirstDataRow)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// PhoneCandidate is a column whose values mostly look like phone numbers.
type PhoneCandidate struct {
	Header     string  `json:"header"`
	ValidShare float64 `json:"valid_share"`
}

// Analysis is the result of inspecting a freshly parsed file.
type Analysis struct {
	Mapping         ColumnMapping
	PhoneCandidates []PhoneCandidate
}

// Sniffing looks at a bounded sample; a column qualifies when at least
// half of its non-blank sampled cells are valid phone numbers.
const (
	phoneSniffSample   = 200
	phoneSniffMinShare = 0.5
)

// Analyze runs header detection and a phone-column sniff concurrently.
// Candidates are suggestions for the mapping screen; they never change the
// detected mapping.
func Analyze(ctx context.Context, pf ParsedFile) (Analysis, error) {
	var a Analysis

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Mapping = DetectMapping(pf.Headers)
		return nil
	})
	g.Go(func() error {
		candidates, err := sniffPhoneColumns(ctx, pf)
		a.PhoneCandidates = candidates
		return err
	})

	if err := g.Wait(); err != nil {
		return Analysis{}, err
	}
	return a, nil
}

func sniffPhoneColumns(ctx context.Context, pf ParsedFile) ([]PhoneCandidate, error) {
	sample := pf.Rows
	if len(sample) > phoneSniffSample {
		sample = sample[:phoneSniffSample]
	}

	var out []PhoneCandidate
	for _, h := range pf.Headers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var seen, valid int
		for _, row := range sample {
			v := CleanCell(row[h])
			if v == "" {
				continue
			}
			seen++
			if ValidatePhone(v).IsValid {
				valid++
			}
		}
		if seen == 0 {
			continue
		}
		if share := float64(valid) / float64(seen); share >= phoneSniffMinShare {
			out = append(out, PhoneCandidate{Header: h, ValidShare: share})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ValidShare > out[j].ValidShare
	})
	return out, nil
}

// Counts returns valid and invalid record totals.
func Counts(records []CandidateRecord) (valid, invalid int) {
	for _, r := range records {
		if r.IsValid {
			valid++
		} else {
			invalid++
		}
	}
	return valid, invalid
}
