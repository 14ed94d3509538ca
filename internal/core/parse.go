package core

// parse.go reads uploaded files into a ParsedFile.
//
// Supported inputs:
//   - Delimited text (.csv, .tsv, .txt) in UTF-8 with or without BOM, or
//     UTF-16 with BOM. The delimiter is sniffed from the header line.
//   - Excel workbooks (.xlsx, .xlsm); only the first sheet is read.
//
// The first non-empty record is the header row. Data rows keep their file
// order, blank lines included, so the row normalizer can number them; only
// blank rows trailing the last data row are dropped.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxFileSize is used when ParseOptions.MaxBytes is unset (20MB).
const DefaultMaxFileSize int64 = 20 * 1024 * 1024

// ParseOptions bounds what ParseFile accepts. Zero values mean the default
// size limit and no row limit.
type ParseOptions struct {
	MaxBytes int64
	MaxRows  int
}

// ParseError reports why a file could not be read. Code is the support
// code shown to users.
type ParseError struct {
	Code string
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var zipMagic = []byte("PK\x03\x04")

// ParseFile reads a CSV or XLSX file. The file name selects the format;
// files without an extension are sniffed.
func ParseFile(name string, r io.Reader, opts ParseOptions) (ParsedFile, error) {
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileSize
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return ParsedFile{}, &ParseError{Code: "FILE010", Msg: "unreadable file", Err: err}
	}
	if int64(len(data)) > maxBytes {
		return ParsedFile{}, &ParseError{
			Code: "FILE001",
			Msg:  fmt.Sprintf("file too large: exceeds %d MB limit", maxBytes/(1024*1024)),
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ParsedFile{}, &ParseError{Code: "FILE005", Msg: "empty file"}
	}

	var records [][]string
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".xlsx", ".xlsm":
		records, err = readWorkbook(data)
	case ".csv", ".txt":
		records, err = readDelimited(data, 0)
	case ".tsv":
		records, err = readDelimited(data, '\t')
	case "":
		if bytes.HasPrefix(data, zipMagic) {
			records, err = readWorkbook(data)
		} else {
			records, err = readDelimited(data, 0)
		}
	default:
		return ParsedFile{}, &ParseError{
			Code: "FILE006",
			Msg:  fmt.Sprintf("unsupported file type %q", ext),
		}
	}
	if err != nil {
		return ParsedFile{}, err
	}

	return buildParsedFile(records, opts.MaxRows)
}

// readDelimited decodes text to UTF-8 and parses it. A zero comma means
// sniff the delimiter.
func readDelimited(data []byte, comma rune) ([][]string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	text, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), decoder))
	if err != nil {
		return nil, &ParseError{Code: "FILE003", Msg: "encoding error", Err: err}
	}
	if !utf8.Valid(text) {
		text = bytes.ToValidUTF8(text, []byte("\uFFFD"))
	}

	if comma == 0 {
		comma = sniffDelimiter(text)
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	// encoding/csv skips empty lines. They are put back as blank records
	// after the header so row numbers keep matching the file.
	var (
		records  [][]string
		newlines int
		consumed int64
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Code: "FILE002", Msg: "invalid csv", Err: err}
		}

		line, _ := r.FieldPos(0)
		if len(records) > 0 {
			for next := newlines + 1; next < line; next++ {
				records = append(records, nil)
			}
		}
		records = append(records, rec)

		off := r.InputOffset()
		newlines += bytes.Count(text[consumed:off], []byte{'\n'})
		consumed = off
	}
	return records, nil
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab in the
// first line, ignoring quoted sections. Ties go to comma.
func sniffDelimiter(text []byte) rune {
	line := text
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}

	counts := map[rune]int{}
	inQuotes := false
	for _, r := range string(line) {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case !inQuotes && (r == ',' || r == ';' || r == '\t'):
			counts[r]++
		}
	}

	best := ','
	for _, c := range []rune{';', '\t'} {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Code: "FILE009", Msg: "invalid spreadsheet", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Code: "FILE005", Msg: "empty file"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Code: "FILE009", Msg: "invalid spreadsheet", Err: err}
	}
	return rows, nil
}

// buildParsedFile turns records into headers and rows. Blank header cells
// are named by position and repeated headers get a numeric suffix, so every
// column stays addressable by name.
func buildParsedFile(records [][]string, maxRows int) (ParsedFile, error) {
	if len(records) == 0 || isEmptyRow(records[0]) {
		return ParsedFile{}, &ParseError{Code: "FILE007", Msg: "missing header row"}
	}

	headers := uniqueHeaders(records[0])

	data := records[1:]
	for len(data) > 0 && isEmptyRow(data[len(data)-1]) {
		data = data[:len(data)-1]
	}
	if maxRows > 0 && len(data) > maxRows {
		return ParsedFile{}, &ParseError{
			Code: "FILE008",
			Msg:  fmt.Sprintf("too many rows: %d exceeds limit of %d", len(data), maxRows),
		}
	}

	rows := make([]RawRow, len(data))
	for i, rec := range data {
		row := make(RawRow, len(headers))
		for j, h := range headers {
			if j < len(rec) {
				row[h] = rec[j]
			} else {
				row[h] = ""
			}
		}
		rows[i] = row
	}

	return ParsedFile{Headers: headers, Rows: rows}, nil
}

func uniqueHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int, len(raw))

	for i, h := range raw {
		h = CleanCell(h)
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		base := h
		for seen[h] > 0 {
			seen[base]++
			h = fmt.Sprintf("%s (%d)", base, seen[base])
		}
		seen[h]++
		headers[i] = h
	}
	return headers
}

// IsParseError reports whether err came from ParseFile.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
