package core

// convert.go cleans the artifacts spreadsheet exports leave in cells:
//   - Leading and trailing whitespace
//   - Excel formula wrappers (="0044123456" keeps leading zeros in Excel)
//   - Stray surrounding quotes
//   - Byte order marks and non-breaking spaces pasted from web pages

import "strings"

// CleanCell removes common export artifacts from a cell value.
func CleanCell(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			s = s[1 : len(s)-1]
		}
	}

	return strings.TrimSpace(s)
}

// optionalText returns nil for a blank value and a pointer to the cleaned
// value otherwise.
func optionalText(s string) *string {
	s = CleanCell(s)
	if s == "" {
		return nil
	}
	return &s
}

// isEmptyRow reports whether every cell is blank after cleaning.
func isEmptyRow(row []string) bool {
	for _, v := range row {
		if CleanCell(v) != "" {
			return false
		}
	}
	return true
}
