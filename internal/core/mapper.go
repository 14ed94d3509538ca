package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// headerRule maps any normalized header containing one of its tokens to a
// field. With exact set, the normalized header must equal a token instead.
type headerRule struct {
	field  Field
	tokens []string
	exact  bool
}

// headerRules are tried in order; the first match decides a header's field.
var headerRules = []headerRule{
	{field: FieldPhoneNumber, tokens: []string{"phone", "mobile", "cell"}},
	{field: FieldFirstName, tokens: []string{"firstname", "first"}},
	{field: FieldLastName, tokens: []string{"lastname", "last"}},
	{field: FieldEmail, tokens: []string{"email", "mail"}},
	{field: FieldCompany, tokens: []string{"company", "organization", "business"}},
	{field: FieldJobTitle, tokens: []string{"title", "position", "role"}},
	{field: FieldFirstName, tokens: []string{"name"}, exact: true},
}

// DetectMapping proposes a column mapping from a file's header row.
//
// When several headers match the same field, the last one in header order
// wins. "First Name" followed by "Name" maps first_name to "Name".
func DetectMapping(headers []string) ColumnMapping {
	m := make(ColumnMapping)
	for _, h := range headers {
		if f, ok := MatchHeader(h); ok {
			m[f] = h
		}
	}
	return m
}

// MatchHeader returns the canonical field a single header maps to.
func MatchHeader(header string) (Field, bool) {
	token := normalizeHeader(header)
	if token == "" {
		return "", false
	}
	for _, rule := range headerRules {
		for _, t := range rule.tokens {
			if rule.exact && token == t {
				return rule.field, true
			}
			if !rule.exact && strings.Contains(token, t) {
				return rule.field, true
			}
		}
	}
	return "", false
}

// normalizeHeader folds a header to a comparison token: compatibility
// decomposition with accents dropped, lower case, and no spaces, underscores
// or hyphens. "Téléphone Mobile" becomes "telephonemobile".
func normalizeHeader(h string) string {
	decomposed := norm.NFKD.String(h)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
		case unicode.IsSpace(r), r == '_', r == '-':
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
