package core

// validation.go holds the per-cell validators used by the row normalizer.
//
// Both validators are pure and never panic. A failed validation is data on
// the result, not a Go error: the row normalizer turns it into an entry in
// CandidateRecord.Errors.

import (
	"regexp"
	"strings"
)

// Phone validation messages. Every failure starts with "Invalid phone"
// except the empty case.
const (
	msgPhoneRequired = "Phone number is required"
	msgPhoneInvalid  = "Invalid phone"
	msgPhoneShort    = "Invalid phone: too short"
	msgPhoneLong     = "Invalid phone: too long"
	msgEmailInvalid  = "Invalid email format"
)

// E.164 allows at most 15 digits. Below 8 there is no dialable
// international number.
const (
	minE164Digits = 8
	maxE164Digits = 15
	nanpDigits    = 10
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// PhoneResult is the outcome of ValidatePhone. E164 is set when IsValid,
// Error otherwise.
type PhoneResult struct {
	IsValid bool
	E164    *string
	Error   *string
}

// EmailResult is the outcome of ValidateEmail. Value is nil when no email
// was given.
type EmailResult struct {
	IsValid bool
	Value   *string
	Error   *string
}

// ValidatePhone normalizes a free-form phone number to E.164.
//
// Separators and letters are dropped; only digits and a leading '+' count.
// Numbers without '+' are read as: "00" international prefix, 10-digit
// North American numbers (area code 2-9), 11 digits starting with the NANP
// country code 1, or 11-15 digits that already include a country code.
func ValidatePhone(raw string) PhoneResult {
	s := strings.TrimSpace(raw)
	international := strings.HasPrefix(s, "+")
	digits := digitsOnly(s)

	if digits == "" {
		return phoneError(msgPhoneRequired)
	}

	if !international && strings.HasPrefix(digits, "00") {
		international = true
		digits = digits[2:]
		if digits == "" {
			return phoneError(msgPhoneInvalid)
		}
	}

	if international {
		switch {
		case len(digits) < minE164Digits:
			return phoneError(msgPhoneShort)
		case len(digits) > maxE164Digits:
			return phoneError(msgPhoneLong)
		case digits[0] == '0':
			return phoneError(msgPhoneInvalid)
		}
		return phoneOK("+" + digits)
	}

	switch {
	case len(digits) < nanpDigits:
		return phoneError(msgPhoneShort)
	case len(digits) == nanpDigits:
		if digits[0] < '2' {
			return phoneError(msgPhoneInvalid)
		}
		return phoneOK("+1" + digits)
	case len(digits) > maxE164Digits:
		return phoneError(msgPhoneLong)
	case digits[0] == '0':
		return phoneError(msgPhoneInvalid)
	}
	return phoneOK("+" + digits)
}

// ValidateEmail checks an optional email address. Blank input is valid and
// yields a nil Value.
func ValidateEmail(raw string) EmailResult {
	s := strings.TrimSpace(raw)
	if s == "" {
		return EmailResult{IsValid: true}
	}
	if !emailRegex.MatchString(s) {
		msg := msgEmailInvalid
		return EmailResult{Error: &msg}
	}
	return EmailResult{IsValid: true, Value: &s}
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func phoneOK(e164 string) PhoneResult {
	return PhoneResult{IsValid: true, E164: &e164}
}

func phoneError(msg string) PhoneResult {
	return PhoneResult{Error: &msg}
}
