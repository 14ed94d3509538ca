package core

// # Error Codes Reference
//
// This file maps technical errors to user-friendly messages with codes for
// support reference. Users quote the code; support staff look it up here.
//
// # File Errors (FILE001-FILE099)
//
// Errors raised while reading an uploaded file:
//
//	FILE001 - File too large        Patterns: "file too large"
//	FILE002 - Invalid CSV           Patterns: "invalid csv"
//	FILE003 - Encoding error        Patterns: "encoding error"
//	FILE004 - No file               Patterns: "no file provided"
//	FILE005 - Empty file            Patterns: "empty file"
//	FILE006 - Unsupported type      Patterns: "unsupported file type"
//	FILE007 - No header row         Patterns: "missing header row"
//	FILE008 - Too many rows         Patterns: "too many rows"
//	FILE009 - Bad workbook          Patterns: "invalid spreadsheet"
//	FILE010 - Unreadable upload     Patterns: "unreadable file"
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Phone column unmapped  Patterns: "phone number column is not mapped"
//	MAP002 - Unknown header         Patterns: "header not found in file"
//	MAP003 - Unknown field          Patterns: "unknown field"
//
// # Import Errors (IMP001-IMP099)
//
// Errors in the import wizard and commit step:
//
//	IMP001 - Nothing to import      Patterns: "no valid records"
//	IMP002 - Commit running         Patterns: "commit already in progress"
//	IMP003 - Session expired        Patterns: "import session not found"
//	IMP004 - Wrong step             Patterns: "invalid stage transition"
//	IMP005 - System busy            Patterns: "too many concurrent commits"
//	IMP006 - Unknown campaign       Patterns: "campaign not found"
//	IMP007 - Too many sessions      Patterns: "too many open import sessions"
//	IMP008 - Bad campaign id        Patterns: "invalid campaign id"
//	IMP009 - Request cancelled      Patterns: "context canceled"
//	IMP010 - Request timeout        Patterns: "context deadline exceeded"
//	IMP011 - Lead rejected          Patterns: "invalid lead"
//	IMP012 - No tenant              Patterns: "missing tenant"
//
// # Template Errors (TPL001-TPL099)
//
//	TPL001 - Template missing       Patterns: "mapping template not found"
//	TPL002 - Duplicate name         Patterns: "mapping template already exists"
//	TPL003 - No name                Patterns: "template name is required"
//	TPL004 - Not supported          Patterns: "mapping templates are not supported"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key           Patterns: "duplicate key"
//	DB002 - Unique constraint       Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key             Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused      Patterns: "connection refused"
//	DB005 - Connection reset        Patterns: "connection reset"
//	DB006 - Timeout                 Patterns: "timeout"
//	DB007 - Deadlock                Patterns: "deadlock"
//	DB008 - Store busy              Patterns: "database is locked"
//	DB009 - Value rejected          Patterns: "check constraint"
//
// # Request Errors (REQ001)
//
//	REQ001 - Bad request body       Patterns: "invalid request"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check the application logs for the
// original technical error, logged with the request ID.
//
// # Pattern Matching
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors
	// =========================================================================
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller files", "FILE001"}},
	{"invalid csv", UserMessage{"File is not a valid CSV", "Check that every row uses the same delimiter and quotes are balanced", "FILE002"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save the file as UTF-8 and upload again", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a CSV or Excel file to upload", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Please upload a file with a header row and lead rows", "FILE005"}},
	{"unsupported file type", UserMessage{"This file type is not supported", "Upload a .csv or .xlsx file", "FILE006"}},
	{"missing header row", UserMessage{"The first row of the file is blank", "Put column names such as Phone and Email in the first row", "FILE007"}},
	{"too many rows", UserMessage{"The file has more rows than a single import allows", "Split the file into smaller files", "FILE008"}},
	{"invalid spreadsheet", UserMessage{"The Excel file could not be opened", "Re-save the workbook as .xlsx or export it to CSV", "FILE009"}},
	{"unreadable file", UserMessage{"The upload could not be read", "Please try uploading the file again", "FILE010"}},

	// =========================================================================
	// Mapping Errors
	// =========================================================================
	{"phone number column is not mapped", UserMessage{"No column is mapped to Phone Number", "Choose the column that holds phone numbers", "MAP001"}},
	{"header not found in file", UserMessage{"That column is not in the uploaded file", "Pick one of the columns shown on the mapping screen", "MAP002"}},
	{"unknown field", UserMessage{"Unknown lead field", "Map columns to phone_number, first_name, last_name, email, company or job_title", "MAP003"}},

	// =========================================================================
	// Import Errors
	// =========================================================================
	{"no valid records", UserMessage{"There are no valid rows to import", "Go back and fix the column mapping, or correct the file and upload it again", "IMP001"}},
	{"commit already in progress", UserMessage{"This import is already running", "Wait for it to finish", "IMP002"}},
	{"import session not found", UserMessage{"Import session not found", "The import may have expired. Please start a new import", "IMP003"}},
	{"invalid stage transition", UserMessage{"That step is not available right now", "Refresh the page to see the current step", "IMP004"}},
	{"too many concurrent commits", UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "IMP005"}},
	{"campaign not found", UserMessage{"The selected campaign does not exist", "Choose another campaign or import without one", "IMP006"}},
	{"too many open import sessions", UserMessage{"Too many imports are open", "Finish or close an open import and try again", "IMP007"}},
	{"invalid campaign id", UserMessage{"The campaign id is not valid", "Choose the campaign from the list", "IMP008"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "IMP009"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or try again later", "IMP010"}},
	{"invalid lead", UserMessage{"A lead could not be prepared for import", "Please contact support with this code", "IMP011"}},
	{"missing tenant", UserMessage{"Your account could not be identified", "Sign in again and retry", "IMP012"}},

	// =========================================================================
	// Template Errors
	// =========================================================================
	{"mapping template not found", UserMessage{"The saved mapping no longer exists", "Choose another saved mapping or map the columns by hand", "TPL001"}},
	{"mapping template already exists", UserMessage{"A saved mapping with this name already exists", "Pick a different name", "TPL002"}},
	{"template name is required", UserMessage{"The saved mapping needs a name", "Enter a name of up to 100 characters", "TPL003"}},
	{"mapping templates are not supported", UserMessage{"Saved mappings are not available", "Map the columns by hand", "TPL004"}},

	// =========================================================================
	// Database Errors
	// =========================================================================
	{"duplicate key", UserMessage{"A lead with this key already exists", "Download invalid rows to review duplicates", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your file", "DB002"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Check for duplicate entries in your file", "DB002"}},
	{"foreign key constraint", UserMessage{"Referenced record does not exist", "Check the selected campaign", "DB003"}},
	{"violates foreign key", UserMessage{"Referenced record does not exist", "Check the selected campaign", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},
	{"database is locked", UserMessage{"The lead store is busy", "Please try again in a few moments", "DB008"}},
	{"check constraint", UserMessage{"The lead store rejected a value", "Check the phone number and other fields in this row", "DB009"}},

	// =========================================================================
	// Request Errors
	// =========================================================================
	{"invalid request", UserMessage{"The request could not be understood", "Check the submitted values and try again", "REQ001"}},

	// =========================================================================
	// Rate Limiting
	// =========================================================================
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. The first
// matching pattern wins; unmatched errors get ERR000.
//
//	msg := MapError(ErrPhoneUnmapped)
//	// msg.Code == "MAP001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError formats an error as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
