// Package core provides the business logic for bulk lead imports.
//
// This package holds all domain logic independent of any UI or transport
// layer. The web handlers and the leadctl CLI both drive it.
//
// # Pipeline
//
// An import moves through explicit stages held on an [ImportSession]:
//
//  1. upload: [ParseFile] reads a .csv or .xlsx file into headers and rows
//  2. mapping: [DetectMapping] proposes which header feeds each lead field;
//     the user may override it with [ImportSession.WithMapping]
//  3. preview: [NormalizeRows] validates every row once, producing a
//     [CandidateRecord] per row with its errors
//  4. importing: valid records go to a [Gateway] in one bulk call
//  5. complete: the [ImportResult] holds the success and failure counts
//
// Sessions are immutable values. The [Service] keeps the current snapshot of
// each session and serializes its transitions.
//
// # Field Rules
//
// Phone numbers are normalized to E.164 by [ValidatePhone]; a row without a
// valid phone number is invalid. Email is optional but must look like an
// address when present. Other fields are trimmed text.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE010: File errors (size, encoding, format)
//   - MAP001-MAP003: Column mapping errors
//   - IMP001-IMP012: Import wizard and commit errors
//   - DB001-DB009: Store errors (duplicates, constraints, connections)
//
// Row validation problems are never Go errors; they are recorded on the
// record and exported with [WriteInvalidRowsCSV].
package core
