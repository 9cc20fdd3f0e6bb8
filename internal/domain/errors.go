package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure. A stage error immediately
// terminates the run and the kind is recorded on the statement row.
type ErrorKind string

const (
	// KindValidation covers bad input shape rejected before the
	// pipeline starts; no resource is ever allocated for it.
	KindValidation ErrorKind = "validation"
	// KindStorage covers temporary-resource read/write failures.
	KindStorage ErrorKind = "storage"
	// KindExtraction covers unreadable documents and unavailable
	// OCR dependencies.
	KindExtraction ErrorKind = "extraction"
	// KindParse covers classifier responses with no locatable or
	// well-formed JSON.
	KindParse ErrorKind = "parse"
	// KindPersistence covers durable-store failures for
	// statement-level data. Per-row transaction failures are
	// absorbed, not escalated.
	KindPersistence ErrorKind = "persistence"
)

// Extraction failure reasons. ReasonServiceUnavailable also marks a
// classification transport failure during the parse stage.
const (
	ReasonCorrupted          = "corrupted"
	ReasonEncrypted          = "encrypted"
	ReasonEmpty              = "empty"
	ReasonServiceUnavailable = "serviceUnavailable"
)

// Parse failure reasons.
const (
	ReasonNoJSONFound          = "noJsonFound"
	ReasonMalformedJSON        = "malformedJson"
	ReasonMissingRequiredField = "missingRequiredField"
)

// StageError is the typed failure carried out of any pipeline stage.
type StageError struct {
	Kind   ErrorKind
	Reason string // kind-specific detail, e.g. "encrypted", "noJsonFound"
	Err    error  // underlying cause, may be nil
}

func (e *StageError) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s error (%s): %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s error (%s)", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s error", e.Kind)
	}
}

func (e *StageError) Unwrap() error { return e.Err }

// NewValidationError rejects input before any resource is allocated.
func NewValidationError(reason string, err error) *StageError {
	return &StageError{Kind: KindValidation, Reason: reason, Err: err}
}

// NewStorageError wraps a temporary-resource failure.
func NewStorageError(err error) *StageError {
	return &StageError{Kind: KindStorage, Err: err}
}

// NewExtractionError wraps an unreadable-document failure.
func NewExtractionError(reason string, err error) *StageError {
	return &StageError{Kind: KindExtraction, Reason: reason, Err: err}
}

// NewParseError wraps a classifier-response failure.
func NewParseError(reason string, err error) *StageError {
	return &StageError{Kind: KindParse, Reason: reason, Err: err}
}

// NewPersistenceError wraps a statement-level durable-store failure.
func NewPersistenceError(err error) *StageError {
	return &StageError{Kind: KindPersistence, Err: err}
}

// KindOf extracts the error kind from err, walking the wrap chain.
// Unclassified errors report KindPersistence only if they are nil-safe;
// callers should treat the second return as the authority.
func KindOf(err error) (ErrorKind, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// IsParseError reports whether err is a classifier parse failure.
// The recurring-payment sub-flow uses this to degrade instead of fail.
func IsParseError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindParse
}

// UserMessage renders a kind-specific human-readable explanation for
// surfacing through the transport layer.
func UserMessage(err error) string {
	kind, ok := KindOf(err)
	if !ok {
		return "Something went wrong while processing your statement."
	}
	switch kind {
	case KindValidation:
		return "That upload was rejected: please send a PDF bank statement under the size limit."
	case KindStorage:
		return "We could not store your document for processing. Please try again."
	case KindExtraction:
		return "Your statement could not be read. It may be corrupted or password protected; try re-exporting it from your bank."
	case KindParse:
		return "We could not make sense of the extracted statement data. Try a fresh export of the statement."
	case KindPersistence:
		return "Your statement was analyzed but could not be saved. Please try again."
	default:
		return "Something went wrong while processing your statement."
	}
}
