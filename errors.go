package folio

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("folio: not found")
	ErrInvalidInput = errors.New("folio: invalid input")
	ErrUnauthorized = errors.New("folio: unauthorized")
	ErrForbidden    = errors.New("folio: forbidden")

	// Invoice errors
	ErrInvoiceNotFound   = errors.New("folio: invoice not found")
	ErrReferenceExists   = errors.New("folio: reference number already exists")
	ErrInvoiceNotPending = errors.New("folio: invoice is not pending")
	ErrInvoicePaid       = errors.New("folio: invoice already paid")

	// Transaction errors
	ErrTransactionNotFound = errors.New("folio: transaction not found")
	ErrTransactionReadOnly = errors.New("folio: transactions are read-only")

	// Store errors
	ErrConflict    = errors.New("folio: concurrent modification conflict")
	ErrStoreClosed = errors.New("folio: store is closed")
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates field-level failures from one operation.
// It unwraps to ErrInvalidInput so callers can classify with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "folio: invalid input"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "folio: invalid input: " + strings.Join(parts, "; ")
}

// Unwrap implements errors.Is support.
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Add appends a field failure.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any field failed.
func (e *ValidationError) HasErrors() bool { return len(e.Fields) > 0 }

// StateError reports an invalid lifecycle transition, carrying the status the
// invoice actually had. It unwraps to ErrInvoiceNotPending.
type StateError struct {
	Current string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("Cannot mark invoice as paid. Current status is '%s'.", e.Current)
}

// Unwrap implements errors.Is support.
func (e *StateError) Unwrap() error { return ErrInvoiceNotPending }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
