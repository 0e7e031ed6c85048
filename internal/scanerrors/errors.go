// Package scanerrors provides sentinel and custom error types for the application.
package scanerrors

import "fmt"

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrSchemaFieldUnknown is the sentinel for writes that reference a field the
// storage schema does not know yet (deployed code ahead of a migration).
// The scans repository raises it deliberately at the adapter boundary instead
// of sniffing database error messages, so the write path can degrade by
// dropping optional fields.
var ErrSchemaFieldUnknown = &SchemaFieldUnknownError{}

// SchemaFieldUnknownError is a sentinel error for unknown storage fields.
type SchemaFieldUnknownError struct {
	Field string
}

// NewSchemaFieldUnknownError creates a SchemaFieldUnknownError for the given field.
func NewSchemaFieldUnknownError(field string) *SchemaFieldUnknownError {
	return &SchemaFieldUnknownError{Field: field}
}

// Error implements the error interface.
func (e *SchemaFieldUnknownError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("storage schema does not know field: %s", e.Field)
	}

	return "storage schema does not know field"
}

// Is implements the error interface for error comparison.
func (e *SchemaFieldUnknownError) Is(target error) bool {
	_, ok := target.(*SchemaFieldUnknownError)

	return ok
}

// ErrStaleWrite is the sentinel for stage-advancing writes that lost a version
// check (another pipeline run advanced the same scan first).
var ErrStaleWrite = &StaleWriteError{}

// StaleWriteError is a sentinel error for optimistic-version conflicts on scan records.
type StaleWriteError struct {
	ScanID          string
	ExpectedVersion int
}

// NewStaleWriteError creates a StaleWriteError for the given scan and expected version.
func NewStaleWriteError(scanID string, expectedVersion int) *StaleWriteError {
	return &StaleWriteError{ScanID: scanID, ExpectedVersion: expectedVersion}
}

// Error implements the error interface.
func (e *StaleWriteError) Error() string {
	if e.ScanID != "" {
		return fmt.Sprintf("stale write for scan %s (expected version %d)", e.ScanID, e.ExpectedVersion)
	}

	return "stale write"
}

// Is implements the error interface for error comparison.
func (e *StaleWriteError) Is(target error) bool {
	_, ok := target.(*StaleWriteError)

	return ok
}

// ErrConflict is the sentinel for conflict errors (e.g. duplicate strain name within an owner).
var ErrConflict = &ConflictError{}

// ConflictError is a sentinel error for resource conflicts.
type ConflictError struct {
	Message string
}

// NewConflictError creates a ConflictError with a custom message.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "conflict"
}

// Is implements the error interface for error comparison.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)

	return ok
}
