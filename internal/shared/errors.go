package shared

import (
	"errors"
	"fmt"
)

// ErrConflict signals that a movement could not be serialized against a
// concurrent competing transaction. Eligible for a bounded retry.
var ErrConflict = errors.New("concurrent update conflict")

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a field-level validation failure.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a missing entity, including rows that exist but
// belong to another pharmacy.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// InsufficientStockError rejects a removal that exceeds on-hand quantity.
// Available must be surfaced verbatim to the caller.
type InsufficientStockError struct {
	MedicationID int64
	Requested    int64
	Available    int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d units available", e.Available)
}
