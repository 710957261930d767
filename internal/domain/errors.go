package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrLocationNotFound       = errors.New("location not found")
	ErrAlreadyReturned        = errors.New("transaction already returned")
	ErrNoCompletedPayment     = errors.New("no completed payment exists for transaction")
	ErrRefundInProgress       = errors.New("a refund is already in progress or complete")
	ErrDuplicateActivePayment = errors.New("an active payment already exists for transaction")
)

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	Kind string
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %s to %s", e.Kind, e.From, e.To)
}

// NewInvalidTransitionError creates a new InvalidTransitionError.
func NewInvalidTransitionError(kind, from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{Kind: kind, From: from, To: to}
}

// ValidationError represents a business-rule rejection. These are
// deterministic: retrying the same input will fail the same way.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
