package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrConflict      = errors.New("conflict")
	ErrPaymentDenied = errors.New("payment denied")
	ErrCooldown      = errors.New("sender cooldown active")
	ErrLedger        = errors.New("ledger write failed")
	// ErrLedgerRejected means the ledger will never record the transaction.
	ErrLedgerRejected = errors.New("ledger rejected the transaction")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}

// PaymentReceipt identifies a verified payment proof that has not been spent yet.
type PaymentReceipt struct {
	PaymentID string
	ExpiresAt time.Time
}

// PaymentDeniedError is returned when a submission carries no acceptable payment proof.
type PaymentDeniedError struct {
	Reason string
}

func (e *PaymentDeniedError) Error() string {
	return "payment denied: " + e.Reason
}

func (e *PaymentDeniedError) Unwrap() error { return ErrPaymentDenied }

// CooldownError reports that the sender holds an active lock to another recipient.
type CooldownError struct {
	SenderKey       string
	LockedRecipient string
	ExpiresAt       time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("sender %s is locked to another recipient until %s",
		e.SenderKey, e.ExpiresAt.UTC().Format(time.RFC3339))
}

func (e *CooldownError) Unwrap() error { return ErrCooldown }

// RetryAfter returns how long the caller has to wait before the lock expires.
// Never negative.
func (e *CooldownError) RetryAfter(now time.Time) time.Duration {
	d := e.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ConflictError is returned by a compare-and-swap transition when the stored
// state differs from the expected one.
type ConflictError struct {
	SignalID uuid.UUID
	Expected SignalState
	Actual   SignalState
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("signal %s: expected state %s, found %s", e.SignalID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// LedgerError wraps the last failure of a ledger write after all attempts.
type LedgerError struct {
	Attempts int
	Err      error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger write failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *LedgerError) Unwrap() []error { return []error{ErrLedger, e.Err} }
