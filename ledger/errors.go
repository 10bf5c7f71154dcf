/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. Validation errors - bad input shape or range, nothing was written
  2. Balance errors - allocation exceeds what the fund has left
  3. Lookup errors - referenced pledge/payment/fund does not exist
  4. Concurrency errors - a conditional update lost a race, retry the operation
  5. Workflow errors - illegal status transition

USAGE:
  if errors.Is(err, ledger.ErrInsufficientFunds) {
      var ife *ledger.InsufficientFundsError
      errors.As(err, &ife) // Available / Requested / Shortfall
  }
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientFunds is returned when an allocation exceeds the
	// fund's remaining balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification is returned when a conditional update
	// affected zero rows because another request changed the row first.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidTransition is returned for a status change the state
	// table does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrFundInactive is returned when allocating from a deactivated fund.
	ErrFundInactive = errors.New("fund is inactive")

	// ErrAlreadyProcessed is returned when a payment has already received
	// the requested decision. Replays can treat it as success.
	ErrAlreadyProcessed = errors.New("payment already processed")

	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrAmountOutOfRange is returned when an amount or a running total
	// can no longer be stored as integer cents.
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError attributes a validation message to one input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(flds ...FieldError) *ValidationError {
	return &ValidationError{Fields: flds}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FieldMap returns field -> message, the shape the API responds with.
func (e *ValidationError) FieldMap() map[string]string {
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		m[f.Field] = f.Message
	}
	return m
}

// InsufficientFundsError provides details about a balance shortage.
type InsufficientFundsError struct {
	FundID    FundID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in %s: available %s, requested %s, shortfall %s",
		e.FundID, e.Available.StringFixed(MoneyScale), e.Requested.StringFixed(MoneyScale),
		e.Shortfall().StringFixed(MoneyScale))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "alumni", "pledge", "payment", "fund", "event"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TransitionError describes a rejected status change.
type TransitionError struct {
	Kind string // "pledge" or "payment"
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Kind, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrFundInactive) ||
		errors.Is(err, ErrAmountOutOfRange) ||
		errors.Is(err, ErrAlreadyProcessed)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
