package revrec

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected before any write.
	ErrValidation = errors.New("revrec: validation failed")
	// ErrConcurrency indicates a recognition run is already in flight for the contract.
	ErrConcurrency = errors.New("revrec: recognition run already in progress")
	// ErrInconsistentState indicates recorded state cannot be reconciled with a recomputation.
	ErrInconsistentState = errors.New("revrec: inconsistent state")
	// ErrPostingImbalance indicates a generated batch does not balance.
	ErrPostingImbalance = errors.New("revrec: posting imbalance")
	// ErrExternalIO indicates the document store failed.
	ErrExternalIO = errors.New("revrec: document store unavailable")
	// ErrNotFound indicates a tenant-scoped record does not exist.
	ErrNotFound = errors.New("revrec: not found")
)

// ValidationError carries the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "revrec: " + e.Message
	}
	return fmt.Sprintf("revrec: %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InconsistentStateError reports a recognized amount that would go backwards.
type InconsistentStateError struct {
	ObligationID string
	Recorded     string
	Computed     string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("revrec: obligation %s recomputed %s below recorded %s without reversal", e.ObligationID, e.Computed, e.Recorded)
}

// Unwrap lets errors.Is match ErrInconsistentState.
func (e *InconsistentStateError) Unwrap() error { return ErrInconsistentState }

// ConcurrencyError names the contract whose run is in flight.
type ConcurrencyError struct {
	ContractID string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("revrec: recognition run already in progress for contract %s", e.ContractID)
}

// Unwrap lets errors.Is match ErrConcurrency.
func (e *ConcurrencyError) Unwrap() error { return ErrConcurrency }

// Imbalance builds a posting imbalance error.
func Imbalance(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPostingImbalance, fmt.Sprintf(format, args...))
}

// ExternalIO wraps a store failure so callers can classify it.
func ExternalIO(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return err
	}
	return &externalIOError{op: op, err: err}
}

type externalIOError struct {
	op  string
	err error
}

func (e *externalIOError) Error() string {
	return fmt.Sprintf("revrec: %s: %v", e.op, e.err)
}

func (e *externalIOError) Is(target error) bool { return target == ErrExternalIO }

func (e *externalIOError) Unwrap() error { return e.err }
