package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the requested patient, bill or medicine does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness or optimistic-concurrency violation.
	ErrConflict = errors.New("conflict")

	// ErrInsufficientStock indicates a medicine cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrNotifier indicates an alert batch could not be handed over or delivered.
	ErrNotifier = errors.New("notifier failure")

	// ErrUpstream indicates the messaging provider refused or never answered a send.
	ErrUpstream = errors.New("messaging provider unavailable")
)

// InsufficientStockError carries the details needed to tell the caller which medicine ran short.
type InsufficientStockError struct {
	MedicineID   string
	MedicineName string
	Available    int
	Requested    int
}

func (e *InsufficientStockError) Error() string {
	name := e.MedicineName
	if name == "" {
		name = e.MedicineID
	}
	return fmt.Sprintf("insufficient stock for %s: only %d units available, %d requested", name, e.Available, e.Requested)
}

// Unwrap lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ValidationError lists every field problem found in one request.
type ValidationError struct {
	Problems []string
}

// NewValidationError builds a ValidationError from one or more messages.
func NewValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

// Add records another problem.
func (e *ValidationError) Add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Empty reports whether no problem was recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Problems) == 0
}

// OrNil returns nil when no problem was recorded so callers can `return v.OrNil()`.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Problems, "; "))
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
