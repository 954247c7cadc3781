// Package errs defines the error taxonomy shared by storage and handlers.
// Every mutating operation either fully succeeds or fails with exactly one
// of these sentinels wrapped around the detail.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrPriceMismatch          = errors.New("price mismatch")
	ErrValidation             = errors.New("validation failed")
)

// NotFound wraps ErrNotFound with the entity and id that was looked up.
func NotFound(entity string, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// Conflict wraps ErrConflict with a human-readable cause.
func Conflict(detail string) error {
	return fmt.Errorf("%s: %w", detail, ErrConflict)
}

// InsufficientBalance reports a spend of want points against a balance of have.
func InsufficientBalance(want, have int64) error {
	return fmt.Errorf("need %d points, have %d: %w", want, have, ErrInsufficientBalance)
}

// InvalidTransition reports an illegal lifecycle move from one status to another.
func InvalidTransition(entity, from, to string) error {
	return fmt.Errorf("%s cannot move from %s to %s: %w", entity, from, to, ErrInvalidStateTransition)
}

// PriceMismatch reports a stale or inactive catalog item at checkout.
func PriceMismatch(itemID string) error {
	return fmt.Errorf("catalog item %s: %w", itemID, ErrPriceMismatch)
}

// Validation wraps ErrValidation with the offending detail.
func Validation(detail string) error {
	return fmt.Errorf("%s: %w", detail, ErrValidation)
}
