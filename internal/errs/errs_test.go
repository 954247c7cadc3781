package errs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edupoints/edupoints/internal/errs"
)

func TestConstructorsWrapSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		contains string
	}{
		{name: "NotFound", err: errs.NotFound("order", "42"), sentinel: errs.ErrNotFound, contains: "order 42"},
		{name: "Conflict", err: errs.Conflict("student already sponsored"), sentinel: errs.ErrConflict, contains: "already sponsored"},
		{name: "InsufficientBalance", err: errs.InsufficientBalance(12000, 8000), sentinel: errs.ErrInsufficientBalance, contains: "need 12000 points, have 8000"},
		{name: "InvalidTransition", err: errs.InvalidTransition("order", "fulfilled", "cancelled"), sentinel: errs.ErrInvalidStateTransition, contains: "fulfilled"},
		{name: "PriceMismatch", err: errs.PriceMismatch("item-7"), sentinel: errs.ErrPriceMismatch, contains: "item-7"},
		{name: "Validation", err: errs.Validation("amount must be positive"), sentinel: errs.ErrValidation, contains: "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Contains(t, tt.err.Error(), tt.contains)
		})
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	assert.NotErrorIs(t, errs.NotFound("order", "42"), errs.ErrConflict)
	assert.NotErrorIs(t, errs.Conflict("dup"), errs.ErrNotFound)
	assert.NotErrorIs(t, errs.InsufficientBalance(1, 0), errs.ErrValidation)
}
