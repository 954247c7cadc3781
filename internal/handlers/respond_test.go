package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoints/edupoints/internal/errs"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "NotFound", err: errs.NotFound("order", "42"), wantStatus: fiber.StatusNotFound},
		{name: "Conflict", err: errs.Conflict("student already sponsored"), wantStatus: fiber.StatusConflict},
		{name: "InsufficientBalance", err: errs.InsufficientBalance(12000, 8000), wantStatus: fiber.StatusPaymentRequired},
		{name: "InvalidTransition", err: errs.InvalidTransition("order", "fulfilled", "cancelled"), wantStatus: fiber.StatusUnprocessableEntity},
		{name: "PriceMismatch", err: errs.PriceMismatch("item-7"), wantStatus: fiber.StatusConflict},
		{name: "Validation", err: errs.Validation("amount must be positive"), wantStatus: fiber.StatusBadRequest},
		{name: "Unknown", err: errors.New("pg connection reset"), wantStatus: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return respondError(c, tt.err)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}
