package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupoints/edupoints/internal/logger"
	"github.com/edupoints/edupoints/internal/storage"
)

type ConfirmPaymentRequest struct {
	// Billing period of the payment, "YYYY-MM". Defaults to the current month.
	Period string `json:"period"`
}

type TriggerAllocationRequest struct {
	DonorID uuid.UUID `json:"donor_id" validate:"required"`
	Period  string    `json:"period"`
}

// ConfirmPaymentHandler is the entry point from the payment gateway webhook
// after a donor's monthly payment confirms. It allocates points to every
// sponsorship still funding its student; an already-allocated period comes
// back as a skipped row, not an error.
func ConfirmPaymentHandler(c *fiber.Ctx) error {
	var request ConfirmPaymentRequest
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	donorID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	if err := c.BodyParser(&request); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	period := time.Now().UTC()
	if request.Period != "" {
		parsed, err := time.Parse("2006-01", request.Period)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid period, expected YYYY-MM",
			})
		}
		period = parsed
	}

	allocations, err := storage.AllocateMonthly(ctx, donorID, period)
	if err != nil {
		return respondError(c, err)
	}

	if len(allocations) == 0 {
		logger.Log.Info("Payment confirmed with no funding sponsorships",
			zap.String("donorID", donorID.String()))
		return c.SendStatus(fiber.StatusNoContent)
	}

	logger.Log.Info("Payment allocated",
		zap.String("donorID", donorID.String()),
		zap.Int("sponsorships", len(allocations)))

	return c.Status(fiber.StatusOK).JSON(allocations)
}

// TriggerAllocationHandler is the administrative re-run of a donor's monthly
// allocation, used when the gateway webhook was missed. Idempotency makes a
// double trigger harmless.
func TriggerAllocationHandler(c *fiber.Ctx) error {
	var request TriggerAllocationRequest
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	period := time.Now().UTC()
	if request.Period != "" {
		parsed, err := time.Parse("2006-01", request.Period)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid period, expected YYYY-MM",
			})
		}
		period = parsed
	}

	allocations, err := storage.AllocateMonthly(ctx, request.DonorID, period)
	if err != nil {
		return respondError(c, err)
	}

	if len(allocations) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	logger.Log.Info("Allocation triggered",
		zap.String("donorID", request.DonorID.String()),
		zap.Int("sponsorships", len(allocations)))

	return c.Status(fiber.StatusOK).JSON(allocations)
}
