package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupoints/edupoints/internal/logger"
	"github.com/edupoints/edupoints/internal/models"
	"github.com/edupoints/edupoints/internal/storage"
)

type WithdrawRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Reason      string `json:"reason"`
	BankDetails string `json:"bank_details" validate:"required"`
}

type WithdrawalResponse struct {
	ID          uuid.UUID  `json:"id"`
	Amount      int64      `json:"amount"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// WithdrawHandler reserves points for an off-platform payout. The amount
// leaves the available balance now; the ledger line posts when an
// administrator processes the request.
func WithdrawHandler(c *fiber.Ctx) error {
	var request WithdrawRequest
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	studentID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

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

	withdrawal, err := storage.CreateWithdrawal(ctx, studentID, request.Amount, request.Reason, request.BankDetails)
	if err != nil {
		return respondError(c, err)
	}

	logger.Log.Info("Withdrawal requested",
		zap.String("requestID", withdrawal.ID.String()),
		zap.String("studentID", studentID.String()),
		zap.Int64("amount", withdrawal.Amount))

	return c.Status(fiber.StatusCreated).JSON(withdrawalResponse(withdrawal))
}

func GetWithdrawalsHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	studentID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	withdrawals, err := storage.GetStudentWithdrawals(ctx, studentID)
	if err != nil {
		return respondError(c, err)
	}

	if len(withdrawals) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	response := make([]WithdrawalResponse, 0, len(withdrawals))
	for _, withdrawal := range withdrawals {
		response = append(response, withdrawalResponse(withdrawal))
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func withdrawalResponse(w models.WithdrawalRequest) WithdrawalResponse {
	return WithdrawalResponse{
		ID:          w.ID,
		Amount:      w.Amount,
		Reason:      w.Reason,
		Status:      w.Status,
		RequestedAt: w.RequestedAt,
		ProcessedAt: w.ProcessedAt,
	}
}
