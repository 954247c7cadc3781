package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupoints/edupoints/internal/logger"
	"github.com/edupoints/edupoints/internal/models"
	"github.com/edupoints/edupoints/internal/notify"
	"github.com/edupoints/edupoints/internal/storage"
)

type AdjustmentRequest struct {
	StudentID   uuid.UUID `json:"student_id" validate:"required"`
	Type        string    `json:"type" validate:"required,oneof=earned spent invested withdrawn insurance"`
	Amount      int64     `json:"amount" validate:"required"`
	Description string    `json:"description" validate:"required"`
}

// AdjustmentHandler is the administrative correction path. Corrections go
// through the ledger like everything else.
func AdjustmentHandler(c *fiber.Ctx) error {
	var request AdjustmentRequest
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

	err := storage.RecordManualAdjustment(ctx, request.StudentID, request.Type, request.Amount, request.Description)
	if err != nil {
		return respondError(c, err)
	}

	logger.Log.Info("Manual adjustment posted",
		zap.String("studentID", request.StudentID.String()),
		zap.String("type", request.Type),
		zap.Int64("amount", request.Amount))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Adjustment posted",
	})
}

type OpenInvestmentRequest struct {
	StudentID      uuid.UUID `json:"student_id" validate:"required"`
	Amount         int64     `json:"amount" validate:"required,gt=0"`
	Platform       string    `json:"platform" validate:"required"`
	ExpectedReturn float64   `json:"expected_return"`
	MaturityDate   time.Time `json:"maturity_date" validate:"required"`
	AdHoc          bool      `json:"ad_hoc"`
}

func OpenInvestmentHandler(c *fiber.Ctx) error {
	var request OpenInvestmentRequest
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

	investment, err := storage.OpenInvestment(ctx, request.StudentID, request.Amount,
		request.Platform, request.ExpectedReturn, request.MaturityDate, request.AdHoc)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(investment)
}

func CompleteInvestmentHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	investmentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid investment id",
		})
	}

	investment, err := storage.CompleteInvestment(ctx, investmentID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(investment)
}

type IssuePolicyRequest struct {
	StudentID      uuid.UUID `json:"student_id" validate:"required"`
	Provider       string    `json:"provider" validate:"required"`
	CoverageAmount float64   `json:"coverage_amount" validate:"required,gt=0"`
	PremiumPoints  int64     `json:"premium_points" validate:"required,gt=0"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	ExpiryDate     time.Time `json:"expiry_date" validate:"required"`
	AdHoc          bool      `json:"ad_hoc"`
}

func IssuePolicyHandler(c *fiber.Ctx) error {
	var request IssuePolicyRequest
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

	policy, err := storage.IssuePolicy(ctx, request.StudentID, request.Provider,
		request.CoverageAmount, request.PremiumPoints, request.StartDate, request.ExpiryDate, request.AdHoc)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(policy)
}

func ExpirePolicyHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	policyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid policy id",
		})
	}

	policy, err := storage.ExpirePolicy(ctx, policyID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(policy)
}

func ProcessWithdrawalHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	requestID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid withdrawal id",
		})
	}

	withdrawal, err := storage.ProcessWithdrawal(ctx, requestID)
	if err != nil {
		return respondError(c, err)
	}

	notify.Send(notify.RecipientStudent, withdrawal.StudentID, notify.EventWithdrawalDecided, withdrawal.Status)

	logger.Log.Info("Withdrawal processed",
		zap.String("requestID", withdrawal.ID.String()),
		zap.Int64("amount", withdrawal.Amount))

	return c.Status(fiber.StatusOK).JSON(withdrawalResponse(withdrawal))
}

func RejectWithdrawalHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	requestID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid withdrawal id",
		})
	}

	withdrawal, err := storage.RejectWithdrawal(ctx, requestID)
	if err != nil {
		return respondError(c, err)
	}

	notify.Send(notify.RecipientStudent, withdrawal.StudentID, notify.EventWithdrawalDecided, withdrawal.Status)

	return c.Status(fiber.StatusOK).JSON(withdrawalResponse(withdrawal))
}

type CatalogItemRequest struct {
	ID         *uuid.UUID `json:"id"`
	Name       string     `json:"name" validate:"required"`
	Category   string     `json:"category"`
	UnitPoints int64      `json:"unit_points" validate:"required,gt=0"`
	IsActive   bool       `json:"is_active"`
}

// UpsertCatalogItemHandler manages the price and availability fields the
// purchase engine needs.
func UpsertCatalogItemHandler(c *fiber.Ctx) error {
	var request CatalogItemRequest
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

	item := models.CatalogItem{
		Name:       request.Name,
		Category:   request.Category,
		UnitPoints: request.UnitPoints,
		IsActive:   request.IsActive,
	}
	if request.ID != nil {
		item.ID = *request.ID
	}

	saved, err := storage.UpsertCatalogItem(ctx, item)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(saved)
}

// ReconcileStudentHandler replays a student's ledger against the stored
// balances, the audit check behind the immutable-ledger guarantee.
func ReconcileStudentHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	studentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid student id",
		})
	}

	report, err := storage.ReconcileStudentLedger(ctx, studentID)
	if err != nil {
		return respondError(c, err)
	}

	if !report.Consistent {
		logger.Log.Error("Ledger reconciliation mismatch",
			zap.String("studentID", studentID.String()),
			zap.String("fault", report.Fault))
	}

	return c.Status(fiber.StatusOK).JSON(report)
}
