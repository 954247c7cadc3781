package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/edupoints/edupoints/internal/storage"
)

type BalanceResponse struct {
	TotalPoints     int64 `json:"total_points"`
	AvailablePoints int64 `json:"available_points"`
	InvestedPoints  int64 `json:"invested_points"`
	InsurancePoints int64 `json:"insurance_points"`
}

// GetBalanceHandler returns the acting student's category balances.
func GetBalanceHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	studentID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	student, err := storage.GetStudent(ctx, studentID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(BalanceResponse{
		TotalPoints:     student.TotalPoints,
		AvailablePoints: student.AvailablePoints,
		InvestedPoints:  student.InvestedPoints,
		InsurancePoints: student.InsurancePoints,
	})
}

type TransactionResponse struct {
	ID             uuid.UUID `json:"id"`
	Type           string    `json:"type"`
	Amount         int64     `json:"amount"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	RunningBalance int64     `json:"running_balance"`
	CreatedAt      time.Time `json:"created_at"`
}

// GetTransactionsHandler returns the student's ledger in posting order.
func GetTransactionsHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	studentID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	transactions, err := storage.GetStudentTransactions(ctx, studentID)
	if err != nil {
		return respondError(c, err)
	}

	if len(transactions) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	response := make([]TransactionResponse, 0, len(transactions))
	for _, t := range transactions {
		response = append(response, TransactionResponse{
			ID:             t.ID,
			Type:           t.Type,
			Amount:         t.Amount,
			Description:    t.Description,
			Category:       t.Category,
			RunningBalance: t.RunningBalance,
			CreatedAt:      t.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(response)
}
