package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/edupoints/edupoints/internal/storage"
)

type InvestmentResponse struct {
	ID             uuid.UUID `json:"id"`
	Amount         int64     `json:"amount"`
	Platform       string    `json:"platform"`
	ExpectedReturn float64   `json:"expected_return"`
	MaturityDate   time.Time `json:"maturity_date"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type PolicyResponse struct {
	ID             uuid.UUID `json:"id"`
	Provider       string    `json:"provider"`
	CoverageAmount float64   `json:"coverage_amount"`
	PremiumPoints  int64     `json:"premium_points"`
	StartDate      time.Time `json:"start_date"`
	ExpiryDate     time.Time `json:"expiry_date"`
	Status         string    `json:"status"`
}

type DonorProfileResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Status        string    `json:"status"`
	MonthlyAmount float64   `json:"monthly_amount"`
	TotalDonated  float64   `json:"total_donated"`
	TotalPoints   int64     `json:"total_points_generated"`
}

// GetInvestmentsHandler returns the acting student's investment sub-ledger.
func GetInvestmentsHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	studentID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	investments, err := storage.GetStudentInvestments(ctx, studentID)
	if err != nil {
		return respondError(c, err)
	}

	if len(investments) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	response := make([]InvestmentResponse, 0, len(investments))
	for _, inv := range investments {
		response = append(response, InvestmentResponse{
			ID:             inv.ID,
			Amount:         inv.Amount,
			Platform:       inv.Platform,
			ExpectedReturn: inv.ExpectedReturn,
			MaturityDate:   inv.MaturityDate,
			Status:         inv.Status,
			CreatedAt:      inv.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetPoliciesHandler returns the acting student's insurance policies.
func GetPoliciesHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	studentID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	policies, err := storage.GetStudentPolicies(ctx, studentID)
	if err != nil {
		return respondError(c, err)
	}

	if len(policies) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	response := make([]PolicyResponse, 0, len(policies))
	for _, p := range policies {
		response = append(response, PolicyResponse{
			ID:             p.ID,
			Provider:       p.Provider,
			CoverageAmount: p.CoverageAmount,
			PremiumPoints:  p.PremiumPoints,
			StartDate:      p.StartDate,
			ExpiryDate:     p.ExpiryDate,
			Status:         p.Status,
		})
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// DonorProfileHandler returns the acting donor's profile with lifetime
// contribution totals.
func DonorProfileHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	donorID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	donor, err := storage.GetDonor(ctx, donorID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(DonorProfileResponse{
		ID:            donor.ID,
		Name:          donor.Name,
		Status:        donor.Status,
		MonthlyAmount: donor.MonthlyAmount,
		TotalDonated:  donor.TotalDonated,
		TotalPoints:   donor.TotalPoints,
	})
}
