package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupoints/edupoints/cmd/config"
	"github.com/edupoints/edupoints/internal/logger"
	"github.com/edupoints/edupoints/internal/models"
	"github.com/edupoints/edupoints/internal/notify"
	"github.com/edupoints/edupoints/internal/points"
	"github.com/edupoints/edupoints/internal/storage"
)

type CreateSponsorshipRequest struct {
	StudentID     uuid.UUID `json:"student_id" validate:"required"`
	MonthlyAmount float64   `json:"monthly_amount" validate:"required,gt=0"`
}

type OptOutRequest struct {
	Reason string `json:"reason"`
}

type SponsorshipResponse struct {
	ID                  uuid.UUID  `json:"id"`
	StudentID           uuid.UUID  `json:"student_id"`
	Status              string     `json:"status"`
	StartDate           time.Time  `json:"start_date"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	MonthlyAmount       float64    `json:"monthly_amount"`
	MonthlyPoints       int64      `json:"monthly_points"`
	StudentInfoHidden   bool       `json:"student_info_hidden"`
	OptOutRequestedDate *time.Time `json:"opt_out_requested_date,omitempty"`
	OptOutEffectiveDate *time.Time `json:"opt_out_effective_date,omitempty"`
}

func CreateSponsorshipHandler(c *fiber.Ctx) error {
	var request CreateSponsorshipRequest
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	donorID, ok := principalID(c)
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

	monthlyPoints := points.Convert(request.MonthlyAmount, config.PointsPerUnit)
	s, err := storage.CreateSponsorship(ctx, donorID, request.StudentID, request.MonthlyAmount, monthlyPoints)
	if err != nil {
		return respondError(c, err)
	}

	notify.Send(notify.RecipientStudent, s.StudentID, notify.EventSponsorshipCreated, "")
	notify.Send(notify.RecipientDonor, donorID, notify.EventSponsorshipCreated, "")

	logger.Log.Info("Sponsorship created",
		zap.String("sponsorshipID", s.ID.String()),
		zap.String("donorID", donorID.String()),
		zap.String("studentID", s.StudentID.String()))

	return c.Status(fiber.StatusCreated).JSON(sponsorshipResponse(s))
}

func GetSponsorshipsHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	donorID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	sponsorships, err := storage.GetDonorSponsorships(ctx, donorID)
	if err != nil {
		return respondError(c, err)
	}

	if len(sponsorships) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	response := make([]SponsorshipResponse, 0, len(sponsorships))
	for _, s := range sponsorships {
		response = append(response, sponsorshipResponse(s))
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func RequestOptOutHandler(c *fiber.Ctx) error {
	var request OptOutRequest
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	donorID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	sponsorshipID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid sponsorship id",
		})
	}

	if err := c.BodyParser(&request); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	s, err := storage.RequestOptOut(ctx, sponsorshipID, donorID, request.Reason, time.Now().UTC())
	if err != nil {
		return respondError(c, err)
	}

	notify.Send(notify.RecipientAdmin, donorID, notify.EventOptOutRequested, s.ID.String())

	logger.Log.Info("Opt-out requested",
		zap.String("sponsorshipID", s.ID.String()),
		zap.Time("effective", *s.OptOutEffectiveDate))

	return c.Status(fiber.StatusOK).JSON(sponsorshipResponse(s))
}

func CancelOptOutHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	donorID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	sponsorshipID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid sponsorship id",
		})
	}

	s, err := storage.CancelOptOut(ctx, sponsorshipID, donorID)
	if err != nil {
		return respondError(c, err)
	}

	notify.Send(notify.RecipientStudent, s.StudentID, notify.EventOptOutCancelled, "")

	return c.Status(fiber.StatusOK).JSON(sponsorshipResponse(s))
}

type AvailableStudentResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Education string    `json:"education_level"`
}

// AvailableStudentsHandler lists approved students with no active or
// opt-out-pending sponsorship. A student inside an opt-out notice period is
// hidden from every donor, not just the departing one.
func AvailableStudentsHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	students, err := storage.ListAvailableStudents(ctx)
	if err != nil {
		return respondError(c, err)
	}

	if len(students) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	response := make([]AvailableStudentResponse, 0, len(students))
	for _, student := range students {
		response = append(response, AvailableStudentResponse{
			ID:        student.ID,
			Name:      student.Name,
			Education: student.Education.Level,
		})
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func sponsorshipResponse(s models.Sponsorship) SponsorshipResponse {
	return SponsorshipResponse{
		ID:                  s.ID,
		StudentID:           s.StudentID,
		Status:              s.Status,
		StartDate:           s.StartDate,
		EndDate:             s.EndDate,
		MonthlyAmount:       s.MonthlyAmount,
		MonthlyPoints:       s.MonthlyPoints,
		StudentInfoHidden:   s.StudentInfoHidden,
		OptOutRequestedDate: s.OptOutRequestedDate,
		OptOutEffectiveDate: s.OptOutEffectiveDate,
	}
}
