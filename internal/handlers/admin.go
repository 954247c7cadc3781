package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupoints/edupoints/internal/fulfillment"
	"github.com/edupoints/edupoints/internal/logger"
	"github.com/edupoints/edupoints/internal/models"
	"github.com/edupoints/edupoints/internal/notify"
	"github.com/edupoints/edupoints/internal/storage"
)

type ApproveOrderRequest struct {
	VendorID *uuid.UUID `json:"vendor_id"`
}

func ApproveOrderHandler(c *fiber.Ctx) error {
	var request ApproveOrderRequest
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid order id",
		})
	}

	if err := c.BodyParser(&request); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	order, err := storage.ApproveOrder(ctx, orderID, request.VendorID)
	if err != nil {
		return respondError(c, err)
	}

	notify.Send(notify.RecipientStudent, order.StudentID, notify.EventOrderStatusChanged, order.Status)

	return c.Status(fiber.StatusOK).JSON(orderResponse(order, false))
}

func RejectOrderHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid order id",
		})
	}

	order, err := storage.RejectOrder(ctx, orderID)
	if err != nil {
		return respondError(c, err)
	}

	notify.Send(notify.RecipientStudent, order.StudentID, notify.EventOrderStatusChanged, order.Status)

	logger.Log.Info("Order rejected, points refunded",
		zap.String("orderID", order.ID.String()),
		zap.Int64("refund", order.TotalPoints))

	return c.Status(fiber.StatusOK).JSON(orderResponse(order, false))
}

type FulfillRequest struct {
	Token string `json:"token" validate:"required"`
}

// FulfillOrderHandler is the terminal-side endpoint: it decodes the token
// presented at pickup or delivery, verifies its claims against the stored
// order, and completes the order.
func FulfillOrderHandler(c *fiber.Ctx) error {
	var request FulfillRequest
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

	claims, err := fulfillment.Verify(request.Token)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Invalid fulfillment token",
		})
	}

	order, err := storage.FulfillOrder(ctx, claims)
	if err != nil {
		return respondError(c, err)
	}

	notify.Send(notify.RecipientStudent, order.StudentID, notify.EventOrderStatusChanged, order.Status)

	logger.Log.Info("Order fulfilled",
		zap.String("orderID", order.ID.String()))

	return c.Status(fiber.StatusOK).JSON(orderResponse(order, false))
}

// PendingOrdersHandler backs the administrative review queue.
func PendingOrdersHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	orders, err := storage.GetOrdersByStatus(ctx, models.OrderPending)
	if err != nil {
		return respondError(c, err)
	}

	if len(orders) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	response := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		response = append(response, orderResponse(order, false))
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func ForceRemoveSponsorshipHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	sponsorshipID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid sponsorship id",
		})
	}

	s, err := storage.ForceRemove(ctx, sponsorshipID)
	if err != nil {
		return respondError(c, err)
	}

	notify.Send(notify.RecipientDonor, s.DonorID, notify.EventSponsorshipEnded, s.ID.String())
	notify.Send(notify.RecipientStudent, s.StudentID, notify.EventSponsorshipEnded, s.ID.String())

	logger.Log.Info("Sponsorship force-removed",
		zap.String("sponsorshipID", s.ID.String()))

	return c.Status(fiber.StatusOK).JSON(sponsorshipResponse(s))
}

func ApproveStudentHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	studentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid student id",
		})
	}

	if err := storage.ApproveStudent(ctx, studentID); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Student approved",
	})
}

func RejectStudentHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	studentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid student id",
		})
	}

	if err := storage.RejectStudent(ctx, studentID); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Student rejected",
	})
}
