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

type CheckoutRequest struct {
	Items          []storage.CartLine `json:"items" validate:"required,min=1,dive"`
	DeliveryMethod string             `json:"delivery_method" validate:"required,oneof=pickup delivery"`
	Address        string             `json:"address"`
}

type OrderResponse struct {
	ID               uuid.UUID  `json:"id"`
	TotalPoints      int64      `json:"total_points"`
	Status           string     `json:"status"`
	DeliveryMethod   string     `json:"delivery_method"`
	DeliveryAddress  string     `json:"delivery_address,omitempty"`
	FulfillmentToken string     `json:"fulfillment_token,omitempty"`
	RequestedAt      time.Time  `json:"requested_at"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	FulfilledAt      *time.Time `json:"fulfilled_at,omitempty"`
}

// CheckoutHandler reserves points for the cart and creates the order. Prices
// come from the catalog inside the transaction; the client never supplies
// them.
func CheckoutHandler(c *fiber.Ctx) error {
	var request CheckoutRequest
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
	if request.DeliveryMethod == models.DeliveryDelivery && request.Address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Delivery requires an address",
		})
	}

	order, err := storage.Checkout(ctx, studentID, request.Items, request.DeliveryMethod, request.Address)
	if err != nil {
		return respondError(c, err)
	}

	notify.Send(notify.RecipientAdmin, studentID, notify.EventOrderCreated, order.ID.String())

	logger.Log.Info("Order created",
		zap.String("orderID", order.ID.String()),
		zap.String("studentID", studentID.String()),
		zap.Int64("totalPoints", order.TotalPoints))

	return c.Status(fiber.StatusCreated).JSON(orderResponse(order, true))
}

// CancelOrderHandler lets the student cancel a still-pending order; the
// reserved points come back through the refund path.
func CancelOrderHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	studentID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid order id",
		})
	}

	order, err := storage.CancelOrder(ctx, orderID, studentID)
	if err != nil {
		return respondError(c, err)
	}

	notify.Send(notify.RecipientStudent, studentID, notify.EventOrderStatusChanged, order.Status)

	return c.Status(fiber.StatusOK).JSON(orderResponse(order, false))
}

func orderResponse(order models.PurchaseOrder, withToken bool) OrderResponse {
	response := OrderResponse{
		ID:              order.ID,
		TotalPoints:     order.TotalPoints,
		Status:          order.Status,
		DeliveryMethod:  order.DeliveryMethod,
		DeliveryAddress: order.DeliveryAddress,
		RequestedAt:     order.RequestedAt,
		ApprovedAt:      order.ApprovedAt,
		FulfilledAt:     order.FulfilledAt,
	}
	if withToken {
		response.FulfillmentToken = order.FulfillmentToken
	}
	return response
}
