package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/edupoints/edupoints/internal/storage"
)

// GetOrdersHandler returns the acting student's purchase orders, newest
// first. Tokens are only handed out at checkout time.
func GetOrdersHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	studentID, ok := principalID(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	orders, err := storage.GetStudentOrders(ctx, studentID)
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

// GetCatalogHandler lists the active catalog a student can order from.
func GetCatalogHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	items, err := storage.ListCatalogItems(ctx, true)
	if err != nil {
		return respondError(c, err)
	}

	if len(items) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.Status(fiber.StatusOK).JSON(items)
}
