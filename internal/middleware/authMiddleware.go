package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/edupoints/edupoints/internal/auth"
	"github.com/edupoints/edupoints/internal/models"
)

func AuthMiddleware(c *fiber.Ctx) error {
	tokenString := c.Cookies("jwt")
	if tokenString == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	userID, role, err := auth.ParseToken(tokenString)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	c.Locals("userID", userID)
	c.Locals("role", role)

	return c.Next()
}

// AdminOnly gates administrative routes; it must run after AuthMiddleware.
func AdminOnly(c *fiber.Ctx) error {
	if role, ok := c.Locals("role").(string); !ok || role != models.RoleAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Admin access required",
		})
	}
	return c.Next()
}
