package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edupoints/edupoints/internal/auth"
	"github.com/edupoints/edupoints/internal/logger"
	"github.com/edupoints/edupoints/internal/models"
	"github.com/edupoints/edupoints/internal/storage"
)

type RegisterRequest struct {
	Login     string                  `json:"login" validate:"required,min=3"`
	Password  string                  `json:"password" validate:"required,min=8"`
	Role      string                  `json:"role" validate:"required,oneof=donor student"`
	Name      string                  `json:"name" validate:"required"`
	Education models.EducationDetails `json:"education"`
}

type LoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func setAuthCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     "jwt",
		Value:    token,
		Expires:  time.Now().Add(auth.TokenExp),
		HTTPOnly: true,
	})
	c.Set("Authorization", "Bearer "+token)
}

// RegisterHandler provisions a donor or student account. Admin accounts are
// provisioned out of band.
func RegisterHandler(c *fiber.Ctx) error {
	var request RegisterRequest
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

	existingUser, err := storage.GetUserByLogin(ctx, request.Login)
	if err != nil {
		logger.Log.Error("Error while querying user", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
	if existingUser.ID != uuid.Nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "User already exists",
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Error("Error hashing password", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}

	userID := uuid.New()
	err = storage.CreateUser(ctx, userID, request.Login, string(hashedPassword), request.Role, request.Name, request.Education)
	if err != nil {
		logger.Log.Error("Error creating user", zap.Error(err))
		return respondError(c, err)
	}

	token, err := auth.GenerateToken(userID, request.Role)
	if err != nil {
		logger.Log.Error("Error generating token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}

	setAuthCookie(c, token)

	logger.Log.Info("User registered",
		zap.String("userID", userID.String()), zap.String("role", request.Role))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "User registered successfully",
	})
}

func LoginHandler(c *fiber.Ctx) error {
	var request LoginRequest
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	existingUser, err := storage.GetUserByLogin(ctx, request.Login)
	if err != nil {
		logger.Log.Error("Error while querying user", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
	if existingUser.ID == uuid.Nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Wrong login or password",
		})
	}

	err = bcrypt.CompareHashAndPassword([]byte(existingUser.PasswordHash), []byte(request.Password))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Wrong login or password",
		})
	}

	token, err := auth.GenerateToken(existingUser.ID, existingUser.Role)
	if err != nil {
		logger.Log.Error("Error generating token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}

	setAuthCookie(c, token)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "User authorized successfully",
	})
}
