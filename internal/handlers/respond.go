package handlers

import (
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/gofiber/fiber/v2"
)

func respondError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: message})
}
