package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/gofiber/fiber/v2"
)

type SettingsHandler struct {
	settings *services.SettingsService
}

func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GetSettings returns all marketplace settings as a typed map (public).
func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	all, err := h.settings.All()
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, "Failed to fetch settings")
	}
	return c.JSON(all)
}

// SetSetting creates or updates a setting (admin only).
func (h *SettingsHandler) SetSetting(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return respondError(c, fiber.StatusBadRequest, "Key parameter is required")
	}

	var req dto.SetSettingRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}

	row, err := h.settings.Set(key, req.Value, req.Type)
	if err != nil {
		if errors.Is(err, services.ErrInvalidSetting) {
			return respondError(c, fiber.StatusBadRequest, err.Error())
		}
		return err
	}

	return c.JSON(fiber.Map{
		"error":   false,
		"message": "Setting updated successfully",
		"setting": row,
	})
}

// DeleteSetting removes a setting (admin only).
func (h *SettingsHandler) DeleteSetting(c *fiber.Ctx) error {
	if err := h.settings.Delete(c.Params("key")); err != nil {
		if errors.Is(err, services.ErrSettingNotFound) {
			return respondError(c, fiber.StatusNotFound, "Setting not found")
		}
		return err
	}
	return c.JSON(fiber.Map{"error": false, "message": "Setting deleted successfully"})
}
