package handlers

import (
	"errors"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ModerationHandler struct {
	moderationService *services.ModerationService
}

func NewModerationHandler(moderationService *services.ModerationService) *ModerationHandler {
	return &ModerationHandler{moderationService: moderationService}
}

func (h *ModerationHandler) CreateReport(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return respondError(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var req dto.CreateReportRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.moderationService.CreateReport(userID, &req)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateReport) {
			return respondError(c, fiber.StatusConflict, err.Error())
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(report)
}

func (h *ModerationHandler) ListReports(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	limit, offset = tenant.ClampPage(limit, offset)

	reports, total, err := h.moderationService.ListReports(c.Query("status"), limit, offset)
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, "Failed to fetch reports")
	}

	return c.JSON(fiber.Map{
		"reports": reports,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *ModerationHandler) ActionReport(c *fiber.Ctx) error {
	reportID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid report ID")
	}

	var req dto.ActionReportRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.moderationService.ActionReport(reportID, &req); err != nil {
		if errors.Is(err, services.ErrReportNotFound) {
			return respondError(c, fiber.StatusNotFound, err.Error())
		}
		return err
	}

	return c.JSON(fiber.Map{"message": "Report updated successfully"})
}
