package storefront

import (
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AdminHandler struct {
	queue    *ModerationQueue
	settings SettingsReader
}

func NewAdminHandler(queue *ModerationQueue, settings SettingsReader) *AdminHandler {
	return &AdminHandler{queue: queue, settings: settings}
}

func (h *AdminHandler) Vendors(c *fiber.Ctx) error {
	limit, offset := pageParams(c)
	vendors, total, err := h.queue.Vendors(c.Query("status", VendorPending), limit, offset)
	if err != nil {
		return respondErr(c, err, "Failed to fetch vendors")
	}
	return c.JSON(dto.ListResponse[Vendor]{Items: vendors, Total: total, Limit: limit, Offset: offset})
}

func (h *AdminHandler) SetVendorStatus(c *fiber.Ctx) error {
	vendorID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid vendor ID"})
	}

	var req StatusRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}

	vendor, err := h.queue.SetVendorStatus(vendorID, req)
	if err != nil {
		return respondErr(c, err, "Failed to update vendor")
	}

	slog.Info("vendor status changed", "vendor_id", vendorID, "status", req.Status)
	return c.JSON(vendor)
}

func (h *AdminHandler) Products(c *fiber.Ctx) error {
	limit, offset := pageParams(c)
	products, total, err := h.queue.Products(c.Query("status", ProductPending), limit, offset)
	if err != nil {
		return respondErr(c, err, "Failed to fetch products")
	}
	return c.JSON(dto.ListResponse[Product]{Items: products, Total: total, Limit: limit, Offset: offset})
}

func (h *AdminHandler) SetProductStatus(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid product ID"})
	}

	var req StatusRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}

	product, err := h.queue.SetProductStatus(productID, req)
	if err != nil {
		return respondErr(c, err, "Failed to update product")
	}
	return c.JSON(product)
}

func (h *AdminHandler) CreateCategory(c *fiber.Ctx) error {
	var req CategoryRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}

	category, err := h.queue.CreateCategory(req)
	if err != nil {
		return respondErr(c, err, "Failed to create category")
	}
	return c.Status(fiber.StatusCreated).JSON(category)
}

func (h *AdminHandler) SetOrderStatus(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid order ID"})
	}

	var req StatusRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}

	// Admin token callers have no JWT subject.
	var actor *uuid.UUID
	if userID, err := tenant.GetUserID(c); err == nil {
		actor = &userID
	}

	order, err := h.queue.SetOrderStatus(orderID, actor, req)
	if err != nil {
		return respondErr(c, err, "Failed to update order")
	}
	return c.JSON(order)
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	threshold := int(h.settings.Int(services.SettingLowStockThreshold, 5))
	stats, err := h.queue.Stats(threshold)
	if err != nil {
		return respondErr(c, err, "Failed to fetch stats")
	}
	return c.JSON(stats)
}
