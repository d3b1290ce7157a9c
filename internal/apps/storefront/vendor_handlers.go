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

type VendorHandler struct {
	vendors    *VendorService
	products   *ProductService
	inventory  *InventoryService
	fulfilment *FulfilmentService
	settings   SettingsReader
}

func NewVendorHandler(vendors *VendorService, products *ProductService, inventory *InventoryService, fulfilment *FulfilmentService, settings SettingsReader) *VendorHandler {
	return &VendorHandler{
		vendors:    vendors,
		products:   products,
		inventory:  inventory,
		fulfilment: fulfilment,
		settings:   settings,
	}
}

func (h *VendorHandler) Apply(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req ApplyVendorRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}
	if req.Email == "" {
		req.Email = tenant.GetEmail(c)
	}

	vendor, err := h.vendors.Apply(userID, req)
	if err != nil {
		return respondErr(c, err, "Failed to submit vendor application")
	}

	slog.Info("vendor application received", "vendor_id", vendor.ID, "user_id", userID)
	return c.Status(fiber.StatusCreated).JSON(vendor)
}

func (h *VendorHandler) Me(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	vendor, err := h.vendors.ForUser(userID)
	if err != nil {
		return respondErr(c, err, "Failed to fetch vendor")
	}
	return c.JSON(vendor)
}

func (h *VendorHandler) ListProducts(c *fiber.Ctx) error {
	vendorID, _ := tenant.GetVendorID(c)
	limit, offset := pageParams(c)

	resp, err := h.products.List(vendorID, c.Query("status"), limit, offset)
	if err != nil {
		return respondErr(c, err, "Failed to fetch products")
	}
	return c.JSON(resp)
}

func (h *VendorHandler) CreateProduct(c *fiber.Ctx) error {
	vendorID, _ := tenant.GetVendorID(c)
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req ProductRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}

	product, err := h.products.Create(vendorID, userID, req)
	if err != nil {
		return respondErr(c, err, "Failed to create product")
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

func (h *VendorHandler) GetProduct(c *fiber.Ctx) error {
	vendorID, _ := tenant.GetVendorID(c)
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid product ID"})
	}

	product, err := h.products.Get(vendorID, productID)
	if err != nil {
		return respondErr(c, err, "Failed to fetch product")
	}
	return c.JSON(product)
}

func (h *VendorHandler) UpdateProduct(c *fiber.Ctx) error {
	vendorID, _ := tenant.GetVendorID(c)
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid product ID"})
	}

	var req UpdateProductRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}

	product, err := h.products.Update(vendorID, productID, req)
	if err != nil {
		return respondErr(c, err, "Failed to update product")
	}
	return c.JSON(product)
}

func (h *VendorHandler) DeleteProduct(c *fiber.Ctx) error {
	vendorID, _ := tenant.GetVendorID(c)
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid product ID"})
	}

	if err := h.products.Delete(vendorID, productID); err != nil {
		return respondErr(c, err, "Failed to delete product")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *VendorHandler) Inventory(c *fiber.Ctx) error {
	vendorID, _ := tenant.GetVendorID(c)
	rows, err := h.inventory.Table(vendorID, c.QueryBool("low_stock", false))
	if err != nil {
		return respondErr(c, err, "Failed to fetch inventory")
	}
	return c.JSON(fiber.Map{"items": rows, "total": len(rows)})
}

func (h *VendorHandler) AdjustStock(c *fiber.Ctx) error {
	vendorID, _ := tenant.GetVendorID(c)
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	productID, err := uuid.Parse(c.Params("product_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid product ID"})
	}

	var req AdjustStockRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}

	movement, err := h.inventory.Adjust(vendorID, productID, userID, req)
	if err != nil {
		return respondErr(c, err, "Failed to adjust stock")
	}
	return c.Status(fiber.StatusCreated).JSON(movement)
}

func (h *VendorHandler) Movements(c *fiber.Ctx) error {
	vendorID, _ := tenant.GetVendorID(c)
	productID, err := uuid.Parse(c.Params("product_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid product ID"})
	}
	limit, offset := pageParams(c)

	movements, total, err := h.inventory.Movements(vendorID, productID, limit, offset)
	if err != nil {
		return respondErr(c, err, "Failed to fetch stock movements")
	}
	return c.JSON(dto.ListResponse[StockMovement]{Items: movements, Total: total, Limit: limit, Offset: offset})
}

func (h *VendorHandler) Orders(c *fiber.Ctx) error {
	vendorID, _ := tenant.GetVendorID(c)
	limit, offset := pageParams(c)

	lines, total, err := h.fulfilment.Lines(vendorID, c.Query("status"), limit, offset)
	if err != nil {
		return respondErr(c, err, "Failed to fetch orders")
	}
	return c.JSON(dto.ListResponse[VendorOrderLine]{Items: lines, Total: total, Limit: limit, Offset: offset})
}

func (h *VendorHandler) Fulfil(c *fiber.Ctx) error {
	vendorID, _ := tenant.GetVendorID(c)
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	orderID, err := uuid.Parse(c.Params("order_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid order ID"})
	}
	itemID, err := uuid.Parse(c.Params("item_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid item ID"})
	}

	var req FulfilmentRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}

	item, err := h.fulfilment.Fulfil(vendorID, orderID, itemID, userID, req)
	if err != nil {
		return respondErr(c, err, "Failed to update order item")
	}
	return c.JSON(item)
}

func (h *VendorHandler) Stats(c *fiber.Ctx) error {
	vendorID, _ := tenant.GetVendorID(c)
	threshold := int(h.settings.Int(services.SettingLowStockThreshold, 5))

	stats, err := h.fulfilment.Stats(vendorID, threshold)
	if err != nil {
		return respondErr(c, err, "Failed to fetch stats")
	}
	return c.JSON(stats)
}
