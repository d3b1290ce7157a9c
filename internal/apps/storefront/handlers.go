package storefront

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// errorStatus maps storefront sentinel errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrVendorNotFound),
		errors.Is(err, ErrCartItemNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrOrderItemNotFound),
		errors.Is(err, ErrCategoryNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrProductUnavailable),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrNegativeStock),
		errors.Is(err, ErrAlreadyVendor),
		errors.Is(err, ErrOrderNotCancellable),
		errors.Is(err, ErrInvalidFulfilment):
		return fiber.StatusConflict
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrPaxiPointRequired),
		errors.Is(err, ErrAddressRequired),
		errors.Is(err, ErrListingRejected),
		errors.Is(err, ErrDamageMustDecrease),
		errors.Is(err, ErrRestockMustIncrease),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, validation.ErrBadBody):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func respondErr(c *fiber.Ctx, err error, fallback string) error {
	status := errorStatus(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		slog.Error("storefront request failed", "component", "storefront", "path", c.Path(), "error", err)
		msg = fallback
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: msg})
}

func pageParams(c *fiber.Ctx) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	return tenant.ClampPage(limit, offset)
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: "Unauthorized",
	})
}

// --- Catalog ---

type CatalogHandler struct {
	service *CatalogService
}

func NewCatalogHandler(service *CatalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

func (h *CatalogHandler) Categories(c *fiber.Ctx) error {
	categories, err := h.service.ListCategories()
	if err != nil {
		return respondErr(c, err, "Failed to fetch categories")
	}
	return c.JSON(fiber.Map{"categories": categories})
}

func (h *CatalogHandler) Products(c *fiber.Ctx) error {
	limit, offset := pageParams(c)
	minPrice, _ := strconv.ParseInt(c.Query("min_price"), 10, 64)
	maxPrice, _ := strconv.ParseInt(c.Query("max_price"), 10, 64)

	resp, err := h.service.ListProducts(ProductFilter{
		Category: c.Query("category"),
		Query:    c.Query("q"),
		Vendor:   c.Query("vendor"),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		Sort:     c.Query("sort"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return respondErr(c, err, "Failed to fetch products")
	}
	return c.JSON(resp)
}

func (h *CatalogHandler) Product(c *fiber.Ctx) error {
	product, err := h.service.GetProduct(c.Params("slug"))
	if err != nil {
		return respondErr(c, err, "Failed to fetch product")
	}
	return c.JSON(product)
}

func (h *CatalogHandler) Vendor(c *fiber.Ctx) error {
	store, err := h.service.GetVendor(c.Params("slug"))
	if err != nil {
		return respondErr(c, err, "Failed to fetch vendor")
	}
	return c.JSON(store)
}

func (h *CatalogHandler) ShippingOptions(c *fiber.Ctx) error {
	subtotal, _ := strconv.ParseInt(c.Query("subtotal", "0"), 10, 64)
	return c.JSON(fiber.Map{
		"subtotal_cents": subtotal,
		"currency":       Currency,
		"options":        h.service.ShippingOptions(subtotal),
	})
}

// --- Cart ---

type CartHandler struct {
	service *CartService
}

func NewCartHandler(service *CartService) *CartHandler {
	return &CartHandler{service: service}
}

func (h *CartHandler) Get(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	cart, err := h.service.Get(userID)
	if err != nil {
		return respondErr(c, err, "Failed to fetch cart")
	}
	return c.JSON(cart)
}

func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req AddCartItemRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}

	item, err := h.service.AddItem(userID, req)
	if err != nil {
		return respondErr(c, err, "Failed to add item")
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	productID, err := uuid.Parse(c.Params("product_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid product ID"})
	}

	var req UpdateCartItemRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}

	item, err := h.service.UpdateItem(userID, productID, req.Quantity)
	if err != nil {
		return respondErr(c, err, "Failed to update item")
	}
	return c.JSON(item)
}

func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	productID, err := uuid.Parse(c.Params("product_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid product ID"})
	}

	if err := h.service.RemoveItem(userID, productID); err != nil {
		return respondErr(c, err, "Failed to remove item")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CartHandler) Clear(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	if err := h.service.Clear(userID); err != nil {
		return respondErr(c, err, "Failed to clear cart")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- Orders ---

type OrderHandler struct {
	service *OrderService
}

func NewOrderHandler(service *OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

func (h *OrderHandler) Checkout(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req CheckoutRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}
	if req.ShippingAddress != nil {
		if err := validation.Struct(req.ShippingAddress); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
		}
	}

	order, err := h.service.Checkout(userID, req)
	if err != nil {
		return respondErr(c, err, "Failed to place order")
	}

	slog.Info("order placed", "order_id", order.ID, "number", order.Number, "total_cents", order.TotalCents)
	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	limit, offset := pageParams(c)
	resp, err := h.service.List(userID, limit, offset)
	if err != nil {
		return respondErr(c, err, "Failed to fetch orders")
	}
	return c.JSON(resp)
}

func (h *OrderHandler) Get(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid order ID"})
	}

	order, err := h.service.Get(userID, orderID)
	if err != nil {
		return respondErr(c, err, "Failed to fetch order")
	}
	return c.JSON(order)
}

func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid order ID"})
	}

	order, err := h.service.Cancel(userID, orderID)
	if err != nil {
		return respondErr(c, err, "Failed to cancel order")
	}
	return c.JSON(order)
}
