package storefront

import (
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StorefrontPlugin struct {
	settings SettingsReader
	checker  ListingChecker
}

func New(settings SettingsReader, checker ListingChecker) *StorefrontPlugin {
	return &StorefrontPlugin{settings: settings, checker: checker}
}

func (p *StorefrontPlugin) ID() string { return "storefront" }

func (p *StorefrontPlugin) Models() []interface{} {
	return []interface{}{
		&Category{},
		&Vendor{},
		&Product{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&StockMovement{},
	}
}

func (p *StorefrontPlugin) RegisterPublicRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	handler := NewCatalogHandler(NewCatalogService(db, p.settings))

	router.Get("/categories", handler.Categories)
	router.Get("/products", handler.Products)
	router.Get("/products/:slug", handler.Product)
	router.Get("/vendors/:slug", handler.Vendor)
	router.Get("/shipping/options", handler.ShippingOptions)
}

func (p *StorefrontPlugin) RegisterRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	catalog := NewCatalogService(db, p.settings)
	cart := NewCartHandler(NewCartService(db))
	orders := NewOrderHandler(NewOrderService(db, catalog))
	vendor := NewVendorHandler(
		NewVendorService(db, p.checker),
		NewProductService(db, p.checker),
		NewInventoryService(db, p.settings),
		NewFulfilmentService(db),
		p.settings,
	)

	// Cart and checkout
	router.Get("/cart", cart.Get)
	router.Post("/cart/items", cart.AddItem)
	router.Put("/cart/items/:product_id", cart.UpdateItem)
	router.Delete("/cart/items/:product_id", cart.RemoveItem)
	router.Delete("/cart", cart.Clear)
	router.Post("/checkout", orders.Checkout)

	// Customer orders
	router.Get("/orders", orders.List)
	router.Get("/orders/:id", orders.Get)
	router.Post("/orders/:id/cancel", orders.Cancel)

	// Vendor onboarding
	router.Post("/vendor/apply", vendor.Apply)
	router.Get("/vendor/me", vendor.Me)

	// Vendor dashboard (approved vendors only)
	vr := VendorRequired(db)
	router.Get("/vendor/products", vr, vendor.ListProducts)
	router.Post("/vendor/products", vr, vendor.CreateProduct)
	router.Get("/vendor/products/:id", vr, vendor.GetProduct)
	router.Put("/vendor/products/:id", vr, vendor.UpdateProduct)
	router.Delete("/vendor/products/:id", vr, vendor.DeleteProduct)
	router.Get("/vendor/inventory", vr, vendor.Inventory)
	router.Post("/vendor/inventory/:product_id/adjust", vr, vendor.AdjustStock)
	router.Get("/vendor/inventory/:product_id/movements", vr, vendor.Movements)
	router.Get("/vendor/orders", vr, vendor.Orders)
	router.Put("/vendor/orders/:order_id/items/:item_id", vr, vendor.Fulfil)
	router.Get("/vendor/stats", vr, vendor.Stats)
}

func (p *StorefrontPlugin) RegisterStaffRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	handler := NewAdminHandler(NewModerationQueue(db), p.settings)

	router.Get("/vendors", handler.Vendors)
	router.Put("/vendors/:id/status", handler.SetVendorStatus)
	router.Get("/products", handler.Products)
	router.Put("/products/:id/status", handler.SetProductStatus)
	router.Post("/categories", handler.CreateCategory)
}

func (p *StorefrontPlugin) RegisterAdminRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	handler := NewAdminHandler(NewModerationQueue(db), p.settings)

	router.Get("/stats", handler.Stats)
	router.Put("/orders/:id/status", handler.SetOrderStatus)
}

// DeleteUserData clears the user's cart. Orders are kept.
func (p *StorefrontPlugin) DeleteUserData(tx *gorm.DB, userID uuid.UUID) error {
	return tx.Where("user_id = ?", userID).Delete(&CartItem{}).Error
}
