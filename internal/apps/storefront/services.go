package storefront

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrVendorNotFound      = errors.New("vendor not found")
	ErrProductUnavailable  = errors.New("product is not available")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrCartItemNotFound    = errors.New("item is not in your cart")
	ErrEmptyCart           = errors.New("your cart is empty")
	ErrPaxiPointRequired   = errors.New("a PAXI point code is required for PAXI delivery")
	ErrAddressRequired     = errors.New("a shipping address is required for delivery")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotCancellable = errors.New("only pending orders can be cancelled")
)

// SettingsReader is the subset of the settings service the storefront uses.
type SettingsReader interface {
	Int(key string, fallback int64) int64
}

func visibleProducts(db *gorm.DB) *gorm.DB {
	return db.Joins("JOIN vendors ON vendors.id = products.vendor_id AND vendors.deleted_at IS NULL").
		Where("products.status = ? AND vendors.status = ?", ProductApproved, VendorApproved)
}

// --- Catalog ---

type CatalogService struct {
	db       *gorm.DB
	settings SettingsReader
}

func NewCatalogService(db *gorm.DB, settings SettingsReader) *CatalogService {
	return &CatalogService{db: db, settings: settings}
}

func (s *CatalogService) ListCategories() ([]Category, error) {
	var categories []Category
	err := s.db.Order("sort_order ASC, name ASC").Find(&categories).Error
	return categories, err
}

func (s *CatalogService) ListProducts(f ProductFilter) (*ProductListResponse, error) {
	f.Limit, f.Offset = tenant.ClampPage(f.Limit, f.Offset)

	q := s.db.Model(&Product{}).Scopes(visibleProducts)
	if f.Category != "" {
		q = q.Where("products.category_id IN (?)",
			s.db.Model(&Category{}).Select("id").Where("slug = ?", f.Category))
	}
	if f.Vendor != "" {
		q = q.Where("vendors.slug = ?", f.Vendor)
	}
	if term := strings.TrimSpace(f.Query); term != "" {
		pattern := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(products.name) LIKE ? OR LOWER(products.description) LIKE ?)", pattern, pattern)
	}
	if f.MinPrice > 0 {
		q = q.Where("products.price_cents >= ?", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		q = q.Where("products.price_cents <= ?", f.MaxPrice)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	var products []Product
	err := q.Preload("Vendor").Preload("Category").
		Order(sortClause(f.Sort)).
		Limit(f.Limit).Offset(f.Offset).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return &ProductListResponse{Products: products, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func sortClause(sort string) string {
	switch sort {
	case "price_asc":
		return "products.price_cents ASC, products.created_at DESC"
	case "price_desc":
		return "products.price_cents DESC, products.created_at DESC"
	case "name":
		return "products.name ASC"
	default:
		return "products.created_at DESC"
	}
}

func (s *CatalogService) GetProduct(slug string) (*Product, error) {
	var product Product
	err := s.db.Scopes(visibleProducts).Preload("Vendor").Preload("Category").
		Where("products.slug = ?", slug).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	return &product, err
}

type VendorStorefront struct {
	Vendor   Vendor    `json:"vendor"`
	Products []Product `json:"products"`
}

func (s *CatalogService) GetVendor(slug string) (*VendorStorefront, error) {
	var vendor Vendor
	err := s.db.Where("slug = ? AND status = ?", slug, VendorApproved).First(&vendor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVendorNotFound
	}
	if err != nil {
		return nil, err
	}

	var products []Product
	err = s.db.Where("vendor_id = ? AND status = ?", vendor.ID, ProductApproved).
		Order("created_at DESC").Limit(100).Find(&products).Error
	if err != nil {
		return nil, err
	}
	return &VendorStorefront{Vendor: vendor, Products: products}, nil
}

// shippingRates is a snapshot of the fee settings. Checkout reads it before
// opening its transaction so settings lookups never wait on a second
// connection.
type shippingRates struct {
	standard      int64
	express       int64
	paxi          int64
	freeThreshold int64
}

func (s *CatalogService) rates() shippingRates {
	return shippingRates{
		standard:      s.settings.Int(services.SettingShippingStandardCents, 6500),
		express:       s.settings.Int(services.SettingShippingExpressCents, 12000),
		paxi:          s.settings.Int(services.SettingShippingPaxiCents, 5995),
		freeThreshold: s.settings.Int(services.SettingFreeShippingCents, 0),
	}
}

func (r shippingRates) options(subtotalCents int64) []ShippingOption {
	standard := r.standard
	if r.freeThreshold > 0 && subtotalCents >= r.freeThreshold {
		standard = 0
	}
	return []ShippingOption{
		{Method: ShippingStandard, Label: "Standard courier", FeeCents: standard, EstimatedDays: "3-5"},
		{Method: ShippingExpress, Label: "Express courier", FeeCents: r.express, EstimatedDays: "1-2"},
		{Method: ShippingPaxi, Label: "PAXI parcel point", FeeCents: r.paxi, EstimatedDays: "7-9", RequiresPaxiPoint: true},
		{Method: ShippingCollect, Label: "Collect from vendor", FeeCents: 0, EstimatedDays: "1"},
	}
}

func (r shippingRates) fee(method string, subtotalCents int64) int64 {
	for _, opt := range r.options(subtotalCents) {
		if opt.Method == method {
			return opt.FeeCents
		}
	}
	return 0
}

// ShippingOptions lists the delivery methods with their fee for a cart subtotal.
func (s *CatalogService) ShippingOptions(subtotalCents int64) []ShippingOption {
	return s.rates().options(subtotalCents)
}

// --- Cart ---

type CartService struct {
	db *gorm.DB
}

func NewCartService(db *gorm.DB) *CartService {
	return &CartService{db: db}
}

func (s *CartService) Get(userID uuid.UUID) (*CartResponse, error) {
	var items []CartItem
	err := s.db.Scopes(tenant.ForOwner(userID)).Preload("Product").
		Order("created_at ASC").Find(&items).Error
	if err != nil {
		return nil, err
	}

	resp := &CartResponse{Items: items, Currency: Currency}
	for _, item := range items {
		resp.ItemCount += item.Quantity
		if item.Product != nil {
			resp.SubtotalCents += item.Product.PriceCents * int64(item.Quantity)
		}
	}
	return resp, nil
}

func (s *CartService) visibleProduct(productID uuid.UUID) (*Product, error) {
	var product Product
	err := s.db.Scopes(visibleProducts).Where("products.id = ?", productID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductUnavailable
	}
	return &product, err
}

func (s *CartService) AddItem(userID uuid.UUID, req AddCartItemRequest) (*CartItem, error) {
	product, err := s.visibleProduct(req.ProductID)
	if err != nil {
		return nil, err
	}

	var item CartItem
	err = s.db.Scopes(tenant.ForOwner(userID)).Where("product_id = ?", product.ID).First(&item).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if req.Quantity > product.Stock {
			return nil, ErrInsufficientStock
		}
		item = CartItem{ID: uuid.New(), UserID: userID, ProductID: product.ID, Quantity: req.Quantity}
		if err := s.db.Create(&item).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		qty := item.Quantity + req.Quantity
		if qty > 99 {
			qty = 99
		}
		if qty > product.Stock {
			return nil, ErrInsufficientStock
		}
		if err := s.db.Model(&item).Update("quantity", qty).Error; err != nil {
			return nil, err
		}
	}

	item.Product = product
	return &item, nil
}

func (s *CartService) UpdateItem(userID, productID uuid.UUID, quantity int) (*CartItem, error) {
	var item CartItem
	err := s.db.Scopes(tenant.ForOwner(userID)).Where("product_id = ?", productID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCartItemNotFound
	}
	if err != nil {
		return nil, err
	}

	product, err := s.visibleProduct(productID)
	if err != nil {
		return nil, err
	}
	if quantity > product.Stock {
		return nil, ErrInsufficientStock
	}

	if err := s.db.Model(&item).Update("quantity", quantity).Error; err != nil {
		return nil, err
	}
	item.Product = product
	return &item, nil
}

func (s *CartService) RemoveItem(userID, productID uuid.UUID) error {
	result := s.db.Scopes(tenant.ForOwner(userID)).Where("product_id = ?", productID).Delete(&CartItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (s *CartService) Clear(userID uuid.UUID) error {
	return s.db.Scopes(tenant.ForOwner(userID)).Delete(&CartItem{}).Error
}

// --- Orders ---

type OrderService struct {
	db      *gorm.DB
	catalog *CatalogService
	now     func() time.Time
}

func NewOrderService(db *gorm.DB, catalog *CatalogService) *OrderService {
	return &OrderService{db: db, catalog: catalog, now: time.Now}
}

func newOrderNumber(id uuid.UUID) string {
	return "LM" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10])
}

// Checkout turns the user's cart into an order. Stock is reserved with a
// guarded decrement so concurrent checkouts can never oversell.
func (s *OrderService) Checkout(userID uuid.UUID, req CheckoutRequest) (*Order, error) {
	if req.ShippingMethod == ShippingPaxi && strings.TrimSpace(req.PaxiPointCode) == "" {
		return nil, ErrPaxiPointRequired
	}
	if req.ShippingMethod != ShippingCollect && req.ShippingMethod != ShippingPaxi && req.ShippingAddress == nil {
		return nil, ErrAddressRequired
	}

	var address datatypes.JSON
	if req.ShippingAddress != nil {
		address = datatypes.JSON(mustJSON(req.ShippingAddress))
	}

	order := Order{
		ID:              uuid.New(),
		UserID:          userID,
		Status:          OrderPending,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   PaymentUnpaid,
		ShippingMethod:  req.ShippingMethod,
		ShippingAddress: address,
		Currency:        Currency,
		Notes:           strings.TrimSpace(req.Notes),
	}
	order.Number = newOrderNumber(order.ID)
	if req.ShippingMethod == ShippingPaxi {
		order.PaxiPointCode = strings.ToUpper(strings.TrimSpace(req.PaxiPointCode))
	}

	rates := s.catalog.rates()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var cart []CartItem
		if err := tx.Scopes(tenant.ForOwner(userID)).Order("created_at ASC").Find(&cart).Error; err != nil {
			return err
		}
		if len(cart) == 0 {
			return ErrEmptyCart
		}

		for _, line := range cart {
			var product Product
			err := tx.Scopes(visibleProducts).Where("products.id = ?", line.ProductID).First(&product).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductUnavailable
			}
			if err != nil {
				return err
			}

			stock, err := changeStock(tx, product.ID, -line.Quantity)
			if err != nil {
				if errors.Is(err, ErrInsufficientStock) {
					return fmt.Errorf("%w for %s", ErrInsufficientStock, product.Name)
				}
				return err
			}

			orderID := order.ID
			movement := StockMovement{
				ID:             uuid.New(),
				ProductID:      product.ID,
				VendorID:       product.VendorID,
				Delta:          -line.Quantity,
				Reason:         MovementSale,
				ResultingStock: stock,
				OrderID:        &orderID,
				CreatedByID:    &userID,
			}
			if err := tx.Create(&movement).Error; err != nil {
				return err
			}

			lineTotal := product.PriceCents * int64(line.Quantity)
			order.SubtotalCents += lineTotal
			order.Items = append(order.Items, OrderItem{
				ID:               uuid.New(),
				OrderID:          order.ID,
				ProductID:        product.ID,
				VendorID:         product.VendorID,
				ProductName:      product.Name,
				SKU:              product.SKU,
				UnitPriceCents:   product.PriceCents,
				Quantity:         line.Quantity,
				LineTotalCents:   lineTotal,
				FulfilmentStatus: FulfilmentPending,
			})
		}

		order.ShippingCents = rates.fee(order.ShippingMethod, order.SubtotalCents)
		order.TotalCents = order.SubtotalCents + order.ShippingCents

		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return tx.Scopes(tenant.ForOwner(userID)).Delete(&CartItem{}).Error
	})
	if err != nil {
		metrics.Orders.WithLabelValues("rejected").Inc()
		return nil, err
	}

	metrics.Orders.WithLabelValues("placed").Inc()
	metrics.OrderRevenue.Add(float64(order.TotalCents))
	return &order, nil
}

// changeStock applies delta to a product's stock unless the result would be
// negative, and returns the new stock level. Soft-deleted products are
// included so returns against delisted products still restock.
func changeStock(tx *gorm.DB, productID uuid.UUID, delta int) (int, error) {
	result := tx.Unscoped().Model(&Product{}).
		Where("id = ? AND stock + ? >= 0", productID, delta).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock + ?", delta),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrInsufficientStock
	}

	var stock int
	if err := tx.Unscoped().Model(&Product{}).Select("stock").Where("id = ?", productID).Scan(&stock).Error; err != nil {
		return 0, err
	}
	return stock, nil
}

func (s *OrderService) List(userID uuid.UUID, limit, offset int) (*OrderListResponse, error) {
	limit, offset = tenant.ClampPage(limit, offset)

	var total int64
	if err := s.db.Model(&Order{}).Scopes(tenant.ForOwner(userID)).Count(&total).Error; err != nil {
		return nil, err
	}

	var orders []Order
	err := s.db.Scopes(tenant.ForOwner(userID)).Preload("Items").
		Order("created_at DESC").Limit(limit).Offset(offset).Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return &OrderListResponse{Orders: orders, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *OrderService) Get(userID, orderID uuid.UUID) (*Order, error) {
	var order Order
	err := s.db.Scopes(tenant.ForOwner(userID)).Preload("Items").
		Where("id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	return &order, err
}

// Cancel cancels a pending order and returns its units to stock.
func (s *OrderService) Cancel(userID, orderID uuid.UUID) (*Order, error) {
	order, err := s.Get(userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != OrderPending {
		return nil, ErrOrderNotCancellable
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Order{}).Where("id = ? AND status = ?", order.ID, OrderPending).
			Update("status", OrderCancelled)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrOrderNotCancellable
		}
		return restockItems(tx, order, &userID, "order cancelled by customer")
	})
	if err != nil {
		return nil, err
	}

	metrics.Orders.WithLabelValues("cancelled").Inc()
	return s.Get(userID, orderID)
}

func restockItems(tx *gorm.DB, order *Order, actor *uuid.UUID, note string) error {
	orderID := order.ID
	for _, item := range order.Items {
		if item.FulfilmentStatus == FulfilmentCancelled {
			continue
		}
		stock, err := changeStock(tx, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}
		movement := StockMovement{
			ID:             uuid.New(),
			ProductID:      item.ProductID,
			VendorID:       item.VendorID,
			Delta:          item.Quantity,
			Reason:         MovementReturn,
			Note:           note,
			ResultingStock: stock,
			OrderID:        &orderID,
			CreatedByID:    actor,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return err
		}
		if err := tx.Model(&OrderItem{}).Where("id = ?", item.ID).
			Update("fulfilment_status", FulfilmentCancelled).Error; err != nil {
			return err
		}
	}
	return nil
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}
