package storefront

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrAlreadyVendor       = errors.New("you already have a vendor account")
	ErrVendorNotApproved   = errors.New("vendor account is not approved")
	ErrListingRejected     = errors.New("listing rejected")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrNegativeStock       = errors.New("stock cannot go below zero")
	ErrOrderItemNotFound   = errors.New("order item not found")
	ErrInvalidFulfilment   = errors.New("invalid fulfilment status change")
	ErrDamageMustDecrease  = errors.New("damage must decrease stock")
	ErrRestockMustIncrease = errors.New("restock and return must increase stock")
	ErrInvalidStatus       = errors.New("invalid status")
)

// ListingChecker screens vendor-supplied text before it is listed.
type ListingChecker interface {
	CheckListing(text string) (bool, string)
	GetRejectionMessage(reason string) string
}

func checkListing(checker ListingChecker, parts ...string) error {
	if checker == nil {
		return nil
	}
	ok, reason := checker.CheckListing(strings.Join(parts, "\n"))
	if !ok {
		return fmt.Errorf("%w: %s", ErrListingRejected, checker.GetRejectionMessage(reason))
	}
	return nil
}

// uniqueSlug returns base, or base with a short random suffix when taken.
func uniqueSlug(db *gorm.DB, model interface{}, base string) (string, error) {
	if base == "" {
		base = "item"
	}
	slug := base
	for i := 0; i < 5; i++ {
		var count int64
		if err := db.Model(model).Unscoped().Where("slug = ?", slug).Count(&count).Error; err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if count == 0 {
			return slug, nil
		}
		slug = base + "-" + uuid.NewString()[:6]
	}
	return slug, nil
}

// --- Vendor accounts ---

type VendorService struct {
	db      *gorm.DB
	checker ListingChecker
}

func NewVendorService(db *gorm.DB, checker ListingChecker) *VendorService {
	return &VendorService{db: db, checker: checker}
}

func (s *VendorService) Apply(userID uuid.UUID, req ApplyVendorRequest) (*Vendor, error) {
	var count int64
	if err := s.db.Model(&Vendor{}).Unscoped().Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrAlreadyVendor
	}

	if err := checkListing(s.checker, req.Name, req.Description); err != nil {
		return nil, err
	}

	slug, err := uniqueSlug(s.db, &Vendor{}, validation.Slugify(req.Name, 60))
	if err != nil {
		return nil, err
	}
	vendor := Vendor{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        strings.TrimSpace(req.Name),
		Slug:        slug,
		Description: req.Description,
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:       req.Phone,
		LogoURL:     req.LogoURL,
		Status:      VendorPending,
	}
	if err := s.db.Create(&vendor).Error; err != nil {
		return nil, fmt.Errorf("failed to create vendor: %w", err)
	}
	return &vendor, nil
}

func (s *VendorService) ForUser(userID uuid.UUID) (*Vendor, error) {
	var vendor Vendor
	err := s.db.Scopes(tenant.ForOwner(userID)).First(&vendor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVendorNotFound
	}
	return &vendor, err
}

// --- Vendor products ---

type ProductService struct {
	db      *gorm.DB
	checker ListingChecker
}

func NewProductService(db *gorm.DB, checker ListingChecker) *ProductService {
	return &ProductService{db: db, checker: checker}
}

func (s *ProductService) List(vendorID uuid.UUID, status string, limit, offset int) (*ProductListResponse, error) {
	limit, offset = tenant.ClampPage(limit, offset)

	q := s.db.Model(&Product{}).Scopes(tenant.ForVendor(vendorID))
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var products []Product
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&products).Error; err != nil {
		return nil, err
	}
	return &ProductListResponse{Products: products, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *ProductService) Get(vendorID, productID uuid.UUID) (*Product, error) {
	var product Product
	err := s.db.Scopes(tenant.ForVendor(vendorID)).Where("id = ?", productID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	return &product, err
}

func (s *ProductService) checkCategory(categoryID *uuid.UUID) error {
	if categoryID == nil {
		return nil
	}
	var count int64
	if err := s.db.Model(&Category{}).Where("id = ?", *categoryID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// Create lists a new product in pending state. Any initial stock is recorded
// as a restock movement.
func (s *ProductService) Create(vendorID, actorID uuid.UUID, req ProductRequest) (*Product, error) {
	if err := checkListing(s.checker, req.Name, req.Description); err != nil {
		return nil, err
	}
	if err := s.checkCategory(req.CategoryID); err != nil {
		return nil, err
	}

	slug, err := uniqueSlug(s.db, &Product{}, validation.Slugify(req.Name, 80))
	if err != nil {
		return nil, err
	}
	product := Product{
		ID:                uuid.New(),
		VendorID:          vendorID,
		CategoryID:        req.CategoryID,
		Name:              strings.TrimSpace(req.Name),
		Slug:              slug,
		Description:       req.Description,
		SKU:               req.SKU,
		PriceCents:        req.PriceCents,
		CompareAtCents:    req.CompareAtCents,
		Currency:          Currency,
		Stock:             req.InitialStock,
		LowStockThreshold: req.LowStockThreshold,
		Images:            req.Images,
		Status:            ProductPending,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&product).Error; err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		if product.Stock == 0 {
			return nil
		}
		return tx.Create(&StockMovement{
			ID:             uuid.New(),
			ProductID:      product.ID,
			VendorID:       vendorID,
			Delta:          product.Stock,
			Reason:         MovementRestock,
			Note:           "initial stock",
			ResultingStock: product.Stock,
			CreatedByID:    &actorID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Update edits a product. Changing customer-facing text sends an approved
// product back to moderation.
func (s *ProductService) Update(vendorID, productID uuid.UUID, req UpdateProductRequest) (*Product, error) {
	product, err := s.Get(vendorID, productID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	textChanged := false
	name, description := product.Name, product.Description
	if req.Name != nil && strings.TrimSpace(*req.Name) != product.Name {
		name = strings.TrimSpace(*req.Name)
		updates["name"] = name
		textChanged = true
	}
	if req.Description != nil && *req.Description != product.Description {
		description = *req.Description
		updates["description"] = description
		textChanged = true
	}
	if textChanged {
		if err := checkListing(s.checker, name, description); err != nil {
			return nil, err
		}
	}
	if req.CategoryID != nil {
		if err := s.checkCategory(req.CategoryID); err != nil {
			return nil, err
		}
		updates["category_id"] = *req.CategoryID
	}
	if req.SKU != nil {
		updates["sku"] = *req.SKU
	}
	if req.PriceCents != nil {
		updates["price_cents"] = *req.PriceCents
	}
	if req.CompareAtCents != nil {
		updates["compare_at_cents"] = *req.CompareAtCents
	}
	if req.LowStockThreshold != nil {
		updates["low_stock_threshold"] = *req.LowStockThreshold
	}
	if req.Images != nil {
		product.Images = req.Images
		updates["images"] = product.Images
	}

	switch {
	case req.Archived != nil && *req.Archived:
		updates["status"] = ProductArchived
	case req.Archived != nil && !*req.Archived && product.Status == ProductArchived:
		updates["status"] = ProductPending
	case textChanged && product.Status == ProductApproved:
		updates["status"] = ProductPending
	}

	if len(updates) > 0 {
		if err := s.db.Model(product).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update product: %w", err)
		}
	}
	return s.Get(vendorID, productID)
}

// Delete soft-deletes a product and drops it from every cart.
func (s *ProductService) Delete(vendorID, productID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Scopes(tenant.ForVendor(vendorID)).Where("id = ?", productID).Delete(&Product{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrProductNotFound
		}
		return tx.Where("product_id = ?", productID).Delete(&CartItem{}).Error
	})
}

// --- Inventory ---

type InventoryService struct {
	db       *gorm.DB
	settings SettingsReader
}

func NewInventoryService(db *gorm.DB, settings SettingsReader) *InventoryService {
	return &InventoryService{db: db, settings: settings}
}

func (s *InventoryService) threshold(p *Product) int {
	if p.LowStockThreshold > 0 {
		return p.LowStockThreshold
	}
	return int(s.settings.Int(services.SettingLowStockThreshold, 5))
}

// Table returns the vendor's inventory, optionally only low-stock rows.
func (s *InventoryService) Table(vendorID uuid.UUID, lowOnly bool) ([]InventoryRow, error) {
	var products []Product
	err := s.db.Scopes(tenant.ForVendor(vendorID)).
		Where("status <> ?", ProductArchived).
		Order("stock ASC, name ASC").Find(&products).Error
	if err != nil {
		return nil, err
	}

	rows := make([]InventoryRow, 0, len(products))
	for i := range products {
		p := &products[i]
		threshold := s.threshold(p)
		low := p.Stock <= threshold
		if lowOnly && !low {
			continue
		}
		rows = append(rows, InventoryRow{
			ProductID:         p.ID,
			Name:              p.Name,
			SKU:               p.SKU,
			Status:            p.Status,
			Stock:             p.Stock,
			LowStockThreshold: threshold,
			LowStock:          low,
			PriceCents:        p.PriceCents,
			UpdatedAt:         p.UpdatedAt,
		})
	}
	return rows, nil
}

// Adjust applies a manual stock change and records it in the movement history.
func (s *InventoryService) Adjust(vendorID, productID, actorID uuid.UUID, req AdjustStockRequest) (*StockMovement, error) {
	switch {
	case req.Reason == MovementDamage && req.Delta > 0:
		return nil, ErrDamageMustDecrease
	case (req.Reason == MovementRestock || req.Reason == MovementReturn) && req.Delta < 0:
		return nil, ErrRestockMustIncrease
	}

	var movement StockMovement
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Product{}).Scopes(tenant.ForVendor(vendorID)).Where("id = ?", productID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrProductNotFound
		}

		stock, err := changeStock(tx, productID, req.Delta)
		if errors.Is(err, ErrInsufficientStock) {
			return ErrNegativeStock
		}
		if err != nil {
			return err
		}

		movement = StockMovement{
			ID:             uuid.New(),
			ProductID:      productID,
			VendorID:       vendorID,
			Delta:          req.Delta,
			Reason:         req.Reason,
			Note:           strings.TrimSpace(req.Note),
			ResultingStock: stock,
			CreatedByID:    &actorID,
		}
		return tx.Create(&movement).Error
	})
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

func (s *InventoryService) Movements(vendorID, productID uuid.UUID, limit, offset int) ([]StockMovement, int64, error) {
	limit, offset = tenant.ClampPage(limit, offset)

	var count int64
	if err := s.db.Model(&Product{}).Unscoped().Scopes(tenant.ForVendor(vendorID)).Where("id = ?", productID).Count(&count).Error; err != nil {
		return nil, 0, err
	}
	if count == 0 {
		return nil, 0, ErrProductNotFound
	}

	q := s.db.Model(&StockMovement{}).Where("product_id = ?", productID)
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var movements []StockMovement
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&movements).Error
	return movements, total, err
}

// --- Vendor orders ---

type FulfilmentService struct {
	db *gorm.DB
}

func NewFulfilmentService(db *gorm.DB) *FulfilmentService {
	return &FulfilmentService{db: db}
}

func (s *FulfilmentService) Lines(vendorID uuid.UUID, status string, limit, offset int) ([]VendorOrderLine, int64, error) {
	limit, offset = tenant.ClampPage(limit, offset)

	q := s.db.Table("order_items").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("order_items.vendor_id = ?", vendorID)
	if status != "" {
		q = q.Where("order_items.fulfilment_status = ?", status)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var lines []VendorOrderLine
	err := q.Select("order_items.*, orders.number AS order_number, orders.status AS order_status, " +
		"orders.shipping_method, orders.paxi_point_code, orders.shipping_address AS ship_to, orders.created_at AS ordered_at").
		Order("orders.created_at DESC").Limit(limit).Offset(offset).
		Scan(&lines).Error
	return lines, total, err
}

var fulfilmentTransitions = map[string][]string{
	FulfilmentPending: {FulfilmentShipped, FulfilmentCancelled},
	FulfilmentShipped: {FulfilmentDelivered},
}

// Fulfil moves one of the vendor's order lines forward and rolls the order
// status up from its lines. Cancelling a line returns its units to stock.
func (s *FulfilmentService) Fulfil(vendorID, orderID, itemID, actorID uuid.UUID, req FulfilmentRequest) (*OrderItem, error) {
	var item OrderItem
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND order_id = ? AND vendor_id = ?", itemID, orderID, vendorID).First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderItemNotFound
		}
		if err != nil {
			return err
		}

		var order Order
		if err := tx.Where("id = ?", orderID).First(&order).Error; err != nil {
			return err
		}
		if order.Status == OrderCancelled {
			return ErrInvalidFulfilment
		}

		allowed := false
		for _, next := range fulfilmentTransitions[item.FulfilmentStatus] {
			if next == req.Status {
				allowed = true
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s to %s", ErrInvalidFulfilment, item.FulfilmentStatus, req.Status)
		}

		if req.Status == FulfilmentCancelled {
			order.Items = []OrderItem{item}
			if err := restockItems(tx, &order, &actorID, "line cancelled by vendor"); err != nil {
				return err
			}
		} else {
			updates := map[string]interface{}{"fulfilment_status": req.Status}
			if req.TrackingNumber != "" {
				updates["tracking_number"] = req.TrackingNumber
			}
			if err := tx.Model(&item).Updates(updates).Error; err != nil {
				return err
			}
		}

		return rollUpOrderStatus(tx, orderID)
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.Where("id = ?", itemID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func rollUpOrderStatus(tx *gorm.DB, orderID uuid.UUID) error {
	var statuses []string
	if err := tx.Model(&OrderItem{}).Where("order_id = ?", orderID).Pluck("fulfilment_status", &statuses).Error; err != nil {
		return err
	}

	counts := map[string]int{}
	for _, st := range statuses {
		counts[st]++
	}
	active := len(statuses) - counts[FulfilmentCancelled]

	var next string
	switch {
	case active == 0:
		next = OrderCancelled
	case counts[FulfilmentDelivered] == active:
		next = OrderDelivered
	case counts[FulfilmentPending] == 0:
		next = OrderShipped
	case counts[FulfilmentShipped] > 0 || counts[FulfilmentDelivered] > 0:
		next = OrderProcessing
	default:
		return nil
	}
	return tx.Model(&Order{}).Where("id = ?", orderID).
		Updates(map[string]interface{}{"status": next, "updated_at": time.Now()}).Error
}

func (s *FulfilmentService) Stats(vendorID uuid.UUID, lowThreshold int) (*VendorStats, error) {
	stats := &VendorStats{}
	products := s.db.Model(&Product{}).Scopes(tenant.ForVendor(vendorID))

	if err := products.Session(&gorm.Session{}).Count(&stats.Products).Error; err != nil {
		return nil, err
	}
	counts := []struct {
		q    *gorm.DB
		dest *int64
	}{
		{products.Session(&gorm.Session{}).Where("status = ?", ProductApproved), &stats.Approved},
		{products.Session(&gorm.Session{}).Where("status = ?", ProductPending), &stats.Pending},
		{products.Session(&gorm.Session{}).Where("status <> ? AND stock = 0", ProductArchived), &stats.OutOfStock},
		{products.Session(&gorm.Session{}).
			Where("status <> ? AND stock > 0 AND stock <= CASE WHEN low_stock_threshold > 0 THEN low_stock_threshold ELSE ? END",
				ProductArchived, lowThreshold), &stats.LowStock},
		{s.db.Model(&OrderItem{}).Scopes(tenant.ForVendor(vendorID)).
			Where("fulfilment_status IN ?", []string{FulfilmentPending, FulfilmentShipped}), &stats.OpenLines},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dest).Error; err != nil {
			return nil, err
		}
	}

	var sold struct {
		Units   int64
		Revenue int64
	}
	err := s.db.Model(&OrderItem{}).Scopes(tenant.ForVendor(vendorID)).
		Where("fulfilment_status <> ?", FulfilmentCancelled).
		Select("COALESCE(SUM(quantity), 0) AS units, COALESCE(SUM(line_total_cents), 0) AS revenue").
		Scan(&sold).Error
	if err != nil {
		return nil, err
	}
	stats.UnitsSold = sold.Units
	stats.RevenueCents = sold.Revenue
	return stats, nil
}
