package storefront

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	VendorPending   = "pending"
	VendorApproved  = "approved"
	VendorSuspended = "suspended"

	ProductPending  = "pending"
	ProductApproved = "approved"
	ProductRejected = "rejected"
	ProductArchived = "archived"

	OrderPending    = "pending"
	OrderPaid       = "paid"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"

	PaymentUnpaid   = "unpaid"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"

	FulfilmentPending   = "pending"
	FulfilmentShipped   = "shipped"
	FulfilmentDelivered = "delivered"
	FulfilmentCancelled = "cancelled"

	MovementRestock    = "restock"
	MovementSale       = "sale"
	MovementAdjustment = "adjustment"
	MovementReturn     = "return"
	MovementDamage     = "damage"

	ShippingStandard = "standard"
	ShippingExpress  = "express"
	ShippingPaxi     = "paxi"
	ShippingCollect  = "collect"

	Currency = "ZAR"
)

type Category struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string     `gorm:"size:100;not null" json:"name"`
	Slug      string     `gorm:"size:120;not null;uniqueIndex" json:"slug"`
	ParentID  *uuid.UUID `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	SortOrder int        `gorm:"default:0" json:"sort_order"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Vendor struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Name        string         `gorm:"size:120;not null" json:"name"`
	Slug        string         `gorm:"size:140;not null;uniqueIndex" json:"slug"`
	Description string         `gorm:"type:text" json:"description"`
	Email       string         `gorm:"size:255" json:"email"`
	Phone       string         `gorm:"size:30" json:"phone"`
	LogoURL     string         `gorm:"type:text" json:"logo_url"`
	Status      string         `gorm:"size:20;not null;default:'pending';index" json:"status"`
	StatusNote  string         `gorm:"size:500" json:"status_note,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

type Product struct {
	ID                uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	VendorID          uuid.UUID                   `gorm:"type:uuid;not null;index" json:"vendor_id"`
	CategoryID        *uuid.UUID                  `gorm:"type:uuid;index" json:"category_id,omitempty"`
	Name              string                      `gorm:"size:200;not null" json:"name"`
	Slug              string                      `gorm:"size:220;not null;uniqueIndex" json:"slug"`
	Description       string                      `gorm:"type:text" json:"description"`
	SKU               string                      `gorm:"size:64" json:"sku"`
	PriceCents        int64                       `gorm:"not null" json:"price_cents"`
	CompareAtCents    int64                       `gorm:"default:0" json:"compare_at_cents,omitempty"`
	Currency          string                      `gorm:"size:3;not null;default:'ZAR'" json:"currency"`
	Stock             int                         `gorm:"not null;default:0" json:"stock"`
	LowStockThreshold int                         `gorm:"default:0" json:"low_stock_threshold"`
	Images            datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"images"`
	Status            string                      `gorm:"size:20;not null;default:'pending';index" json:"status"`
	RejectionReason   string                      `gorm:"size:500" json:"rejection_reason,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
	DeletedAt         gorm.DeletedAt              `gorm:"index" json:"-"`

	Vendor   *Vendor   `gorm:"foreignKey:VendorID" json:"vendor,omitempty"`
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

type CartItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_product" json:"user_id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_product" json:"product_id"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

type Order struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Number          string         `gorm:"size:20;not null;uniqueIndex" json:"number"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Status          string         `gorm:"size:20;not null;default:'pending';index" json:"status"`
	PaymentMethod   string         `gorm:"size:10;not null" json:"payment_method"`
	PaymentStatus   string         `gorm:"size:10;not null;default:'unpaid'" json:"payment_status"`
	ShippingMethod  string         `gorm:"size:20;not null" json:"shipping_method"`
	PaxiPointCode   string         `gorm:"size:20" json:"paxi_point_code,omitempty"`
	ShippingAddress datatypes.JSON `gorm:"type:jsonb" json:"shipping_address"`
	SubtotalCents   int64          `gorm:"not null" json:"subtotal_cents"`
	ShippingCents   int64          `gorm:"not null" json:"shipping_cents"`
	TotalCents      int64          `gorm:"not null" json:"total_cents"`
	Currency        string         `gorm:"size:3;not null;default:'ZAR'" json:"currency"`
	Notes           string         `gorm:"size:1000" json:"notes,omitempty"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// OrderItem snapshots the product at purchase time.
type OrderItem struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID          uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID        uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id"`
	VendorID         uuid.UUID `gorm:"type:uuid;not null;index" json:"vendor_id"`
	ProductName      string    `gorm:"size:200;not null" json:"product_name"`
	SKU              string    `gorm:"size:64" json:"sku,omitempty"`
	UnitPriceCents   int64     `gorm:"not null" json:"unit_price_cents"`
	Quantity         int       `gorm:"not null" json:"quantity"`
	LineTotalCents   int64     `gorm:"not null" json:"line_total_cents"`
	FulfilmentStatus string    `gorm:"size:20;not null;default:'pending'" json:"fulfilment_status"`
	TrackingNumber   string    `gorm:"size:100" json:"tracking_number,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StockMovement is an append-only ledger entry for a product's stock.
type StockMovement struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"product_id"`
	VendorID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"vendor_id"`
	Delta          int        `gorm:"not null" json:"delta"`
	Reason         string     `gorm:"size:20;not null" json:"reason"`
	Note           string     `gorm:"size:500" json:"note,omitempty"`
	ResultingStock int        `gorm:"not null" json:"resulting_stock"`
	OrderID        *uuid.UUID `gorm:"type:uuid;index" json:"order_id,omitempty"`
	CreatedByID    *uuid.UUID `gorm:"type:uuid" json:"created_by_id,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
}

// --- DTOs ---

type ProductFilter struct {
	Category string
	Query    string
	Vendor   string
	MinPrice int64
	MaxPrice int64
	Sort     string
	Limit    int
	Offset   int
}

type ProductListResponse struct {
	Products []Product `json:"products"`
	Total    int64     `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

type ShippingOption struct {
	Method            string `json:"method"`
	Label             string `json:"label"`
	FeeCents          int64  `json:"fee_cents"`
	EstimatedDays     string `json:"estimated_days"`
	RequiresPaxiPoint bool   `json:"requires_paxi_point"`
}

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=99"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=99"`
}

type CartResponse struct {
	Items         []CartItem `json:"items"`
	ItemCount     int        `json:"item_count"`
	SubtotalCents int64      `json:"subtotal_cents"`
	Currency      string     `json:"currency"`
}

type ShippingAddress struct {
	RecipientName string `json:"recipient_name" validate:"required,max=120"`
	Phone         string `json:"phone" validate:"required,max=30"`
	Line1         string `json:"line1" validate:"required,max=200"`
	Line2         string `json:"line2" validate:"max=200"`
	Suburb        string `json:"suburb" validate:"max=100"`
	City          string `json:"city" validate:"required,max=100"`
	Province      string `json:"province" validate:"max=100"`
	PostalCode    string `json:"postal_code" validate:"required,max=10"`
}

type CheckoutRequest struct {
	ShippingMethod  string           `json:"shipping_method" validate:"required,oneof=standard express paxi collect"`
	PaxiPointCode   string           `json:"paxi_point_code" validate:"max=20"`
	ShippingAddress *ShippingAddress `json:"shipping_address"`
	PaymentMethod   string           `json:"payment_method" validate:"required,oneof=card eft cod"`
	Notes           string           `json:"notes" validate:"max=1000"`
}

type OrderListResponse struct {
	Orders []Order `json:"orders"`
	Total  int64   `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

type ApplyVendorRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=120"`
	Description string `json:"description" validate:"max=2000"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"max=30"`
	LogoURL     string `json:"logo_url" validate:"omitempty,url"`
}

type ProductRequest struct {
	Name              string     `json:"name" validate:"required,min=2,max=200"`
	Description       string     `json:"description" validate:"max=5000"`
	CategoryID        *uuid.UUID `json:"category_id"`
	SKU               string     `json:"sku" validate:"max=64"`
	PriceCents        int64      `json:"price_cents" validate:"required,min=1"`
	CompareAtCents    int64      `json:"compare_at_cents" validate:"min=0"`
	InitialStock      int        `json:"initial_stock" validate:"min=0"`
	LowStockThreshold int        `json:"low_stock_threshold" validate:"min=0"`
	Images            []string   `json:"images" validate:"max=10,dive,url"`
}

type UpdateProductRequest struct {
	Name              *string    `json:"name" validate:"omitempty,min=2,max=200"`
	Description       *string    `json:"description" validate:"omitempty,max=5000"`
	CategoryID        *uuid.UUID `json:"category_id"`
	SKU               *string    `json:"sku" validate:"omitempty,max=64"`
	PriceCents        *int64     `json:"price_cents" validate:"omitempty,min=1"`
	CompareAtCents    *int64     `json:"compare_at_cents" validate:"omitempty,min=0"`
	LowStockThreshold *int       `json:"low_stock_threshold" validate:"omitempty,min=0"`
	Images            []string   `json:"images" validate:"omitempty,max=10,dive,url"`
	Archived          *bool      `json:"archived"`
}

type AdjustStockRequest struct {
	Delta  int    `json:"delta" validate:"required,ne=0,min=-100000,max=100000"`
	Reason string `json:"reason" validate:"required,oneof=restock adjustment return damage"`
	Note   string `json:"note" validate:"max=500"`
}

type InventoryRow struct {
	ProductID         uuid.UUID `json:"product_id"`
	Name              string    `json:"name"`
	SKU               string    `json:"sku"`
	Status            string    `json:"status"`
	Stock             int       `json:"stock"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	LowStock          bool      `json:"low_stock"`
	PriceCents        int64     `json:"price_cents"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type FulfilmentRequest struct {
	Status         string `json:"status" validate:"required,oneof=shipped delivered cancelled"`
	TrackingNumber string `json:"tracking_number" validate:"max=100"`
}

type VendorOrderLine struct {
	OrderItem
	OrderNumber    string         `json:"order_number"`
	OrderStatus    string         `json:"order_status"`
	ShippingMethod string         `json:"shipping_method"`
	PaxiPointCode  string         `json:"paxi_point_code,omitempty"`
	ShipTo         datatypes.JSON `json:"ship_to"`
	OrderedAt      time.Time      `json:"ordered_at"`
}

type VendorStats struct {
	Products     int64 `json:"products"`
	Approved     int64 `json:"approved"`
	Pending      int64 `json:"pending"`
	LowStock     int64 `json:"low_stock"`
	OutOfStock   int64 `json:"out_of_stock"`
	OpenLines    int64 `json:"open_order_lines"`
	UnitsSold    int64 `json:"units_sold"`
	RevenueCents int64 `json:"revenue_cents"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

type CategoryRequest struct {
	Name      string     `json:"name" validate:"required,min=2,max=100"`
	ParentID  *uuid.UUID `json:"parent_id"`
	SortOrder int        `json:"sort_order"`
}

type MarketplaceStats struct {
	Users            int64            `json:"users"`
	Vendors          map[string]int64 `json:"vendors"`
	Products         map[string]int64 `json:"products"`
	Orders           map[string]int64 `json:"orders"`
	RevenueCents     int64            `json:"revenue_cents"`
	OpenReports      int64            `json:"open_reports"`
	LowStockProducts int64            `json:"low_stock_products"`
}
