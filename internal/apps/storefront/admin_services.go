package storefront

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ModerationQueue backs the staff approval queues and the admin dashboard.
type ModerationQueue struct {
	db *gorm.DB
}

func NewModerationQueue(db *gorm.DB) *ModerationQueue {
	return &ModerationQueue{db: db}
}

var (
	vendorStatuses  = []string{VendorPending, VendorApproved, VendorSuspended}
	productStatuses = []string{ProductPending, ProductApproved, ProductRejected, ProductArchived}
	orderStatuses   = []string{OrderPending, OrderPaid, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

func (s *ModerationQueue) Vendors(status string, limit, offset int) ([]Vendor, int64, error) {
	limit, offset = tenant.ClampPage(limit, offset)
	q := s.db.Model(&Vendor{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var vendors []Vendor
	err := q.Order("created_at ASC").Limit(limit).Offset(offset).Find(&vendors).Error
	return vendors, total, err
}

// SetVendorStatus approves or suspends a vendor. Approval promotes the owner
// to the vendor role unless they already hold a staff role.
func (s *ModerationQueue) SetVendorStatus(vendorID uuid.UUID, req StatusRequest) (*Vendor, error) {
	if !oneOf(req.Status, vendorStatuses) {
		return nil, ErrInvalidStatus
	}

	var vendor Vendor
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", vendorID).First(&vendor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVendorNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&vendor).Updates(map[string]interface{}{"status": req.Status, "status_note": req.Note}).Error; err != nil {
			return err
		}
		if req.Status == VendorApproved {
			return tx.Model(&models.User{}).
				Where("id = ? AND role = ?", vendor.UserID, models.RoleUser).
				Update("role", models.RoleVendor).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (s *ModerationQueue) Products(status string, limit, offset int) ([]Product, int64, error) {
	limit, offset = tenant.ClampPage(limit, offset)
	q := s.db.Model(&Product{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var products []Product
	err := q.Preload("Vendor").Order("created_at ASC").Limit(limit).Offset(offset).Find(&products).Error
	return products, total, err
}

func (s *ModerationQueue) SetProductStatus(productID uuid.UUID, req StatusRequest) (*Product, error) {
	if !oneOf(req.Status, productStatuses) {
		return nil, ErrInvalidStatus
	}

	var product Product
	err := s.db.Where("id = ?", productID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	reason := ""
	if req.Status == ProductRejected {
		reason = req.Note
	}
	if err := s.db.Model(&product).Updates(map[string]interface{}{"status": req.Status, "rejection_reason": reason}).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *ModerationQueue) CreateCategory(req CategoryRequest) (*Category, error) {
	if req.ParentID != nil {
		var count int64
		if err := s.db.Model(&Category{}).Where("id = ?", *req.ParentID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, ErrCategoryNotFound
		}
	}
	slug, err := uniqueSlug(s.db, &Category{}, validation.Slugify(req.Name, 80))
	if err != nil {
		return nil, err
	}
	category := Category{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(req.Name),
		Slug:      slug,
		ParentID:  req.ParentID,
		SortOrder: req.SortOrder,
	}
	if err := s.db.Create(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// SetOrderStatus lets an admin move an order. Cancelling restocks open lines.
func (s *ModerationQueue) SetOrderStatus(orderID uuid.UUID, actor *uuid.UUID, req StatusRequest) (*Order, error) {
	if !oneOf(req.Status, orderStatuses) {
		return nil, ErrInvalidStatus
	}

	var order Order
	err := s.db.Preload("Items").Where("id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if order.Status == OrderCancelled && req.Status != OrderCancelled {
		return nil, fmt.Errorf("%w: cancelled orders are final", ErrInvalidStatus)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"status": req.Status}
		switch req.Status {
		case OrderPaid:
			updates["payment_status"] = PaymentPaid
		case OrderCancelled:
			if order.Status == OrderCancelled {
				return nil
			}
			if order.PaymentStatus == PaymentPaid {
				updates["payment_status"] = PaymentRefunded
			}
			if err := restockItems(tx, &order, actor, "order cancelled by admin"); err != nil {
				return err
			}
		}
		return tx.Model(&Order{}).Where("id = ?", order.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.Preload("Items").Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// Stats aggregates marketplace counters for the admin dashboard.
func (s *ModerationQueue) Stats(lowThreshold int) (*MarketplaceStats, error) {
	stats := &MarketplaceStats{}
	if err := s.db.Model(&models.User{}).Count(&stats.Users).Error; err != nil {
		return nil, err
	}

	var err error
	if stats.Vendors, err = countBy(s.db.Model(&Vendor{}), "status"); err != nil {
		return nil, err
	}
	if stats.Products, err = countBy(s.db.Model(&Product{}), "status"); err != nil {
		return nil, err
	}
	if stats.Orders, err = countBy(s.db.Model(&Order{}), "status"); err != nil {
		return nil, err
	}

	if err := s.db.Model(&Order{}).Where("status <> ?", OrderCancelled).
		Select("COALESCE(SUM(total_cents), 0)").Scan(&stats.RevenueCents).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Report{}).Where("status = ?", models.ReportPending).
		Count(&stats.OpenReports).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&Product{}).
		Where("status = ? AND stock <= CASE WHEN low_stock_threshold > 0 THEN low_stock_threshold ELSE ? END",
			ProductApproved, lowThreshold).
		Count(&stats.LowStockProducts).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

func countBy(q *gorm.DB, column string) (map[string]int64, error) {
	var rows []struct {
		Label string
		Total int64
	}
	err := q.Select(column + " AS label, COUNT(*) AS total").Group(column).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Label] = r.Total
	}
	return out, nil
}
