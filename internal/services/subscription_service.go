package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrUnknownSubscriber = errors.New("no user matches billing event")

type SubscriptionService struct {
	db *gorm.DB
}

func NewSubscriptionService(db *gorm.DB) *SubscriptionService {
	return &SubscriptionService{db: db}
}

// HandleWebhookEvent applies a billing event. Unknown event types are ignored.
func (s *SubscriptionService) HandleWebhookEvent(event *dto.BillingEvent) error {
	switch event.Type {
	case "subscription.activated":
		return s.handleActivated(event)
	case "subscription.renewed":
		return s.handleRenewed(event)
	case "subscription.cancelled":
		return s.setStatus(event, "cancelled", models.SubscriptionCancelled)
	case "subscription.expired":
		return s.setStatus(event, "expired", models.SubscriptionExpired)
	default:
		return nil
	}
}

func (s *SubscriptionService) handleActivated(event *dto.BillingEvent) error {
	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return ErrUnknownSubscriber
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return ErrUnknownSubscriber
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		sub := models.Subscription{
			ID:                 uuid.New(),
			UserID:             user.ID,
			ProviderRef:        event.CustomerRef,
			Plan:               event.Plan,
			Status:             "active",
			CurrentPeriodStart: msToTime(event.PeriodStartMs),
			CurrentPeriodEnd:   msToTime(event.PeriodEndMs),
		}
		if err := tx.Create(&sub).Error; err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		return tx.Model(&user).Update("subscription_status", models.SubscriptionActive).Error
	})
}

func (s *SubscriptionService) handleRenewed(event *dto.BillingEvent) error {
	var sub models.Subscription
	if err := s.db.Where("provider_ref = ?", event.CustomerRef).Order("created_at DESC").First(&sub).Error; err != nil {
		return fmt.Errorf("subscription not found for renewal: %w", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&sub).Updates(map[string]interface{}{
			"status":               "active",
			"current_period_start": msToTime(event.PeriodStartMs),
			"current_period_end":   msToTime(event.PeriodEndMs),
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", sub.UserID).
			Update("subscription_status", models.SubscriptionActive).Error
	})
}

func (s *SubscriptionService) setStatus(event *dto.BillingEvent, subStatus, userStatus string) error {
	var subs []models.Subscription
	if err := s.db.Where("provider_ref = ?", event.CustomerRef).Find(&subs).Error; err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Subscription{}).
			Where("provider_ref = ?", event.CustomerRef).
			Update("status", subStatus).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", subs[0].UserID).
			Update("subscription_status", userStatus).Error
	})
}

func msToTime(ms int64) time.Time {
	return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond)).UTC()
}
