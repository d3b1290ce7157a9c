package handlers

import (
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type WebhookHandler struct {
	subscriptionService *services.SubscriptionService
	secret              string
}

func NewWebhookHandler(subscriptionService *services.SubscriptionService, secret string) *WebhookHandler {
	return &WebhookHandler{
		subscriptionService: subscriptionService,
		secret:              secret,
	}
}

// HandleBilling applies subscription events from the billing provider.
func (h *WebhookHandler) HandleBilling(c *fiber.Ctx) error {
	if h.secret == "" {
		return respondError(c, fiber.StatusNotFound, "Billing webhooks not configured")
	}

	if subtle.ConstantTimeCompare([]byte(c.Get("Authorization")), []byte(h.secret)) != 1 {
		return respondError(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var webhook dto.BillingWebhook
	if err := c.BodyParser(&webhook); err != nil {
		return respondError(c, fiber.StatusBadRequest, "Invalid webhook payload")
	}

	if err := h.subscriptionService.HandleWebhookEvent(&webhook.Event); err != nil {
		if errors.Is(err, services.ErrUnknownSubscriber) {
			slog.Warn("billing webhook for unknown user", "event_id", webhook.Event.ID, "user_id", webhook.Event.UserID)
			return c.JSON(fiber.Map{"received": true, "applied": false})
		}
		slog.Error("webhook processing failed", "component", "billing", "event_type", webhook.Event.Type, "error", err)
		return respondError(c, fiber.StatusInternalServerError, "Failed to process webhook event")
	}

	slog.Info("webhook processed", "event_type", webhook.Event.Type, "event_id", webhook.Event.ID)
	return c.JSON(fiber.Map{"received": true, "applied": true})
}
