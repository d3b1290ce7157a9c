package automation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrActionNotFound),
		errors.Is(err, ErrTriggerNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrAccountInUse),
		errors.Is(err, ErrActionInUse):
		return fiber.StatusConflict
	case errors.Is(err, ErrInvalidHookToken):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrQueueFull):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, ErrUnknownProvider),
		errors.Is(err, ErrProviderDisabled),
		errors.Is(err, ErrUnsupportedOp),
		errors.Is(err, ErrAccountMismatch),
		errors.Is(err, ErrAccountRequired),
		errors.Is(err, ErrMissingCredential),
		errors.Is(err, ErrActionNotOwned),
		errors.Is(err, ErrDuplicateAction),
		errors.Is(err, ErrInvalidScope),
		errors.Is(err, ErrScopeNotAllowed),
		errors.Is(err, ErrInvalidSchedule),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, validation.ErrBadBody):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func respondErr(c *fiber.Ctx, err error, fallback string) error {
	status := errorStatus(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		slog.Error("automation request failed", "component", "automation", "path", c.Path(), "error", err)
		msg = fallback
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: msg})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: msg})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: "Unauthorized",
	})
}

type Handler struct {
	registry *Registry
	accounts *AccountService
	actions  *ActionService
	triggers *TriggerService
	logs     *LogService
}

func NewHandler(registry *Registry, accounts *AccountService, actions *ActionService, triggers *TriggerService, logs *LogService) *Handler {
	return &Handler{registry: registry, accounts: accounts, actions: actions, triggers: triggers, logs: logs}
}

// owner resolves the caller and the :id path parameter. When ok is false the
// error response has already been written.
func owner(c *fiber.Ctx) (userID, id uuid.UUID, ok bool) {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		_ = unauthorized(c)
		return uuid.Nil, uuid.Nil, false
	}
	id, err = uuid.Parse(c.Params("id"))
	if err != nil {
		_ = badRequest(c, "Invalid ID")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func (h *Handler) Providers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"providers": h.registry.All()})
}

// --- Integration accounts ---

func (h *Handler) ListAccounts(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	accounts, err := h.accounts.List(userID)
	if err != nil {
		return respondErr(c, err, "Failed to fetch integrations")
	}
	return c.JSON(fiber.Map{"integrations": accounts})
}

func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req AccountRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	account, err := h.accounts.Create(userID, req)
	if err != nil {
		return respondErr(c, err, "Failed to connect integration")
	}
	return c.Status(fiber.StatusCreated).JSON(account)
}

func (h *Handler) UpdateAccount(c *fiber.Ctx) error {
	userID, id, ok := owner(c)
	if !ok {
		return nil
	}
	var req UpdateAccountRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	account, err := h.accounts.Update(userID, id, req)
	if err != nil {
		return respondErr(c, err, "Failed to update integration")
	}
	return c.JSON(account)
}

func (h *Handler) DeleteAccount(c *fiber.Ctx) error {
	userID, id, ok := owner(c)
	if !ok {
		return nil
	}
	if err := h.accounts.Delete(userID, id); err != nil {
		return respondErr(c, err, "Failed to delete integration")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- Actions ---

func (h *Handler) ListActions(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	actions, err := h.actions.List(userID)
	if err != nil {
		return respondErr(c, err, "Failed to fetch actions")
	}
	return c.JSON(fiber.Map{"actions": actions})
}

func (h *Handler) GetAction(c *fiber.Ctx) error {
	userID, id, ok := owner(c)
	if !ok {
		return nil
	}
	action, err := h.actions.Get(userID, id)
	if err != nil {
		return respondErr(c, err, "Failed to fetch action")
	}
	return c.JSON(action)
}

func (h *Handler) CreateAction(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req ActionRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	action, err := h.actions.Create(userID, req)
	if err != nil {
		return respondErr(c, err, "Failed to create action")
	}
	return c.Status(fiber.StatusCreated).JSON(action)
}

func (h *Handler) UpdateAction(c *fiber.Ctx) error {
	userID, id, ok := owner(c)
	if !ok {
		return nil
	}
	var req ActionRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	action, err := h.actions.Update(userID, id, req)
	if err != nil {
		return respondErr(c, err, "Failed to update action")
	}
	return c.JSON(action)
}

func (h *Handler) DeleteAction(c *fiber.Ctx) error {
	userID, id, ok := owner(c)
	if !ok {
		return nil
	}
	if err := h.actions.Delete(userID, id); err != nil {
		return respondErr(c, err, "Failed to delete action")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- Triggers ---

func (h *Handler) ListTriggers(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	triggers, err := h.triggers.List(userID, c.Query("event_type"))
	if err != nil {
		return respondErr(c, err, "Failed to fetch triggers")
	}
	return c.JSON(fiber.Map{"triggers": triggers})
}

func (h *Handler) GetTrigger(c *fiber.Ctx) error {
	userID, id, ok := owner(c)
	if !ok {
		return nil
	}
	trigger, err := h.triggers.Get(userID, id)
	if err != nil {
		return respondErr(c, err, "Failed to fetch trigger")
	}
	return c.JSON(trigger)
}

func (h *Handler) CreateTrigger(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req TriggerRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	trigger, err := h.triggers.Create(userID, req)
	if err != nil {
		return respondErr(c, err, "Failed to create trigger")
	}
	return c.Status(fiber.StatusCreated).JSON(trigger)
}

func (h *Handler) UpdateTrigger(c *fiber.Ctx) error {
	userID, id, ok := owner(c)
	if !ok {
		return nil
	}
	var req UpdateTriggerRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	trigger, err := h.triggers.Update(userID, id, req)
	if err != nil {
		return respondErr(c, err, "Failed to update trigger")
	}
	return c.JSON(trigger)
}

func (h *Handler) DeleteTrigger(c *fiber.Ctx) error {
	userID, id, ok := owner(c)
	if !ok {
		return nil
	}
	if err := h.triggers.Delete(userID, id); err != nil {
		return respondErr(c, err, "Failed to delete trigger")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) RotateToken(c *fiber.Ctx) error {
	userID, id, ok := owner(c)
	if !ok {
		return nil
	}
	trigger, err := h.triggers.RotateToken(userID, id)
	if err != nil {
		return respondErr(c, err, "Failed to rotate token")
	}
	return c.JSON(fiber.Map{"hook_token": trigger.HookToken})
}

func (h *Handler) TestTrigger(c *fiber.Ctx) error {
	userID, id, ok := owner(c)
	if !ok {
		return nil
	}
	var req TestTriggerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	logs, err := h.triggers.Test(c.UserContext(), userID, id, req.Payload)
	if err != nil {
		return respondErr(c, err, "Failed to run trigger")
	}

	success := true
	for _, l := range logs {
		if l.Status != LogSuccess {
			success = false
		}
	}
	return c.JSON(fiber.Map{"success": success, "logs": logs})
}

// --- Logs ---

func (h *Handler) Logs(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	filter := LogFilter{Status: c.Query("status"), Limit: limit, Offset: offset}
	if raw := c.Query("trigger_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "Invalid trigger_id")
		}
		filter.TriggerID = &id
	}

	resp, err := h.logs.List(userID, filter)
	if err != nil {
		return respondErr(c, err, "Failed to fetch logs")
	}
	return c.JSON(resp)
}

// --- Public webhook ---

// Hook accepts an incoming webhook for a trigger. The body is exposed to
// templates as "body" and the query string as "query".
func (h *Handler) Hook(c *fiber.Ctx) error {
	triggerID, err := uuid.Parse(c.Params("trigger_id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: true, Message: "Trigger not found"})
	}

	token := c.Get("X-Hook-Token")
	if token == "" {
		token = c.Query("token")
	}

	var body interface{}
	if raw := c.Body(); len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			body = string(raw)
		}
	}
	query := map[string]interface{}{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		if key := string(k); key != "token" {
			query[key] = string(v)
		}
	})

	eventID, err := h.triggers.FireHook(c.UserContext(), triggerID, token, map[string]interface{}{
		"body":  body,
		"query": query,
	})
	if err != nil {
		return respondErr(c, err, "Failed to accept webhook")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true, "event_id": eventID})
}
