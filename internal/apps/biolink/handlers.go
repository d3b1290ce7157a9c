package biolink

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/automation"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrPageNotFound),
		errors.Is(err, ErrBlockNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrSlugTaken),
		errors.Is(err, ErrDomainTaken):
		return fiber.StatusConflict
	case errors.Is(err, ErrSlugReserved),
		errors.Is(err, ErrInvalidSlug),
		errors.Is(err, ErrDomainNotAllowed),
		errors.Is(err, ErrTooManyBlocks),
		errors.Is(err, ErrInvalidOrder),
		errors.Is(err, ErrVariantNeedsB),
		errors.Is(err, ErrInvalidBlock),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrNotContactBlock),
		errors.Is(err, ErrMissingField),
		errors.Is(err, ErrInvalidField),
		errors.Is(err, validation.ErrBadBody):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func respondErr(c *fiber.Ctx, err error, fallback string) error {
	status := errorStatus(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		slog.Error("biolink request failed", "component", "biolink", "path", c.Path(), "error", err)
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

// ids parses the caller and the named uuid path params. When ok is false the
// error response has already been written.
func ids(c *fiber.Ctx, params ...string) (userID uuid.UUID, out []uuid.UUID, ok bool) {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		_ = unauthorized(c)
		return uuid.Nil, nil, false
	}
	out = make([]uuid.UUID, len(params))
	for i, p := range params {
		id, err := uuid.Parse(c.Params(p))
		if err != nil {
			_ = badRequest(c, "Invalid "+p)
			return uuid.Nil, nil, false
		}
		out[i] = id
	}
	return userID, out, true
}

// visitorFrom identifies the visitor by X-Visitor-ID, falling back to a hash
// of client IP and user agent.
func visitorFrom(c *fiber.Ctx) Visitor {
	ua := c.Get(fiber.HeaderUserAgent)
	key := strings.TrimSpace(c.Get("X-Visitor-ID"))
	if key == "" || len(key) > 64 {
		sum := sha256.Sum256([]byte(c.IP() + "|" + ua))
		key = hex.EncodeToString(sum[:16])
	}

	country := strings.ToUpper(strings.TrimSpace(c.Get("CF-IPCountry")))
	if country == "" {
		country = strings.ToUpper(strings.TrimSpace(c.Get("X-Country-Code")))
	}
	if len(country) != 2 {
		country = ""
	}

	return Visitor{
		Key:      key,
		Device:   DeviceFromUA(ua),
		Country:  country,
		Referrer: referrerHost(c.Get(fiber.HeaderReferer)),
	}
}

// DeviceFromUA buckets a user agent into mobile, tablet, desktop or bot.
func DeviceFromUA(ua string) string {
	l := strings.ToLower(ua)
	switch {
	case l == "":
		return "unknown"
	case strings.Contains(l, "bot") || strings.Contains(l, "crawler") || strings.Contains(l, "spider"):
		return "bot"
	case strings.Contains(l, "ipad") || strings.Contains(l, "tablet"):
		return "tablet"
	case strings.Contains(l, "mobi") || strings.Contains(l, "iphone") || strings.Contains(l, "android"):
		return "mobile"
	default:
		return "desktop"
	}
}

func referrerHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := middleware.NormalizeHost(u.Host)
	if len(host) > 255 {
		host = host[:255]
	}
	return host
}

// --- Owner: pages ---

type PageHandler struct {
	pages     *PageService
	blocks    *BlockService
	analytics *AnalyticsService
}

func NewPageHandler(pages *PageService, blocks *BlockService, analytics *AnalyticsService) *PageHandler {
	return &PageHandler{pages: pages, blocks: blocks, analytics: analytics}
}

func (h *PageHandler) List(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	pages, err := h.pages.List(userID)
	if err != nil {
		return respondErr(c, err, "Failed to fetch pages")
	}
	return c.JSON(fiber.Map{"pages": pages})
}

func (h *PageHandler) Create(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req PageRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	page, err := h.pages.Create(userID, req)
	if err != nil {
		return respondErr(c, err, "Failed to create page")
	}
	return c.Status(fiber.StatusCreated).JSON(page)
}

func (h *PageHandler) Get(c *fiber.Ctx) error {
	userID, p, ok := ids(c, "id")
	if !ok {
		return nil
	}
	page, err := h.pages.Get(userID, p[0])
	if err != nil {
		return respondErr(c, err, "Failed to fetch page")
	}
	return c.JSON(page)
}

func (h *PageHandler) Update(c *fiber.Ctx) error {
	userID, p, ok := ids(c, "id")
	if !ok {
		return nil
	}
	var req UpdatePageRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	page, err := h.pages.Update(userID, p[0], req)
	if err != nil {
		return respondErr(c, err, "Failed to update page")
	}
	return c.JSON(page)
}

func (h *PageHandler) Delete(c *fiber.Ctx) error {
	userID, p, ok := ids(c, "id")
	if !ok {
		return nil
	}
	if err := h.pages.Delete(userID, p[0]); err != nil {
		return respondErr(c, err, "Failed to delete page")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PageHandler) Publish(c *fiber.Ctx) error {
	userID, p, ok := ids(c, "id")
	if !ok {
		return nil
	}
	var req PublishRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	page, err := h.pages.SetPublished(userID, p[0], req.Published)
	if err != nil {
		return respondErr(c, err, "Failed to publish page")
	}
	return c.JSON(page)
}

func (h *PageHandler) SetDomain(c *fiber.Ctx) error {
	userID, p, ok := ids(c, "id")
	if !ok {
		return nil
	}
	var req DomainRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	page, err := h.pages.SetDomain(userID, p[0], req.Domain)
	if err != nil {
		return respondErr(c, err, "Failed to set domain")
	}
	return c.JSON(page)
}

func (h *PageHandler) ClearDomain(c *fiber.Ctx) error {
	userID, p, ok := ids(c, "id")
	if !ok {
		return nil
	}
	page, err := h.pages.ClearDomain(userID, p[0])
	if err != nil {
		return respondErr(c, err, "Failed to clear domain")
	}
	return c.JSON(page)
}

func (h *PageHandler) Analytics(c *fiber.Ctx) error {
	userID, p, ok := ids(c, "id")
	if !ok {
		return nil
	}
	days, err := strconv.Atoi(c.Query("days", "30"))
	if err != nil {
		return badRequest(c, ErrInvalidRange.Error())
	}
	summary, err := h.analytics.Summary(userID, p[0], days)
	if err != nil {
		return respondErr(c, err, "Failed to fetch analytics")
	}
	return c.JSON(summary)
}

// --- Owner: blocks ---

func (h *PageHandler) ListBlocks(c *fiber.Ctx) error {
	userID, p, ok := ids(c, "id")
	if !ok {
		return nil
	}
	blocks, err := h.blocks.List(userID, p[0])
	if err != nil {
		return respondErr(c, err, "Failed to fetch blocks")
	}
	return c.JSON(fiber.Map{"blocks": blocks})
}

func (h *PageHandler) CreateBlock(c *fiber.Ctx) error {
	userID, p, ok := ids(c, "id")
	if !ok {
		return nil
	}
	var req BlockRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	block, err := h.blocks.Create(userID, p[0], req)
	if err != nil {
		return respondErr(c, err, "Failed to create block")
	}
	return c.Status(fiber.StatusCreated).JSON(block)
}

func (h *PageHandler) UpdateBlock(c *fiber.Ctx) error {
	userID, p, ok := ids(c, "id", "block_id")
	if !ok {
		return nil
	}
	var req UpdateBlockRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	block, err := h.blocks.Update(userID, p[0], p[1], req)
	if err != nil {
		return respondErr(c, err, "Failed to update block")
	}
	return c.JSON(block)
}

func (h *PageHandler) DeleteBlock(c *fiber.Ctx) error {
	userID, p, ok := ids(c, "id", "block_id")
	if !ok {
		return nil
	}
	if err := h.blocks.Delete(userID, p[0], p[1]); err != nil {
		return respondErr(c, err, "Failed to delete block")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PageHandler) Reorder(c *fiber.Ctx) error {
	userID, p, ok := ids(c, "id")
	if !ok {
		return nil
	}
	var req ReorderRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	blocks, err := h.blocks.Reorder(userID, p[0], req.BlockIDs)
	if err != nil {
		return respondErr(c, err, "Failed to reorder blocks")
	}
	return c.JSON(fiber.Map{"blocks": blocks})
}

// --- Public ---

type PublicHandler struct {
	service *PublicService
}

func NewPublicHandler(service *PublicService) *PublicHandler {
	return &PublicHandler{service: service}
}

func (h *PublicHandler) Page(c *fiber.Ctx) error {
	page, err := h.service.ViewBySlug(c.UserContext(), c.Params("slug"), visitorFrom(c))
	if err != nil {
		return respondErr(c, err, "Failed to load page")
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(page)
}

// Domain serves the page connected to :host, or to the request's own host
// when HostResolver marked it as a custom domain.
func (h *PublicHandler) Domain(c *fiber.Ctx) error {
	host := middleware.NormalizeHost(c.Params("host"))
	if host == "" {
		host = middleware.CustomDomain(c)
	}
	if host == "" {
		return respondErr(c, ErrPageNotFound, "")
	}
	page, err := h.service.ViewByDomain(c.UserContext(), host, visitorFrom(c))
	if err != nil {
		return respondErr(c, err, "Failed to load page")
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(page)
}

func (h *PublicHandler) Click(c *fiber.Ctx) error {
	var req ClickRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	resp, err := h.service.Click(c.UserContext(), c.Params("slug"), req.BlockID, visitorFrom(c))
	if err != nil {
		return respondErr(c, err, "Failed to record click")
	}
	return c.JSON(resp)
}

func (h *PublicHandler) Contact(c *fiber.Ctx) error {
	var req ContactRequest
	if err := validation.ParseBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	eventID, err := h.service.Contact(c.UserContext(), c.Params("slug"), req, visitorFrom(c))
	if err != nil {
		return respondErr(c, err, "Failed to submit form")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true, "event_id": eventID})
}

// --- Admin ---

type AdminHandler struct {
	analytics *AnalyticsService
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.analytics.AdminStats()
	if err != nil {
		return respondErr(c, err, "Failed to fetch stats")
	}
	return c.JSON(stats)
}

// automation.PageScope is satisfied by PageService.
var _ automation.PageScope = (*PageService)(nil)
