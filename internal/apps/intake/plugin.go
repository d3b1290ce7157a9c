package intake

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/mail"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

type IntakePlugin struct {
	store  storage.Store
	mailer mail.Mailer
}

func New(store storage.Store, mailer mail.Mailer) *IntakePlugin {
	return &IntakePlugin{store: store, mailer: mailer}
}

func (p *IntakePlugin) ID() string { return "intake" }

func (p *IntakePlugin) Models() []interface{} {
	return []interface{}{&Submission{}}
}

// RegisterRoutes is a no-op: intake has no owner-facing routes.
func (p *IntakePlugin) RegisterRoutes(fiber.Router, *gorm.DB, *config.Config) {}

func (p *IntakePlugin) RegisterPublicRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	h := NewHandler(NewService(db, p.store, p.mailer, cfg))

	// Intake rate limit: 5 submissions/10min per IP
	router.Post("/intake", limiter.New(limiter.Config{
		Max:               5,
		Expiration:        10 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}), h.Submit)
}

func (p *IntakePlugin) RegisterStaffRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	h := NewHandler(NewService(db, p.store, p.mailer, cfg))

	router.Get("/intake", h.List)
	router.Get("/intake/:id", h.Get)
	router.Put("/intake/:id/status", h.SetStatus)
}
