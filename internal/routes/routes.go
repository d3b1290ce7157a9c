package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"
)

type Handlers struct {
	Auth       *handlers.AuthHandler
	Health     *handlers.HealthHandler
	Webhook    *handlers.WebhookHandler
	Moderation *handlers.ModerationHandler
	Legal      *handlers.LegalHandler
	Settings   *handlers.SettingsHandler
}

func Setup(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	h Handlers,
	plugins []apps.Plugin,
) {
	// Prometheus scrape endpoint, outside the API rate limit
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api")

	// General API rate limiter: 120 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               120,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", h.Health.Check)

	// Marketplace settings (public read)
	api.Get("/settings", h.Settings.GetSettings)

	api.Get("/legal/privacy", h.Legal.PrivacyPolicy)
	api.Get("/legal/terms", h.Legal.TermsOfService)

	// Auth-specific rate limit: 10 req/min per IP (stricter)
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.Refresh)

	// Protected routes (JWT required) - apply middleware to individual routes
	// This prevents JWT middleware from affecting public routes
	api.Get("/auth/me", middleware.JWTProtected(cfg), h.Auth.Me)
	api.Post("/auth/logout", middleware.JWTProtected(cfg), h.Auth.Logout)
	api.Delete("/auth/account", middleware.JWTProtected(cfg), h.Auth.DeleteAccount)

	api.Post("/reports", middleware.JWTProtected(cfg), h.Moderation.CreateReport)

	// Staff panel (admins and moderators)
	staff := api.Group("/mod", middleware.JWTProtected(cfg), middleware.StaffRequired(db, cfg))
	staff.Get("/reports", h.Moderation.ListReports)
	staff.Put("/reports/:id", h.Moderation.ActionReport)

	// Admin panel (protected + admin required)
	admin := api.Group("/admin", middleware.JWTProtected(cfg), middleware.AdminRequired(db, cfg))
	admin.Put("/settings/:key", h.Settings.SetSetting)
	admin.Delete("/settings/:key", h.Settings.DeleteSetting)

	webhooks := api.Group("/webhooks")
	webhooks.Post("/billing", h.Webhook.HandleBilling)

	// Public plugin routes are registered before the /p group so the JWT
	// middleware there never sees them.
	for _, p := range plugins {
		if pp, ok := p.(apps.PublicPlugin); ok {
			pp.RegisterPublicRoutes(api, db, cfg)
		}
	}

	protected := api.Group("/p", middleware.JWTProtected(cfg))
	for _, p := range plugins {
		p.RegisterRoutes(protected, db, cfg)
		if sp, ok := p.(apps.StaffPlugin); ok {
			sp.RegisterStaffRoutes(staff, db, cfg)
		}
		if ap, ok := p.(apps.AdminPlugin); ok {
			ap.RegisterAdminRoutes(admin, db, cfg)
		}
	}
}
