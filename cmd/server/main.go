package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/automation"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/biolink"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/intake"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/apps/storefront"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/cache"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/mail"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/routes"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup(os.Getenv("LOG_LEVEL"))

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Automation provider registry
	registry, err := automation.LoadFromFile(cfg.ProvidersConfigPath)
	if err != nil {
		slog.Error("failed to load provider registry", "path", cfg.ProvidersConfigPath, "error", err)
		os.Exit(1)
	}
	slog.Info("provider registry loaded", "providers", len(registry.All()))

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	// Migrate shared models
	if err := database.MigrateShared(); err != nil {
		slog.Error("shared migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB, 5*time.Second)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		logging.NewStdoutHandler(slog.LevelInfo),
		pgLogHandler,
	)))

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Infrastructure
	pageCache := cache.New(ctx, cfg)
	store, err := storage.New(ctx, cfg)
	if err != nil {
		slog.Error("storage init failed", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	mailer := mail.New(cfg)

	// Services
	authService := services.NewAuthService(database.DB, cfg)
	subscriptionService := services.NewSubscriptionService(database.DB)
	moderationService := services.NewModerationService(database.DB)
	settingsService := services.NewSettingsService(database.DB)

	slog.Info("seeding marketplace settings defaults")
	if err := settingsService.SeedDefaults(); err != nil {
		slog.Error("settings seed failed", "error", err)
	}

	// Automation delivery: Kafka topic when brokers are configured,
	// otherwise an in-process worker pool.
	engine := automation.NewEngine(database.DB, registry, cfg)
	var dispatcher automation.Dispatcher
	var consumer *events.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		dispatcher = automation.NewKafkaDispatcher(events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAutomationTopic))
		consumer = events.NewConsumer(cfg.KafkaBrokers, cfg.KafkaAutomationTopic, cfg.KafkaGroupID, engine.HandleMessage)
		go consumer.Run(ctx)
	} else {
		dispatcher = automation.NewWorkerPool(engine, cfg.AutomationWorkers, 1000)
	}

	scheduler := automation.NewScheduler(database.DB, dispatcher, cfg.SchedulerInterval)
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(ctx)
	}()

	recorder := biolink.NewRecorder(
		database.DB,
		events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaAnalyticsTopic),
		2*time.Second,
	)

	// Register plugins
	plugins := []apps.Plugin{
		storefront.New(settingsService, moderationService),
		biolink.New(pageCache, recorder, dispatcher),
		automation.New(registry, engine, dispatcher, biolink.Scope(database.DB, cfg)),
		intake.New(store, mailer),
	}

	// Migrate plugin models
	for _, p := range plugins {
		if pluginModels := p.Models(); len(pluginModels) > 0 {
			if err := database.MigrateModels(pluginModels); err != nil {
				slog.Error("plugin migration failed", "plugin", p.ID(), "error", err)
				os.Exit(1)
			}
			slog.Info("plugin migrated", "plugin", p.ID(), "models", len(pluginModels))
		}
	}

	// Account deletion cascades into plugin-owned rows
	for _, p := range plugins {
		if ac, ok := p.(apps.AccountCleaner); ok {
			authService.OnDeleteAccount(ac.DeleteUserData)
		}
	}

	// Retention cleanup (system logs, automation event logs)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, []logging.RetentionRule{
		{Model: &models.SystemLog{}, Column: "created_at", Days: cfg.LogRetentionDays},
		{Model: &automation.EventLog{}, Column: "created_at", Days: cfg.EventLogRetentionDays},
	}, cleanupDone)

	// Handlers
	h := routes.Handlers{
		Auth:       handlers.NewAuthHandler(authService),
		Health:     handlers.NewHealthHandler(database.Ping, len(plugins)),
		Webhook:    handlers.NewWebhookHandler(subscriptionService, cfg.BillingWebhookSecret),
		Moderation: handlers.NewModerationHandler(moderationService),
		Legal:      handlers.NewLegalHandler(settingsService, cfg.SupportEmail),
		Settings:   handlers.NewSettingsHandler(settingsService),
	}

	// Fiber app. The body limit leaves room for a full intake upload.
	app := fiber.New(fiber.Config{
		BodyLimit:    (cfg.MaxUploadMB*cfg.MaxUploadFiles + 1) * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(metrics.Middleware())
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.HostResolver(cfg))

	// Routes
	routes.Setup(app, cfg, database.DB, h, plugins)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Stop background work before closing the database
	cancel()
	<-schedulerDone
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			slog.Error("kafka consumer close error", "error", err)
		}
	}
	for _, p := range plugins {
		if c, ok := p.(apps.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Error("plugin close error", "plugin", p.ID(), "error", err)
			}
		}
	}
	if c, ok := pageCache.(interface{ Close() error }); ok {
		_ = c.Close()
	}

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	// Close database connections
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
