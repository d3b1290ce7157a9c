package apps

import (
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Plugin defines the interface every feature module must implement.
type Plugin interface {
	// ID returns the unique module identifier used in logs.
	ID() string

	// Models returns the list of GORM model pointers for AutoMigrate.
	Models() []interface{}

	// RegisterRoutes mounts owner routes on the given Fiber group.
	// The group is already prefixed with /api/p and has JWT middleware applied.
	RegisterRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config)
}

// PublicPlugin mounts unauthenticated routes directly under /api.
type PublicPlugin interface {
	Plugin

	RegisterPublicRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config)
}

// StaffPlugin mounts routes for admins and moderators under /api/mod.
type StaffPlugin interface {
	Plugin

	RegisterStaffRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config)
}

// AdminPlugin extends Plugin with admin-specific route registration.
// The group has both JWT and Admin middleware applied.
type AdminPlugin interface {
	Plugin

	RegisterAdminRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config)
}

// Closer is implemented by plugins that own background workers.
type Closer interface {
	Close() error
}

// AccountCleaner is implemented by plugins that own per-user rows. It runs
// inside the account deletion transaction.
type AccountCleaner interface {
	DeleteUserData(tx *gorm.DB, userID uuid.UUID) error
}
