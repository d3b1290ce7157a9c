// Package testutil provides sqlite-backed databases and signed tokens for tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const JWTSecret = "test-secret-do-not-use"

// NewDB opens a fresh sqlite database with the shared models and the given
// extra models migrated.
func NewDB(t *testing.T, extra ...interface{}) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.SharedModels()...))
	if len(extra) > 0 {
		require.NoError(t, db.AutoMigrate(extra...))
	}
	return db
}

// Config returns a configuration suitable for handler tests.
func Config() *config.Config {
	return &config.Config{
		JWTSecret:        JWTSecret,
		JWTAccessExpiry:  15 * time.Minute,
		JWTRefreshExpiry: time.Hour,
		AdminToken:       "admin-token",
		PrimaryHost:      "linkmarket.test",
		PageCacheTTL:     time.Minute,
		MaxUploadMB:      1,
		MaxUploadFiles:   3,
	}
}

// CreateUser inserts a user with the given role.
func CreateUser(t *testing.T, db *gorm.DB, email, role string) *models.User {
	t.Helper()
	u := &models.User{
		ID:                 uuid.New(),
		Email:              email,
		Password:           "x",
		Name:               "Test User",
		Role:               role,
		SubscriptionStatus: models.SubscriptionFree,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Token signs an access token for the user with the test secret.
func Token(t *testing.T, u *models.User) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   u.ID.String(),
		"email": u.Email,
		"role":  u.Role,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	require.NoError(t, err)
	return signed
}
