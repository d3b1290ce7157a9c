package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleRequired(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.Config()

	admin := testutil.CreateUser(t, db, "admin@linkmarket.test", models.RoleAdmin)
	mod := testutil.CreateUser(t, db, "mod@linkmarket.test", models.RoleModerator)
	shopper := testutil.CreateUser(t, db, "shopper@linkmarket.test", models.RoleUser)

	app := fiber.New()
	app.Get("/admin", JWTProtected(cfg), AdminRequired(db, cfg), func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/mod", JWTProtected(cfg), StaffRequired(db, cfg), func(c *fiber.Ctx) error { return c.SendString("ok") })

	cases := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"admin on admin", "/admin", testutil.Token(t, admin), fiber.StatusOK},
		{"moderator on admin", "/admin", testutil.Token(t, mod), fiber.StatusForbidden},
		{"moderator on staff", "/mod", testutil.Token(t, mod), fiber.StatusOK},
		{"shopper on staff", "/mod", testutil.Token(t, shopper), fiber.StatusForbidden},
		{"no token", "/mod", "", fiber.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRoleRequiredAdminEmail(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.Config()
	cfg.AdminEmails = "ops@linkmarket.test, other@linkmarket.test"

	ops := testutil.CreateUser(t, db, "ops@linkmarket.test", models.RoleUser)

	app := fiber.New()
	app.Get("/admin", JWTProtected(cfg), AdminRequired(db, cfg), func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+testutil.Token(t, ops))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestHostResolver(t *testing.T) {
	cfg := testutil.Config()
	app := fiber.New()
	app.Use(HostResolver(cfg))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(CustomDomain(c)) })

	cases := map[string]string{
		"linkmarket.test":      "",
		"shop.linkmarket.test": "",
		"www.thandi.co.za":     "thandi.co.za",
		"Thandi.CO.ZA:8443":    "thandi.co.za",
	}
	for host, want := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		req.Host = host
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, want, string(body), host)
	}
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeHost("WWW.Example.com:80"))
	assert.Equal(t, "example.com", NormalizeHost("example.com"))
}
