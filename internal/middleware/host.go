package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/linkmarket-backend/internal/config"
	"github.com/gofiber/fiber/v2"
)

// HostResolver marks requests arriving on a host other than the primary one so
// bio pages can be served from their custom domain.
func HostResolver(cfg *config.Config) fiber.Handler {
	primary := strings.ToLower(cfg.PrimaryHost)
	return func(c *fiber.Ctx) error {
		host := NormalizeHost(c.Hostname())
		if host != "" && host != primary && !strings.HasSuffix(host, "."+primary) {
			c.Locals("custom_domain", host)
		}
		return c.Next()
	}
}

// CustomDomain returns the host recorded by HostResolver, if any.
func CustomDomain(c *fiber.Ctx) string {
	host, _ := c.Locals("custom_domain").(string)
	return host
}

// NormalizeHost lowercases and strips the port and a leading "www.".
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(host, ":"); i != -1 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return strings.TrimPrefix(host, "www.")
}
