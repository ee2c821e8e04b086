package middleware

import (
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// APIKeyAuth validates requests against a pre-shared API key. qcchat's
// control plane has no dashboard and no browser session of its own, so
// unlike the teacher this is the only auth middleware: one key per
// deployment, carried in X-API-Key or an Authorization: Bearer header.
func APIKeyAuth() fiber.Handler {
	apiKey := os.Getenv("QCCHAT_API_KEY")
	if apiKey == "" {
		apiKey = "dev-api-key" // default for local development only
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if strings.HasPrefix(path, "/health") {
			return c.Next()
		}

		key := c.Get("X-API-Key")
		if key == "" {
			if auth := c.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key != apiKey {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "invalid or missing API key",
			})
		}

		return c.Next()
	}
}
