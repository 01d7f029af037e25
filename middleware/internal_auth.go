// middleware/internal_auth.go
package middleware

import (
	"crypto/subtle"
	"log"

	"github.com/gofiber/fiber/v2"
)

// InternalSecretMiddleware guards cron/internal endpoints with a shared
// secret header. The platform scheduler is the only expected caller.
func InternalSecretMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		provided := c.Get("x-internal-secret")
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			log.Printf("🚫 [INTERNAL] Invalid or missing x-internal-secret for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid internal secret",
			})
		}
		return c.Next()
	}
}
