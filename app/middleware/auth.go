package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UserIDKey is the locals key the identity middleware fills in.
const UserIDKey = "userID"

// WithUser resolves the caller from the X-User-ID header. Requests
// without a parseable user id are rejected before any handler runs.
func WithUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-User-ID")
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"code":  fiber.StatusUnauthorized,
				"error": "missing X-User-ID header",
			})
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"code":  fiber.StatusUnauthorized,
				"error": "invalid X-User-ID header",
			})
		}

		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}
