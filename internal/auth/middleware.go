package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"datagate/internal/apperr"
	"datagate/internal/instrument"
	"datagate/internal/metadata"
)

const localsKey = "accountability"

// Middleware returns a Fiber middleware that validates JWT tokens
// and sets the caller's Accountability on the request.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return apperr.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return apperr.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return apperr.UnauthorizedError("Invalid or expired token")
		}

		acc := claims.Accountability()
		c.Locals(localsKey, acc)
		c.SetUserContext(instrument.WithUserID(c.UserContext(), acc.User))
		return c.Next()
	}
}

// GetAccountability extracts the caller from a Fiber context.
func GetAccountability(c *fiber.Ctx) *metadata.Accountability {
	acc, _ := c.Locals(localsKey).(*metadata.Accountability)
	return acc
}
