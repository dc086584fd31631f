package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"tally/internal/auth"
)

const identityKey = "identity"

// Identity resolves the Authorization header into the caller's identity and
// stores it in the request context. Missing or invalid credentials leave the
// request anonymous; operations decide whether that is acceptable.
func Identity(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Next()
		}

		identity := auth.IdentityFromHeader(header)
		if identity == nil {
			logger.Debug("Ignoring invalid bearer credential", slog.String("path", c.Path()))
			return c.Next()
		}

		c.Locals(identityKey, identity)
		return c.Next()
	}
}

// CurrentIdentity returns the identity stored by Identity, or nil.
func CurrentIdentity(c *fiber.Ctx) *auth.Identity {
	identity, _ := c.Locals(identityKey).(*auth.Identity)
	return identity
}
