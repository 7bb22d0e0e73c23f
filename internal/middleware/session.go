package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-workbench/internal/service"
	"github.com/noah-isme/gema-workbench/internal/utils"
)

// SessionProvider resolves the active platform session.
type SessionProvider interface {
	Current(ctx context.Context) (service.Session, error)
}

// RequireSession rejects requests made before a session has been started or
// after it has expired, and exposes the session user to later handlers.
func RequireSession(provider SessionProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := ContextWithCorrelation(c.UserContext(), GetCorrelationID(c))
		session, err := provider.Current(ctx)
		switch {
		case errors.Is(err, service.ErrNoSession):
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		case errors.Is(err, service.ErrSessionExpired):
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		case err != nil:
			return utils.SendError(c, fiber.StatusServiceUnavailable, "session store unavailable")
		}

		c.Locals("user_id", session.UserID)
		c.Locals("user_role", session.Role)
		return c.Next()
	}
}
