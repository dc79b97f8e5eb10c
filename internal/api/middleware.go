package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"rulemaker-backend/internal/session"
)

const sessionLocal = "authoring_session"

// SessionMiddleware validates the bearer session token and resolves the
// session, rehydrating it from the journal if the process restarted since
// the token was issued.
func (h *Handler) SessionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return UnauthorizedError("Missing session token")
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return UnauthorizedError("Invalid auth header format")
		}

		id, err := ParseSessionToken(parts[1], h.secret)
		if err != nil {
			return UnauthorizedError("Invalid or expired session token")
		}

		sess, err := h.svc.ResolveSession(c.UserContext(), id)
		if err != nil {
			return mapWorkflowError(err)
		}
		c.Locals(sessionLocal, sess)
		return c.Next()
	}
}

// currentSession extracts the resolved session from the request context.
func currentSession(c *fiber.Ctx) *session.Session {
	sess, _ := c.Locals(sessionLocal).(*session.Session)
	return sess
}
