package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	localUser        = "user"
	localAccessToken = "accessToken"
)

// RequireAuth verifies the bearer token (blacklist first, then signature,
// kind, and account state) and stashes the user on the request context.
func (h *AuthHandler) RequireAuth(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
	}

	user, err := h.userService.VerifyAccess(c.Context(), token)
	if err != nil {
		return respondError(c, err)
	}

	c.Locals(localUser, user)
	c.Locals(localAccessToken, token)

	return c.Next()
}

func (h *AuthHandler) RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := currentUser(c)
		if user == nil || user.Role != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not enough permissions"})
		}
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
