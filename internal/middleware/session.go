package middleware

import (
	"strings"

	"tcmclinic/internal/logging"
	"tcmclinic/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// SessionCookie is the name of the cookie carrying the session token
const SessionCookie = "tcm_session"

var publicPaths = []string{
	"/api/health",
	"/api/auth",
	"/api/link-preview",
}

// IsPublicPath reports whether path is reachable without a session. A public
// path matches exactly or as a parent segment, never as a bare string prefix.
func IsPublicPath(path string) bool {
	path = strings.TrimSuffix(path, "/")
	for _, public := range publicPaths {
		if path == public || strings.HasPrefix(path, public+"/") {
			return true
		}
	}
	return false
}

// SessionAuth requires a valid session on every /api route except the public
// ones. The token comes from the session cookie or an Authorization header.
// The allow-list is checked again so removed addresses lose access at once.
func SessionAuth(sessions *auth.SessionManager, allowed *auth.AllowList) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions || IsPublicPath(c.Path()) {
			return c.Next()
		}

		token := c.Cookies(SessionCookie)
		if token == "" {
			if header := c.Get(fiber.HeaderAuthorization); header != "" {
				if extracted, err := auth.ExtractToken(header); err == nil {
					token = extracted
				}
			}
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		claims, err := sessions.Verify(token)
		if err != nil {
			logging.WithRequest(c).Debugf("❌ Session rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired session",
			})
		}
		if allowed != nil && !allowed.Allowed(claims.Email) {
			logging.WithRequest(c).Warnf("🚫 Session for %s is no longer on the allow-list", claims.Email)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied",
			})
		}

		c.Locals("user_id", claims.Subject)
		c.Locals("user_email", claims.Email)
		c.Locals("user_name", claims.Name)
		return c.Next()
	}
}

// UserEmail returns the email stored by SessionAuth, or ""
func UserEmail(c *fiber.Ctx) string {
	email, _ := c.Locals("user_email").(string)
	return email
}
