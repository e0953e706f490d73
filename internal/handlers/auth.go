package handlers

import (
	"time"

	"tcmclinic/internal/logging"
	"tcmclinic/internal/middleware"
	"tcmclinic/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler signs staff in with Google and manages the session cookie
type AuthHandler struct {
	verifier     auth.IdentityVerifier
	sessions     *auth.SessionManager
	allowed      *auth.AllowList
	secureCookie bool
}

// NewAuthHandler creates an auth handler. secureCookie marks the session
// cookie Secure and should be set outside local development.
func NewAuthHandler(verifier auth.IdentityVerifier, sessions *auth.SessionManager, allowed *auth.AllowList, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		verifier:     verifier,
		sessions:     sessions,
		allowed:      allowed,
		secureCookie: secureCookie,
	}
}

// Google exchanges a Google ID token for a session
// POST /api/auth/google {"credential": "..."}
func (h *AuthHandler) Google(c *fiber.Ctx) error {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := c.BodyParser(&req); err != nil || req.Credential == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "credential is required",
		})
	}

	user, err := h.verifier.Verify(c.UserContext(), req.Credential)
	if err != nil {
		logging.WithRequest(c).Warnf("❌ Google sign-in rejected: %v", err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid Google credential",
		})
	}

	if !h.allowed.Allowed(user.Email) {
		logging.WithRequest(c).Warnf("🚫 Sign-in denied for %s", user.Email)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "AccessDenied",
		})
	}

	token, expires, err := h.sessions.Issue(user)
	if err != nil {
		logging.WithRequest(c).WithError(err).Error("❌ Failed to issue session")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	h.setCookie(c, token, expires)
	logging.L().Infof("✅ Signed in: %s", user.Email)

	return c.JSON(fiber.Map{
		"user":    user,
		"token":   token,
		"expires": expires.UTC().Format(time.RFC3339),
	})
}

// Session returns the current user, or 401 without a valid session
// GET /api/auth/session
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	token := c.Cookies(middleware.SessionCookie)
	if token == "" {
		token, _ = auth.ExtractToken(c.Get(fiber.HeaderAuthorization))
	}
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Not signed in"})
	}

	claims, err := h.sessions.Verify(token)
	if err != nil || !h.allowed.Allowed(claims.Email) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Not signed in"})
	}

	return c.JSON(fiber.Map{
		"user":    claims.User(),
		"expires": claims.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// SignOut clears the session cookie
// POST /api/auth/signout
func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	h.setCookie(c, "", time.Unix(0, 0))
	return c.JSON(fiber.Map{"success": true})
}

func (h *AuthHandler) setCookie(c *fiber.Ctx, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
