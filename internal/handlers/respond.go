package handlers

import (
	"strings"

	"tcmclinic/internal/apperr"
	"tcmclinic/internal/logging"

	"github.com/gofiber/fiber/v2"
)

// sendError writes {"error": ...} with the status mapped from err's kind.
// Server-side failures are logged and answered with fallback instead of the cause.
func sendError(c *fiber.Ctx, err error, fallback string) error {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if status >= fiber.StatusInternalServerError {
		logging.WithRequest(c).WithError(err).Error("❌ " + fallback)
		message = fallback
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// firstQuery returns the first non-empty query value among keys
func firstQuery(c *fiber.Ctx, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(c.Query(key)); v != "" {
			return v
		}
	}
	return ""
}
