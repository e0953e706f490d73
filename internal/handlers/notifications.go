package handlers

import (
	"context"
	"fmt"

	"tcmclinic/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Notifier pushes a notification to a batch of LINE users
type Notifier interface {
	Send(ctx context.Context, req *models.SendNotificationRequest) (*models.BatchPushResult, error)
}

// NotificationHandler serves LINE push notifications
type NotificationHandler struct {
	notifier Notifier
	enabled  bool
}

// NewNotificationHandler creates a notification handler. When enabled is
// false every send answers 503.
func NewNotificationHandler(notifier Notifier, enabled bool) *NotificationHandler {
	return &NotificationHandler{notifier: notifier, enabled: enabled}
}

// Send pushes the podcast link to every listed LINE id
// POST /api/notifications/send
func (h *NotificationHandler) Send(c *fiber.Ctx) error {
	if !h.enabled {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "LINE messaging is not configured",
		})
	}

	var req models.SendNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := h.notifier.Send(c.UserContext(), &req)
	if err != nil {
		return sendError(c, err, "Failed to send notifications")
	}

	return c.JSON(fiber.Map{
		"success":     result.Failed == 0,
		"sentCount":   result.Success,
		"failedCount": result.Failed,
		"errors":      result.Errors,
		"message":     fmt.Sprintf("Notifications sent to %d patients", result.Success),
	})
}
