package handlers

import (
	"context"
	"errors"
	"fmt"

	"tcmclinic/internal/models"
	"tcmclinic/internal/services"

	"github.com/gofiber/fiber/v2"
)

// LineSyncer links patients to LINE accounts
type LineSyncer interface {
	Run(ctx context.Context) (*models.LineSyncReport, error)
}

// SyncHandler serves the LINE user sync
type SyncHandler struct {
	syncer  LineSyncer
	enabled bool
}

// NewSyncHandler creates a sync handler. When enabled is false runs answer 503.
func NewSyncHandler(syncer LineSyncer, enabled bool) *SyncHandler {
	return &SyncHandler{syncer: syncer, enabled: enabled}
}

// Describe documents the endpoint
// GET /api/sync/line-users
func (h *SyncHandler) Describe(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message":     "LINE user sync API",
		"description": "POST to link patients to LINE accounts by display name",
		"endpoint":    "/api/sync/line-users",
		"enabled":     h.enabled,
	})
}

// Run performs one sync
// POST /api/sync/line-users
func (h *SyncHandler) Run(c *fiber.Ctx) error {
	if !h.enabled {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "LINE messaging is not configured",
		})
	}

	report, err := h.syncer.Run(c.UserContext())
	if errors.Is(err, services.ErrSyncInProgress) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	if err != nil {
		return sendError(c, err, "LINE user sync failed")
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       fmt.Sprintf("LINE user sync finished, %d patients linked", report.Stats.Synced),
		"stats":         report.Stats,
		"results":       report.Results,
		"failedUserIds": report.FailedUserIDs,
	})
}
