package handlers

import (
	"context"
	"time"

	"tcmclinic/internal/logging"

	"github.com/gofiber/fiber/v2"
)

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the database is reachable
type HealthHandler struct {
	db          Pinger
	environment string
}

// NewHealthHandler creates a health handler
func NewHealthHandler(db Pinger, environment string) *HealthHandler {
	return &HealthHandler{db: db, environment: environment}
}

// Handle responds 200 when the database answers a ping, 503 otherwise
// GET /api/health
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		logging.L().Warnf("⚠️ Health check failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":      "unhealthy",
			"timestamp":   time.Now().Format(time.RFC3339),
			"database":    "disconnected",
			"error":       err.Error(),
			"environment": h.environment,
		})
	}

	return c.JSON(fiber.Map{
		"status":      "healthy",
		"timestamp":   time.Now().Format(time.RFC3339),
		"database":    "connected",
		"environment": h.environment,
	})
}
