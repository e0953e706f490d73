package handlers

import (
	"context"

	"tcmclinic/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Previewer builds link preview cards
type Previewer interface {
	Preview(ctx context.Context, rawURL string) (*models.LinkPreview, error)
}

// LinkPreviewHandler serves link previews
type LinkPreviewHandler struct {
	previewer Previewer
}

// NewLinkPreviewHandler creates a link preview handler
func NewLinkPreviewHandler(previewer Previewer) *LinkPreviewHandler {
	return &LinkPreviewHandler{previewer: previewer}
}

// Preview fetches title, description and images for a URL
// POST /api/link-preview
func (h *LinkPreviewHandler) Preview(c *fiber.Ctx) error {
	var req struct {
		URL string `json:"url"`
	}
	if err := c.BodyParser(&req); err != nil || req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid URL provided",
		})
	}

	preview, err := h.previewer.Preview(c.UserContext(), req.URL)
	if err != nil {
		return sendError(c, err, "Failed to fetch link preview")
	}
	return c.JSON(preview)
}
